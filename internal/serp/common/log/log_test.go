package log

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(_ map[string]any, msg string) { l.add("DEBUG:" + msg) }
func (l *recordingLogger) Info(_ map[string]any, msg string)  { l.add("INFO:" + msg) }
func (l *recordingLogger) Warn(_ map[string]any, msg string)  { l.add("WARN:" + msg) }
func (l *recordingLogger) Error(_ map[string]any, msg string) { l.add("ERROR:" + msg) }
func (l *recordingLogger) Panic(map[string]any, string)       {}
func (l *recordingLogger) Fatal(map[string]any, string)       {}
func (l *recordingLogger) With(map[string]any) Logger         { return l }

func observed(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &zapLogger{z: zap.New(core)}, logs
}

func TestZapLogger_FieldsAndChildren(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)

	l.Info(map[string]any{"hidden": 2, "epoch": uint64(1)}, "filter_pass_done")
	l.With(map[string]any{"component": "notify"}).Warn(nil, "banner_replaced")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "filter_pass_done", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, map[string]any{"hidden": int64(2), "epoch": uint64(1)}, entries[0].ContextMap())

	assert.Equal(t, "banner_replaced", entries[1].Message)
	assert.Equal(t, "notify", entries[1].ContextMap()["component"])
}

func TestZapLogger_DisabledLevelIsDropped(t *testing.T) {
	l, logs := observed(zapcore.WarnLevel)

	l.Debug(map[string]any{"k": "v"}, "too_quiet")
	l.Info(nil, "still_too_quiet")
	l.Error(nil, "loud")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "loud", logs.All()[0].Message)
}

func TestZapLogger_Panic(t *testing.T) {
	l, _ := observed(zapcore.DebugLevel)
	assert.Panics(t, func() { l.Panic(nil, "boom") })
}

func TestToFields_SortedWithErrors(t *testing.T) {
	assert.Nil(t, toFields(nil))

	fields := toFields(map[string]any{
		"zeta":  1,
		"alpha": "a",
		"err":   errors.New("store offline"),
	})
	require.Len(t, fields, 3)
	assert.Equal(t, "alpha", fields[0].Key)
	assert.Equal(t, "err", fields[1].Key)
	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
	assert.Equal(t, "zeta", fields[2].Key)
}

func TestSetLogger_RoutesPackageFunctions(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	rec := &recordingLogger{}
	SetLogger(rec)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	assert.Equal(t, []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}, rec.entries)
}

func TestSetLogger_NilInstallsNoop(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	SetLogger(nil)
	assert.Equal(t, NewNoopLogger(), GetLogger())
	assert.NotPanics(t, func() { Panic(nil, "ignored") })
}

func TestSetLogger_ConcurrentSwap(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(NewNoopLogger())
		}()
		go func() {
			defer wg.Done()
			Info(nil, "swap")
		}()
	}
	wg.Wait()
}

func TestConfigure(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	require.NoError(t, Configure("dev", "debug"))
	require.NoError(t, Configure("prod", "info"))
	require.NoError(t, Configure("prod", " WARN "))

	err := Configure("dev", "notalevel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notalevel")
}

func TestNoopLogger(t *testing.T) {
	n := NewNoopLogger()
	assert.NotPanics(t, func() {
		n.Debug(nil, "d")
		n.Info(nil, "i")
		n.Warn(nil, "w")
		n.Error(nil, "e")
		n.Panic(nil, "p")
		n.Fatal(nil, "f")
	})
	assert.Equal(t, n, n.With(map[string]any{"k": "v"}))
}
