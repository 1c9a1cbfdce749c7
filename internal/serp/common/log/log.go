package log

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across serpfilter.
// Messages are short snake_case event names such as "filter_pass_done";
// everything variable goes into fields.
type Logger interface {
	Debug(fields map[string]any, msg string)
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
	// With returns a child logger that attaches fields to every entry.
	With(fields map[string]any) Logger
}

// holder keeps atomic.Value's concrete type stable across implementations.
type holder struct{ Logger }

var current atomic.Value

func init() {
	current.Store(holder{build(false, zapcore.InfoLevel)})
}

// SetLogger swaps the process-wide logger. Timer callbacks log from their
// own goroutines, so the swap is atomic.
func SetLogger(l Logger) {
	if l == nil {
		l = NewNoopLogger()
	}
	current.Store(holder{l})
}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	return current.Load().(holder).Logger
}

// Configure installs a zap logger for env ("dev" gets a colored console
// encoder, anything else JSON) at the named level. Output always goes to
// stderr; stdout belongs to command output such as rendered pages.
func Configure(env, level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	SetLogger(build(env != "prod", lvl))
	return nil
}

func Debug(fields map[string]any, msg string) { GetLogger().Debug(fields, msg) }
func Info(fields map[string]any, msg string)  { GetLogger().Info(fields, msg) }
func Warn(fields map[string]any, msg string)  { GetLogger().Warn(fields, msg) }
func Error(fields map[string]any, msg string) { GetLogger().Error(fields, msg) }
func Panic(fields map[string]any, msg string) { GetLogger().Panic(fields, msg) }
func Fatal(fields map[string]any, msg string) { GetLogger().Fatal(fields, msg) }

func build(dev bool, level zapcore.Level) Logger {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig = encoderConfig(cfg.EncoderConfig, dev)

	z, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return NewNoopLogger()
	}
	return &zapLogger{z: z}
}

func encoderConfig(ec zapcore.EncoderConfig, dev bool) zapcore.EncoderConfig {
	ec.TimeKey = "time"
	ec.LevelKey = "level"
	ec.MessageKey = "event"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	if dev {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Debug(f map[string]any, msg string) { l.write(zapcore.DebugLevel, f, msg) }
func (l *zapLogger) Info(f map[string]any, msg string)  { l.write(zapcore.InfoLevel, f, msg) }
func (l *zapLogger) Warn(f map[string]any, msg string)  { l.write(zapcore.WarnLevel, f, msg) }
func (l *zapLogger) Error(f map[string]any, msg string) { l.write(zapcore.ErrorLevel, f, msg) }
func (l *zapLogger) Panic(f map[string]any, msg string) { l.write(zapcore.PanicLevel, f, msg) }
func (l *zapLogger) Fatal(f map[string]any, msg string) { l.write(zapcore.FatalLevel, f, msg) }

func (l *zapLogger) With(fields map[string]any) Logger {
	return &zapLogger{z: l.z.With(toFields(fields)...)}
}

// write skips field conversion entirely when the level is disabled.
func (l *zapLogger) write(level zapcore.Level, fields map[string]any, msg string) {
	if ce := l.z.Check(level, msg); ce != nil {
		ce.Write(toFields(fields)...)
	}
}

// toFields converts fields in key order so entries are stable across runs.
// error values keep their message under the key instead of a reflected struct.
func toFields(m map[string]any) []zap.Field {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := m[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, m[k]))
	}
	return out
}

type noopLogger struct{}

// NewNoopLogger returns a Logger that drops every entry.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}
func (noopLogger) Panic(map[string]any, string) {}
func (noopLogger) Fatal(map[string]any, string) {}

func (n noopLogger) With(map[string]any) Logger { return n }
