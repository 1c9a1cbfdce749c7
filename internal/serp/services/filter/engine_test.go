package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/dom"
	"github.com/haukened/serpfilter/internal/serp/domain"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/bloom"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/lru"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/memstore"
)

type recordingPresenter struct {
	counts []int
}

func (p *recordingPresenter) Present(count int) { p.counts = append(p.counts, count) }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	v, _ := args.Get(0).([]string)
	return v, args.Error(1)
}

func (m *mockStore) Set(ctx context.Context, key string, value []string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockStore) Subscribe(func(domain.StoreChange)) func() { return func() {} }
func (m *mockStore) Stats() blocklist.StoreStats                { return blocklist.StoreStats{} }
func (m *mockStore) Close() error                               { return nil }

func card(id, href string) string {
	return fmt.Sprintf(`<div class="g" id="%s"><h3>%s</h3><div><cite><a href="%s">link</a></cite></div></div>`, id, id, href)
}

func serp(cards ...string) string {
	return `<html><body><div id="search"><div id="rso">` + strings.Join(cards, "") + `</div></div></body></html>`
}

type fixture struct {
	doc       *dom.Document
	store     *memstore.Store
	clock     *clock.MockClock
	presenter *recordingPresenter
	engine    *Engine
}

func newFixture(t *testing.T, page string, blocked ...string) *fixture {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	clk := &clock.MockClock{CurrentTime: time.Unix(0, 0)}
	store := memstore.New(clk)
	if len(blocked) > 0 {
		require.NoError(t, store.Set(context.Background(), domain.BlockedDomainsKey, blocked))
	}
	p := &recordingPresenter{}
	return &fixture{
		doc:       doc,
		store:     store,
		clock:     clk,
		presenter: p,
		engine:    newEngine(t, doc, store, clk, p),
	}
}

func newEngine(t *testing.T, doc *dom.Document, store blocklist.Store, clk clock.Clock, p Presenter) *Engine {
	t.Helper()
	cache, err := lru.New(64)
	require.NoError(t, err)
	return NewEngine(EngineOptions{
		Doc:         doc,
		Store:       store,
		Repository:  blocklist.NewRepository(cache, bloom.NewFactory(), 0.01, clk),
		Classifier:  NewClassifier("https://www.google.com/search?q=test", DefaultEndpointRules),
		Locator:     NewLocator(15, []string{"div"}),
		Presenter:   p,
		Clock:       clk,
		Logger:      log.NewNoopLogger(),
		NotifyDelay: 1500 * time.Millisecond,
	})
}

func (f *fixture) hidden(t *testing.T, id string) bool {
	t.Helper()
	n := nodeBy(t, f.doc, "#"+id)
	return dom.Style(n, "display") == "none" && dom.AttrOr(n, MarkerAttr, "") == "true"
}

func TestRunPass_EndToEndScenario(t *testing.T) {
	f := newFixture(t, serp(
		card("c1", "https://sub.spam.example/article"),
		card("c2", "https://spam.example.org/"),
		card("c3", "https://othersite.com/"),
	), "spam.example")

	var state domain.FilterEpochState
	res := f.engine.RunPass(context.Background(), &state)

	assert.Equal(t, 1, res.HiddenThisPass)
	assert.Equal(t, 1, res.CumulativeHidden)
	assert.True(t, f.hidden(t, "c1"))
	assert.False(t, f.hidden(t, "c2"))
	assert.False(t, f.hidden(t, "c3"))
}

func TestRunPass_Idempotent(t *testing.T) {
	f := newFixture(t, serp(
		card("c1", "https://spam.example/"),
		card("c2", "https://ok.example/"),
	), "spam.example")

	var state domain.FilterEpochState
	first := f.engine.RunPass(context.Background(), &state)
	second := f.engine.RunPass(context.Background(), &state)

	assert.Equal(t, 1, first.HiddenThisPass)
	assert.Equal(t, 0, second.HiddenThisPass)
	assert.Equal(t, 1, second.CumulativeHidden)
	assert.Equal(t, 1, state.CumulativeHidden)
}

func TestRunPass_CardWithTwoBlockedLinksHiddenOnce(t *testing.T) {
	page := serp(`<div class="g" id="c1"><h3>T</h3><a href="https://a.spam.example/">a</a><a href="https://b.spam.example/">b</a></div>`)
	f := newFixture(t, page, "spam.example")

	var state domain.FilterEpochState
	res := f.engine.RunPass(context.Background(), &state)

	assert.Equal(t, 1, res.HiddenThisPass)
	assert.Equal(t, 1, state.CumulativeHidden)
}

func TestRunPass_SkipsInternalAndUnlocatable(t *testing.T) {
	page := `<html><body>
<div id="nav"><h3>Nav</h3><a href="https://www.google.com/url?q=https://spam.example/">redirect</a></div>
<a id="bare" href="https://spam.example/">no card</a>
<div id="js"><h3>J</h3><a href="javascript:alert(1)">js</a></div>
</body></html>`
	f := newFixture(t, page, "spam.example")

	var state domain.FilterEpochState
	res := f.engine.RunPass(context.Background(), &state)
	assert.Equal(t, 0, res.HiddenThisPass)
	assert.False(t, state.NotificationShown)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestRunPass_EmptyBlocklistIsNoop(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")))

	state := domain.FilterEpochState{Epoch: 3}
	res := f.engine.RunPass(context.Background(), &state)

	assert.Equal(t, domain.FilterPassResult{}, res)
	assert.Equal(t, domain.FilterEpochState{Epoch: 3}, state)
	assert.False(t, f.hidden(t, "c1"))
}

func TestRunPass_StoreFailureBehavesAsEmpty(t *testing.T) {
	doc, err := dom.ParseString(serp(card("c1", "https://spam.example/")))
	require.NoError(t, err)
	store := &mockStore{}
	store.On("Get", mock.Anything, domain.BlockedDomainsKey).Return(nil, errors.New("storage offline"))
	clk := &clock.MockClock{CurrentTime: time.Unix(0, 0)}
	e := newEngine(t, doc, store, clk, &recordingPresenter{})

	var state domain.FilterEpochState
	res := e.RunPass(context.Background(), &state)

	assert.Equal(t, 0, res.HiddenThisPass)
	assert.Equal(t, 0, state.CumulativeHidden)
	store.AssertExpectations(t)
}

func TestRunPass_CancelledContext(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var state domain.FilterEpochState
	res := f.engine.RunPass(ctx, &state)
	assert.Equal(t, 0, res.HiddenThisPass)
	assert.False(t, f.hidden(t, "c1"))
}

func TestRunPass_NotificationAtMostOncePerEpoch(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")

	var state domain.FilterEpochState
	for i := 0; i < 10; i++ {
		f.engine.RunPass(context.Background(), &state)
		f.clock.Advance(100 * time.Millisecond)
	}
	assert.True(t, state.NotificationShown)
	assert.Empty(t, f.presenter.counts, "still inside the notify delay")

	f.clock.Advance(time.Second)
	assert.Equal(t, []int{1}, f.presenter.counts)

	f.engine.RunPass(context.Background(), &state)
	f.clock.Advance(5 * time.Second)
	assert.Equal(t, []int{1}, f.presenter.counts)
}

func TestRunPass_NotificationShowsCountAtFireTime(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")

	var state domain.FilterEpochState
	f.engine.RunPass(context.Background(), &state)

	rso := nodeBy(t, f.doc, "#rso")
	require.NoError(t, f.doc.Mutate(func(m *dom.Mutator) error {
		_, err := m.AppendHTML(rso, card("c2", "https://www.spam.example/late"))
		return err
	}))
	f.clock.Advance(500 * time.Millisecond)
	res := f.engine.RunPass(context.Background(), &state)
	assert.Equal(t, 1, res.HiddenThisPass)

	f.clock.Advance(time.Second)
	assert.Equal(t, []int{2}, f.presenter.counts)
}

func TestRunPass_StaleEpochNotificationDropped(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")

	var state domain.FilterEpochState
	f.engine.RunPass(context.Background(), &state)
	state.Reset()

	f.clock.Advance(2 * time.Second)
	assert.Empty(t, f.presenter.counts)
}

func TestRunPass_SerializerGuardsDeferredRead(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")
	calls := 0
	f.engine.SetSerializer(func(fn func()) {
		calls++
		fn()
	})

	var state domain.FilterEpochState
	f.engine.RunPass(context.Background(), &state)
	f.clock.Advance(1500 * time.Millisecond)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{1}, f.presenter.counts)
}

func TestRunPass_StandaloneEngineOwnsStateLock(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")

	var state domain.FilterEpochState
	done := make(chan domain.FilterPassResult, 1)
	f.engine.serialize(func() {
		go func() { done <- f.engine.RunPass(context.Background(), &state) }()
		select {
		case <-done:
			t.Fatal("pass ran while the state lock was held")
		case <-time.After(50 * time.Millisecond):
		}
	})

	select {
	case res := <-done:
		assert.Equal(t, 1, res.HiddenThisPass)
	case <-time.After(2 * time.Second):
		t.Fatal("pass never ran after the state lock was released")
	}
}

func TestSetSerializer_ReleasesEngineLock(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")
	var ownerMu sync.Mutex
	f.engine.SetSerializer(func(fn func()) {
		ownerMu.Lock()
		defer ownerMu.Unlock()
		fn()
	})

	var state domain.FilterEpochState
	ownerMu.Lock()
	res := f.engine.RunPass(context.Background(), &state)
	ownerMu.Unlock()
	assert.Equal(t, 1, res.HiddenThisPass)

	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, []int{1}, f.presenter.counts)
}

func TestCancelNotification(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/")), "spam.example")
	assert.False(t, f.engine.CancelNotification())

	var state domain.FilterEpochState
	f.engine.RunPass(context.Background(), &state)
	assert.True(t, f.engine.CancelNotification())

	f.clock.Advance(2 * time.Second)
	assert.Empty(t, f.presenter.counts)
}

func TestResetMarkers_RestoresAndRefilters(t *testing.T) {
	page := serp(
		`<div class="g" id="c1" style="color: red"><h3>a</h3><a href="https://spam.example/">a</a></div>`,
		card("c2", "https://other.example/"),
	)
	f := newFixture(t, page, "spam.example")
	ctx := context.Background()

	var state domain.FilterEpochState
	f.engine.RunPass(ctx, &state)
	require.True(t, f.hidden(t, "c1"))

	require.NoError(t, f.store.Set(ctx, domain.BlockedDomainsKey, []string{"other.example"}))
	state.Reset()
	assert.Equal(t, 1, f.engine.ResetMarkers())
	assert.Equal(t, 0, state.CumulativeHidden)

	c1 := nodeBy(t, f.doc, "#c1")
	assert.Equal(t, "", dom.Style(c1, "display"))
	assert.Equal(t, "color: red;", dom.AttrOr(c1, "style", ""))
	_, marked := dom.Attr(c1, MarkerAttr)
	assert.False(t, marked)

	res := f.engine.RunPass(ctx, &state)
	assert.Equal(t, 1, res.HiddenThisPass)
	assert.False(t, f.hidden(t, "c1"))
	assert.True(t, f.hidden(t, "c2"))
	assert.Equal(t, uint64(1), state.Epoch)
}

func TestRunPass_LinkRemovedBetweenReadAndScan(t *testing.T) {
	f := newFixture(t, serp(card("c1", "https://spam.example/"), card("c2", "https://spam.example/b")), "spam.example")
	c1 := nodeBy(t, f.doc, "#c1")
	require.NoError(t, f.doc.Mutate(func(m *dom.Mutator) error {
		m.Remove(c1)
		return nil
	}))

	var state domain.FilterEpochState
	res := f.engine.RunPass(context.Background(), &state)
	assert.Equal(t, 1, res.HiddenThisPass)

	var remaining int
	f.doc.Read(func(doc *goquery.Document) { remaining = doc.Find("div.g").Length() })
	assert.Equal(t, 1, remaining)
}
