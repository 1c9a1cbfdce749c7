package filter

import (
	"context"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/dom"
	"github.com/haukened/serpfilter/internal/serp/domain"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
)

// MarkerAttr flags a card hidden in the current epoch.
const MarkerAttr = "data-filtered"

// Presenter shows the hidden-results summary.
type Presenter interface {
	Present(count int)
}

// Engine runs filter passes over a document.
type Engine struct {
	doc         *dom.Document
	store       blocklist.Store
	repo        blocklist.Repository
	classifier  *Classifier
	locator     *Locator
	presenter   Presenter
	clock       clock.Clock
	logger      log.Logger
	notifyDelay time.Duration
	serialize   func(fn func())

	mu      sync.Mutex
	own     *sync.Mutex
	pending clock.Timer
}

// EngineOptions wires an Engine. Only Doc, Store and Repository are required.
type EngineOptions struct {
	Doc         *dom.Document
	Store       blocklist.Store
	Repository  blocklist.Repository
	Classifier  *Classifier
	Locator     *Locator
	Presenter   Presenter
	Clock       clock.Clock
	Logger      log.Logger
	NotifyDelay time.Duration
	// Serialize runs fn under the owner's lock of the FilterEpochState.
	// The deferred notification uses it to read the state it was scheduled for.
	// When nil the engine guards state with its own lock, taken by RunPass.
	Serialize func(fn func())
}

// NewEngine builds an Engine. Without opts.Serialize the engine owns the
// state lock: RunPass holds it for the whole pass and the deferred
// notification takes it before reading state. An owner that already
// serializes passes, such as the controller, passes its lock instead.
func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		doc:         opts.Doc,
		store:       opts.Store,
		repo:        opts.Repository,
		classifier:  opts.Classifier,
		locator:     opts.Locator,
		presenter:   opts.Presenter,
		clock:       opts.Clock,
		logger:      opts.Logger,
		notifyDelay: opts.NotifyDelay,
		serialize:   opts.Serialize,
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.logger == nil {
		e.logger = log.GetLogger()
	}
	if e.classifier == nil {
		e.classifier = NewClassifier("", DefaultEndpointRules)
	}
	if e.locator == nil {
		e.locator = NewLocator(15, []string{"div"})
	}
	if e.serialize == nil {
		own := &sync.Mutex{}
		e.own = own
		e.serialize = func(fn func()) {
			own.Lock()
			defer own.Unlock()
			fn()
		}
	}
	return e
}

// SetSerializer hands state locking to the caller: fn guards deferred
// notification reads and RunPass stops taking the engine's own lock.
func (e *Engine) SetSerializer(fn func(fn func())) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.serialize = fn
	e.own = nil
}

// RunPass hides every not-yet-hidden card whose link points at a blocked
// domain and updates state. Calls sharing state must be serialized, either by
// the engine's own lock or by the serializer the owner installed.
func (e *Engine) RunPass(ctx context.Context, state *domain.FilterEpochState) domain.FilterPassResult {
	e.mu.Lock()
	own := e.own
	e.mu.Unlock()
	if own != nil {
		own.Lock()
		defer own.Unlock()
	}

	result := domain.FilterPassResult{CumulativeHidden: state.CumulativeHidden}
	if ctx.Err() != nil {
		return result
	}

	list, err := e.store.Get(ctx, domain.BlockedDomainsKey)
	if err != nil {
		e.logger.Warn(map[string]any{"error": err.Error()}, "blocklist_unavailable")
		list = nil
	}
	if len(list) == 0 {
		e.logger.Debug(nil, "filter_pass_skipped_empty_blocklist")
		return result
	}
	if e.repo.Update(list) {
		e.logger.Debug(map[string]any{"entries": len(list)}, "blocklist_snapshot_rebuilt")
	}

	links := 0
	_ = e.doc.Mutate(func(m *dom.Mutator) error {
		visited := make(map[*html.Node]struct{})
		m.Doc().Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if ctx.Err() != nil {
				return false
			}
			links++
			card, ok := e.blockedCard(s)
			if !ok {
				return true
			}
			if _, seen := visited[card]; seen {
				return true
			}
			if dom.AttrOr(card, MarkerAttr, "") != "" {
				return true
			}
			visited[card] = struct{}{}
			m.SetStyle(card, "display", "none")
			m.SetAttr(card, MarkerAttr, "true")
			result.HiddenThisPass++
			state.CumulativeHidden++
			return true
		})
		return nil
	})
	result.CumulativeHidden = state.CumulativeHidden

	e.logger.Debug(map[string]any{
		"links":      links,
		"hidden":     result.HiddenThisPass,
		"cumulative": result.CumulativeHidden,
		"epoch":      state.Epoch,
	}, "filter_pass_done")

	if state.CumulativeHidden > 0 && !state.NotificationShown {
		state.NotificationShown = true
		e.scheduleNotification(state, state.Epoch)
	}
	return result
}

// blockedCard returns the card of the link in s when its destination is blocked.
func (e *Engine) blockedCard(s *goquery.Selection) (*html.Node, bool) {
	href, _ := s.Attr("href")
	host, ok := e.classifier.Classify(href)
	if !ok {
		return nil, false
	}
	dec := e.repo.Decide(host)
	if !dec.Blocked {
		return nil, false
	}
	card, ok := e.locator.FindCard(s.Get(0))
	if !ok {
		e.logger.Debug(map[string]any{"host": host, "rule": dec.MatchedRule}, "blocked_link_without_card")
		return nil, false
	}
	return card, true
}

// scheduleNotification presents the cumulative count of epoch after the notify
// delay. The presentation is dropped if the epoch has ended by then.
func (e *Engine) scheduleNotification(state *domain.FilterEpochState, epoch uint64) {
	if e.presenter == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = e.clock.AfterFunc(e.notifyDelay, func() {
		e.mu.Lock()
		serialize := e.serialize
		e.mu.Unlock()

		count, current := 0, false
		serialize(func() {
			current = state.Epoch == epoch
			count = state.CumulativeHidden
		})
		if !current {
			e.logger.Debug(map[string]any{"epoch": epoch}, "notification_dropped_stale_epoch")
			return
		}
		e.presenter.Present(count)
	})
}

// CancelNotification stops a scheduled notification that has not fired yet.
func (e *Engine) CancelNotification() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return false
	}
	stopped := e.pending.Stop()
	e.pending = nil
	return stopped
}

// ResetMarkers makes every hidden card visible again and clears its marker.
// It returns the number of cards restored.
func (e *Engine) ResetMarkers() int {
	restored := 0
	_ = e.doc.Mutate(func(m *dom.Mutator) error {
		m.Doc().Find("[" + MarkerAttr + "]").Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			m.RemoveAttr(n, MarkerAttr)
			m.RemoveStyle(n, "display")
			restored++
		})
		return nil
	})
	return restored
}

// RepoStats exposes the decision layer counters.
func (e *Engine) RepoStats() blocklist.RepoStats {
	return e.repo.RepoStats()
}
