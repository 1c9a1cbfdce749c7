// Package controller decides when filter passes run: a few bootstrap passes
// after start, a debounced pass after the results container mutates, and an
// immediate pass with fresh state whenever the blocklist changes.
package controller

import (
	"context"
	"errors"
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

var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrStopped        = errors.New("controller stopped")
)

// Engine is the pass runner driven by the controller.
type Engine interface {
	RunPass(ctx context.Context, state *domain.FilterEpochState) domain.FilterPassResult
	ResetMarkers() int
	CancelNotification() bool
	// SetSerializer makes the engine lock state through fn instead of its own lock.
	SetSerializer(fn func(fn func()))
}

// Options wires a Controller. Doc, Engine and Store are required.
type Options struct {
	Doc                *dom.Document
	Engine             Engine
	Store              blocklist.Store
	Clock              clock.Clock
	Logger             log.Logger
	BootstrapDelays    []time.Duration
	DebounceWindow     time.Duration
	ContainerSelectors []string
}

// Controller triggers filter passes on bootstrap, document mutations and
// blocklist changes, serializing them under one lock.
type Controller struct {
	doc        *dom.Document
	engine     Engine
	store      blocklist.Store
	clock      clock.Clock
	logger     log.Logger
	delays     []time.Duration
	debounce   time.Duration
	containers []string

	// mu serializes passes and every access to state.
	mu    sync.Mutex
	state domain.FilterEpochState

	// lifecycle guards timers, subscriptions and the debounce token.
	lifecycle   sync.Mutex
	ctx         context.Context
	started     bool
	stopped     bool
	bootstrap   []clock.Timer
	pending     clock.Timer
	token       uint64
	unsubscribe func()
	disconnect  func()
	observed    string
}

// New builds a Controller with a fresh epoch state.
func New(opts Options) *Controller {
	c := &Controller{
		doc:        opts.Doc,
		engine:     opts.Engine,
		store:      opts.Store,
		clock:      opts.Clock,
		logger:     opts.Logger,
		delays:     append([]time.Duration(nil), opts.BootstrapDelays...),
		debounce:   opts.DebounceWindow,
		containers: append([]string(nil), opts.ContainerSelectors...),
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.logger == nil {
		c.logger = log.GetLogger()
	}
	c.engine.SetSerializer(c.serialize)
	return c
}

func (c *Controller) serialize(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// Start schedules the bootstrap passes, subscribes to blocklist changes and
// begins observing the document once it is ready. ctx bounds every pass.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	if c.stopped {
		c.lifecycle.Unlock()
		return ErrStopped
	}
	if c.started {
		c.lifecycle.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx = ctx
	for _, d := range c.delays {
		c.bootstrap = append(c.bootstrap, c.clock.AfterFunc(d, func() { c.runPass("bootstrap") }))
	}
	c.unsubscribe = c.store.Subscribe(c.onStoreChange)
	c.lifecycle.Unlock()

	c.logger.Info(map[string]any{"bootstrap_passes": len(c.delays)}, "controller_started")
	c.doc.OnReady(c.observe)
	return nil
}

// Stop cancels pending timers and detaches from the store and document.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	if c.stopped {
		c.lifecycle.Unlock()
		return
	}
	c.stopped = true
	for _, t := range c.bootstrap {
		t.Stop()
	}
	c.bootstrap = nil
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	unsubscribe, disconnect := c.unsubscribe, c.disconnect
	c.unsubscribe, c.disconnect = nil, nil
	c.lifecycle.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if disconnect != nil {
		disconnect()
	}
	c.engine.CancelNotification()
	c.logger.Info(nil, "controller_stopped")
}

// State returns a copy of the current epoch state.
func (c *Controller) State() domain.FilterEpochState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Observed returns the selector of the container being watched, or "" before
// observation starts.
func (c *Controller) Observed() string {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.observed
}

func (c *Controller) observe() {
	target, label := c.container()
	if target == nil {
		c.logger.Warn(nil, "observe_target_missing")
		return
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.stopped || c.disconnect != nil {
		return
	}
	c.disconnect = c.doc.Observe(target, dom.ObserveOptions{ChildList: true, Subtree: true}, c.onMutation)
	c.observed = label
	c.logger.Info(map[string]any{"container": label}, "observer_started")
}

// container returns the narrowest configured results container that exists,
// falling back to <body> and then the document root.
func (c *Controller) container() (*html.Node, string) {
	var (
		target *html.Node
		label  string
	)
	c.doc.Read(func(doc *goquery.Document) {
		for _, sel := range c.containers {
			if s := doc.Find(sel); s.Length() > 0 {
				target, label = s.Get(0), sel
				return
			}
		}
		if body := dom.Body(doc); body != nil {
			target, label = body, "body"
			return
		}
		target, label = dom.Root(doc), "document"
	})
	return target, label
}

// onMutation replaces any pending debounce timer; only the newest token fires.
func (c *Controller) onMutation(records []dom.MutationRecord) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.stopped {
		return
	}
	c.token++
	token := c.token
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = c.clock.AfterFunc(c.debounce, func() {
		c.lifecycle.Lock()
		if c.stopped || token != c.token {
			c.lifecycle.Unlock()
			return
		}
		c.pending = nil
		c.lifecycle.Unlock()
		c.runPass("mutation")
	})
}

func (c *Controller) onStoreChange(change domain.StoreChange) {
	if change.Key != domain.BlockedDomainsKey {
		return
	}
	ctx, ok := c.passContext()
	if !ok {
		return
	}

	c.mu.Lock()
	c.state.Reset()
	c.engine.CancelNotification()
	restored := c.engine.ResetMarkers()
	res := c.engine.RunPass(ctx, &c.state)
	epoch := c.state.Epoch
	c.mu.Unlock()

	c.logger.Info(map[string]any{
		"entries":  len(change.NewValue),
		"restored": restored,
		"hidden":   res.HiddenThisPass,
		"epoch":    epoch,
	}, "blocklist_changed")
}

func (c *Controller) runPass(trigger string) {
	ctx, ok := c.passContext()
	if !ok {
		return
	}
	c.mu.Lock()
	res := c.engine.RunPass(ctx, &c.state)
	c.mu.Unlock()

	c.logger.Debug(map[string]any{
		"trigger":    trigger,
		"hidden":     res.HiddenThisPass,
		"cumulative": res.CumulativeHidden,
	}, "pass_triggered")
}

func (c *Controller) passContext() (context.Context, bool) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.stopped || !c.started || c.ctx.Err() != nil {
		return nil, false
	}
	return c.ctx, true
}
