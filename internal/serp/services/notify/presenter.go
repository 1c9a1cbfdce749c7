// Package notify renders the transient "results hidden" banner into a document.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/dom"
)

// ElementID is the id of the banner element; at most one exists at a time.
const ElementID = "filter-notification"

const bannerStyle = "position: fixed; top: 20px; right: 20px; background: #4285f4; color: white; " +
	"padding: 12px 20px; border-radius: 4px; box-shadow: 0 2px 8px rgba(0,0,0,0.2); " +
	"z-index: 10000; font-family: Arial, sans-serif; font-size: 14px;"

// DefaultMessage formats the banner text.
func DefaultMessage(count int) string {
	if count == 1 {
		return "Hid 1 search result"
	}
	return fmt.Sprintf("Hid %d search results", count)
}

// Options configures a Presenter; Message defaults to DefaultMessage.
type Options struct {
	Doc             *dom.Document
	Clock           clock.Clock
	Logger          log.Logger
	DisplayDuration time.Duration
	FadeDuration    time.Duration
	Message         func(count int) string
}

// Presenter shows an auto-dismissing banner in the document body.
type Presenter struct {
	doc     *dom.Document
	clock   clock.Clock
	logger  log.Logger
	display time.Duration
	fade    time.Duration
	message func(int) string

	mu     sync.Mutex
	timers []clock.Timer
}

// New builds a Presenter that renders into opts.Doc.
func New(opts Options) *Presenter {
	p := &Presenter{
		doc:     opts.Doc,
		clock:   opts.Clock,
		logger:  opts.Logger,
		display: opts.DisplayDuration,
		fade:    opts.FadeDuration,
		message: opts.Message,
	}
	if p.clock == nil {
		p.clock = clock.RealClock{}
	}
	if p.logger == nil {
		p.logger = log.GetLogger()
	}
	if p.message == nil {
		p.message = DefaultMessage
	}
	return p
}

// Present replaces any visible banner with one announcing count, then fades
// and removes it after the display duration.
func (p *Presenter) Present(count int) {
	node := p.insert(count)
	if node == nil {
		return
	}
	p.logger.Info(map[string]any{"hidden": count}, "notification_shown")

	p.schedule(p.display, func() {
		_ = p.doc.Mutate(func(m *dom.Mutator) error {
			if !dom.IsAttached(node) {
				return nil
			}
			m.SetStyle(node, "opacity", "0")
			m.SetStyle(node, "transition", fmt.Sprintf("opacity %gs", p.fade.Seconds()))
			return nil
		})
		p.schedule(p.fade, func() {
			_ = p.doc.Mutate(func(m *dom.Mutator) error {
				m.Remove(node)
				return nil
			})
		})
	})
}

func (p *Presenter) insert(count int) *html.Node {
	var node *html.Node
	err := p.doc.Mutate(func(m *dom.Mutator) error {
		m.Doc().Find("#" + ElementID).Each(func(_ int, s *goquery.Selection) {
			m.Remove(s.Get(0))
		})
		body := dom.Body(m.Doc())
		if body == nil {
			return dom.ErrDetached
		}
		n, err := m.AppendElement(body, "div", map[string]string{
			"id":    ElementID,
			"style": bannerStyle,
		}, p.message(count))
		node = n
		return err
	})
	if err != nil {
		p.logger.Warn(map[string]any{"error": err.Error()}, "notification_insert_failed")
		return nil
	}
	return node
}

func (p *Presenter) schedule(d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timers = append(p.timers, p.clock.AfterFunc(d, fn))
}

// Close cancels pending fade and removal steps.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}
