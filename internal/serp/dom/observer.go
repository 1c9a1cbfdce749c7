package dom

import (
	"sync"

	"golang.org/x/net/html"
)

// ObserveOptions selects which records an observer receives.
type ObserveOptions struct {
	ChildList  bool
	Attributes bool
	Subtree    bool
}

type observer struct {
	target *html.Node
	opts   ObserveOptions
	fn     func([]MutationRecord)
}

type delivery struct {
	fn      func([]MutationRecord)
	records []MutationRecord
}

// Observe registers fn for mutations on target (and its subtree when
// opts.Subtree is set). fn runs on the mutating goroutine without the document
// lock held. The returned func disconnects the observer.
func (d *Document) Observe(target *html.Node, opts ObserveOptions, fn func([]MutationRecord)) (disconnect func()) {
	obs := &observer{target: target, opts: opts, fn: fn}
	d.mu.Lock()
	d.observers = append(d.observers, obs)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, o := range d.observers {
				if o == obs {
					d.observers = append(d.observers[:i], d.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// route groups records per interested observer. Caller holds d.mu.
func (d *Document) route(records []MutationRecord) []delivery {
	if len(records) == 0 || len(d.observers) == 0 {
		return nil
	}
	var out []delivery
	for _, obs := range d.observers {
		var matched []MutationRecord
		for _, r := range records {
			if obs.wants(r) {
				matched = append(matched, r)
			}
		}
		if len(matched) > 0 {
			out = append(out, delivery{fn: obs.fn, records: matched})
		}
	}
	return out
}

func (o *observer) wants(r MutationRecord) bool {
	switch {
	case r.IsChildList() && !o.opts.ChildList:
		return false
	case r.Op == OpAttr && !o.opts.Attributes:
		return false
	}
	if r.Target == o.target {
		return true
	}
	return o.opts.Subtree && Contains(o.target, r.Target)
}
