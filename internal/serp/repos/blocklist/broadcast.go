package blocklist

import (
	"slices"
	"sync"

	"github.com/haukened/serpfilter/internal/serp/domain"
)

// Broadcaster fans store changes out to subscribers.
// Listeners are invoked outside the lock, in subscription order.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(domain.StoreChange)
	order  []uint64
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is a no-op.
func (b *Broadcaster) Subscribe(fn func(domain.StoreChange)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[uint64]func(domain.StoreChange))
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			b.order = slices.DeleteFunc(b.order, func(v uint64) bool { return v == id })
		})
	}
}

// Publish delivers change to every current subscriber.
func (b *Broadcaster) Publish(change domain.StoreChange) {
	b.mu.Lock()
	fns := make([]func(domain.StoreChange), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
