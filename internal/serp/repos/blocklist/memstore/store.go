// Package memstore is an in-process blocklist.Store, used when no database path
// is configured and by tests.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/domain"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
)

type Store struct {
	blocklist.Broadcaster
	mu      sync.RWMutex
	clock   clock.Clock
	values  map[string][]string
	version uint64
	updated int64
}

// New returns an empty Store.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{clock: clk, values: map[string][]string{}}
}

func (s *Store) Get(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(v), nil
}

func (s *Store) Set(ctx context.Context, key string, value []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := slices.Clone(value)
	if next == nil {
		next = []string{}
	}

	s.mu.Lock()
	old, existed := s.values[key]
	if existed && slices.Equal(old, next) {
		s.mu.Unlock()
		return nil
	}
	if old == nil {
		old = []string{}
	}
	s.values[key] = next
	s.version++
	s.updated = s.clock.Now().Unix()
	s.mu.Unlock()

	s.Publish(domain.StoreChange{Key: key, OldValue: slices.Clone(old), NewValue: slices.Clone(next)})
	return nil
}

func (s *Store) Stats() blocklist.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return blocklist.StoreStats{Keys: uint64(len(s.values)), Version: s.version, UpdatedUnix: s.updated}
}

func (s *Store) Close() error { return nil }

var _ blocklist.Store = (*Store)(nil)
