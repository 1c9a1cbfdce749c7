// Package lru memoizes suffix-match decisions per canonical hostname.
package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/serpfilter/internal/serp/domain"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
)

// Cache is a blocklist.DecisionCache over hashicorp's LRU. A Cache built
// with a non-positive size is disabled: every Get misses and nothing is
// counted.
//
// Evictions count entries pushed out by capacity pressure only. Purge runs on
// every snapshot swap and is not an eviction.
type Cache struct {
	entries   *lru.Cache[string, domain.BlockDecision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

var _ blocklist.DecisionCache = (*Cache)(nil)

// New returns a Cache holding at most size decisions.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return &Cache{}, nil
	}
	entries, err := lru.New[string, domain.BlockDecision](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool { return c.entries != nil }

func (c *Cache) Get(host string) (domain.BlockDecision, bool) {
	if !c.Enabled() {
		return domain.BlockDecision{}, false
	}
	d, ok := c.entries.Get(host)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return d, ok
}

func (c *Cache) Put(host string, d domain.BlockDecision) {
	if !c.Enabled() {
		return
	}
	if evicted := c.entries.Add(host, d); evicted {
		c.evictions.Add(1)
	}
}

func (c *Cache) Len() int {
	if !c.Enabled() {
		return 0
	}
	return c.entries.Len()
}

func (c *Cache) Purge() {
	if c.Enabled() {
		c.entries.Purge()
	}
}

func (c *Cache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}
