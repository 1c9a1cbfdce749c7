package blocklist

import (
	"context"

	"github.com/haukened/serpfilter/internal/serp/domain"
)

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a snapshot.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches block decisions by canonical hostname with basic metrics.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// StoreStats captures high-level counts and metadata for the persistent store.
type StoreStats struct {
	Keys        uint64
	Version     uint64 // incremented on every effective write
	UpdatedUnix int64  // seconds since epoch
}

// Store is the synchronized key-value storage holding the blocklist.
//   - Get returns an empty list for a missing key
//   - Set persists the value and, when it differs from the stored one,
//     notifies subscribers after the write is durable
//   - Subscribe registers a change listener; the returned func removes it
type Store interface {
	Get(ctx context.Context, key string) ([]string, error)
	Set(ctx context.Context, key string, value []string) error
	Subscribe(fn func(domain.StoreChange)) (unsubscribe func())
	Stats() StoreStats
	Close() error
}

// RepoStats exposes repository-level counters.
type RepoStats struct {
	Entries    int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Rebuilds   uint64
	LastUpdate int64 // seconds since epoch
}

// Repository is the decision layer over a blocklist snapshot.
// Decide applies a bloom → cache → index pipeline and agrees with domain.IsBlocked.
// Update swaps the snapshot and reports whether it changed.
type Repository interface {
	domain.Matcher
	Update(list []string) bool
	RepoStats() RepoStats
}
