package blocklist

import (
	"slices"
	"strings"
	"sync"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/common/utils"
	"github.com/haukened/serpfilter/internal/serp/domain"
)

// repository implements Repository by composing a Bloom filter (via factory),
// a DecisionCache and an exact set of normalized entries. Reads run
// bloom → cache → set; Update swaps all three atomically.
type repository struct {
	mu       sync.RWMutex
	cache    DecisionCache
	factory  BloomFactory
	fpRate   float64
	clock    clock.Clock
	bloom    BloomFilter
	entries  map[string]struct{}
	snapshot domain.BlockedDomainList
	rebuilds uint64
	updated  int64
}

// NewRepository constructs a Repository with an empty snapshot.
// fpRate is the target false-positive rate for the Bloom filter when rebuilding.
func NewRepository(cache DecisionCache, factory BloomFactory, fpRate float64, clk clock.Clock) Repository {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &repository{
		cache:   cache,
		factory: factory,
		fpRate:  fpRate,
		clock:   clk,
		entries: map[string]struct{}{},
	}
}

// Decide returns a BlockDecision for the provided hostname.
func (r *repository) Decide(name string) domain.BlockDecision {
	cn := utils.CanonicalHostname(name)
	if cn == "" {
		return domain.Allow()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return domain.Allow()
	}
	// 1) bloom: early-allow when no suffix anchor can be present
	if !r.checkBloom(cn) {
		return domain.Allow()
	}
	// 2) cache
	if d, ok := r.cache.Get(cn); ok {
		return d
	}
	// 3) authoritative set
	dec := r.checkEntries(cn)
	r.cache.Put(cn, dec)
	return dec
}

// Update rebuilds the snapshot when the normalized list differs from the current one.
func (r *repository) Update(list []string) bool {
	normalized := domain.NormalizeList(list)

	r.mu.RLock()
	same := slices.Equal(r.snapshot, normalized)
	r.mu.RUnlock()
	if same {
		return false
	}

	entries := make(map[string]struct{}, len(normalized))
	bf := r.factory.New(uint64(len(normalized)), r.fpRate)
	for _, e := range normalized {
		entries[e] = struct{}{}
		bf.Add([]byte(e))
	}

	r.mu.Lock()
	r.snapshot = normalized
	r.entries = entries
	r.bloom = bf
	r.cache.Purge()
	r.rebuilds++
	r.updated = r.clock.Now().Unix()
	r.mu.Unlock()
	return true
}

func (r *repository) RepoStats() RepoStats {
	hits, misses, evictions := r.cache.Stats()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepoStats{
		Entries:    len(r.entries),
		Hits:       hits,
		Misses:     misses,
		Evictions:  evictions,
		Rebuilds:   r.rebuilds,
		LastUpdate: r.updated,
	}
}

// checkBloom returns true if the set must be consulted (maybe-positive).
// Every dot-boundary suffix of cn is a candidate entry.
func (r *repository) checkBloom(cn string) bool {
	if r.bloom == nil {
		return true
	}
	found := false
	walkSuffixes(cn, func(s string) bool {
		found = r.bloom.MightContain([]byte(s))
		return !found
	})
	return found
}

// checkEntries walks suffixes most-specific first and returns the first entry hit.
func (r *repository) checkEntries(cn string) domain.BlockDecision {
	dec := domain.Allow()
	walkSuffixes(cn, func(s string) bool {
		if _, ok := r.entries[s]; ok {
			dec = domain.BlockedBy(s)
			return false
		}
		return true
	})
	return dec
}

// walkSuffixes calls visit with name and each parent obtained by dropping the
// leftmost label, stopping early when visit returns false.
func walkSuffixes(name string, visit func(string) bool) {
	for a := name; a != ""; {
		if !visit(a) {
			return
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			return
		}
		a = a[i+1:]
	}
}
