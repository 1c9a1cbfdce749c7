// Package bloom builds the prefilter the blocklist repository consults
// before its cache and exact set.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
)

// DefaultFPRate is used when a caller passes a rate outside (0, 1).
const DefaultFPRate = 0.01

// Params returns the bit count and hash count for n entries at false-positive
// rate p. Empty lists are sized as a single entry so the filter is usable.
func Params(n uint64, p float64) (m, k uint) {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = DefaultFPRate
	}
	return bitsbloom.EstimateParameters(uint(n), p)
}

type factory struct{}

// NewFactory returns the factory the repository uses on every snapshot swap.
func NewFactory() blocklist.BloomFactory { return factory{} }

// New returns a filter sized for capacity entries. The repository fills it
// before publishing the snapshot and only reads it afterwards, so the filter
// carries no lock of its own.
func (factory) New(capacity uint64, fpRate float64) blocklist.BloomFilter {
	m, k := Params(capacity, fpRate)
	return snapshot{bf: bitsbloom.New(m, k)}
}

type snapshot struct {
	bf *bitsbloom.BloomFilter
}

func (s snapshot) Add(key []byte)                { s.bf.Add(key) }
func (s snapshot) MightContain(key []byte) bool { return s.bf.Test(key) }
