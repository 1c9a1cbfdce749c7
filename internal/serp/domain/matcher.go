package domain

import (
	"strings"

	"github.com/haukened/serpfilter/internal/serp/common/utils"
)

// BlockDecision is the outcome of checking one hostname against a blocklist.
// MatchedRule is the normalized entry that matched, empty when allowed.
type BlockDecision struct {
	Blocked     bool
	MatchedRule string
}

// Allow is the decision for a hostname no entry covers.
func Allow() BlockDecision { return BlockDecision{} }

// BlockedBy is the decision for a hostname covered by entry.
func BlockedBy(entry string) BlockDecision {
	return BlockDecision{Blocked: true, MatchedRule: entry}
}

// Matcher decides whether a hostname is blocked.
// Implementations must agree with IsBlocked for every input.
type Matcher interface {
	Decide(hostname string) BlockDecision
}

// IsBlocked reports whether hostname equals a blocklist entry or is a subdomain of one.
// Both sides are lowercased and lose a single leading "www." before comparison.
// Matching honours label boundaries: "evil-example.com" is not blocked by "example.com".
func IsBlocked(hostname string, blocklist []string) bool {
	return Decide(hostname, blocklist).Blocked
}

// Decide is IsBlocked returning the matched entry.
func Decide(hostname string, blocklist []string) BlockDecision {
	host := utils.CanonicalHostname(hostname)
	if host == "" {
		return Allow()
	}
	for _, raw := range blocklist {
		entry := utils.CanonicalHostname(raw)
		if matchesEntry(host, entry) {
			return BlockedBy(entry)
		}
	}
	return Allow()
}

func matchesEntry(host, entry string) bool {
	if entry == "" {
		return false
	}
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// ListMatcher is the per-call Matcher: every Decide normalizes the whole list.
type ListMatcher []string

func (m ListMatcher) Decide(hostname string) BlockDecision {
	return Decide(hostname, m)
}

// NormalizeList returns the canonical form of every non-empty entry, keeping order
// and dropping repeats.
func NormalizeList(list []string) BlockedDomainList {
	out := make(BlockedDomainList, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, raw := range list {
		entry := utils.CanonicalHostname(raw)
		if entry == "" {
			continue
		}
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

var _ Matcher = ListMatcher(nil)
