package domain

import "slices"

// BlockedDomainsKey is the store key holding the blocklist.
const BlockedDomainsKey = "blockedDomains"

// BlockedDomainList is an ordered list of normalized domains
// (lowercase, no leading "www.", no scheme, no path).
type BlockedDomainList []string

// Contains reports whether domain is already present verbatim.
func (l BlockedDomainList) Contains(domain string) bool {
	return slices.Contains(l, domain)
}

// Without returns a copy of the list with every occurrence of domain removed.
func (l BlockedDomainList) Without(domain string) BlockedDomainList {
	out := make(BlockedDomainList, 0, len(l))
	for _, d := range l {
		if d != domain {
			out = append(out, d)
		}
	}
	return out
}

// StoreChange is delivered to store subscribers after a successful write.
type StoreChange struct {
	Key      string
	OldValue []string
	NewValue []string
}
