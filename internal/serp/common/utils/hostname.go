package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// CanonicalHostname is CanonicalDNSName with a single leading "www." label removed.
// Blocklist entries and link hostnames are both compared in this form.
func CanonicalHostname(name string) string {
	return strings.TrimPrefix(CanonicalDNSName(name), "www.")
}

// RegistrableDomain returns the eTLD+1 of name ("www.google.co.jp" gives
// "google.co.jp"). Names the public suffix list cannot place, such as single
// labels, come back in canonical form.
func RegistrableDomain(name string) string {
	name = CanonicalDNSName(name)
	if d, err := publicsuffix.EffectiveTLDPlusOne(name); err == nil {
		return d
	}
	return name
}
