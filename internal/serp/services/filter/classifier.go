package filter

import (
	"net/url"
	"strings"

	"github.com/haukened/serpfilter/internal/serp/common/utils"
)

// EndpointRule describes a search-engine utility URL that never represents a
// result destination. Host matches itself and any subdomain; an empty
// PathPrefix matches every path.
type EndpointRule struct {
	Host       string
	PathPrefix string
}

func (r EndpointRule) matches(host, path string) bool {
	if host != r.Host && !strings.HasSuffix(host, "."+r.Host) {
		return false
	}
	return r.PathPrefix == "" || strings.HasPrefix(path, r.PathPrefix)
}

// DefaultEndpointRules cover Google's own navigation, redirect, account and cache hosts.
var DefaultEndpointRules = []EndpointRule{
	{Host: "google.com", PathPrefix: "/search"},
	{Host: "google.com", PathPrefix: "/url"},
	{Host: "google.com", PathPrefix: "/maps"},
	{Host: "accounts.google.com"},
	{Host: "support.google.com"},
	{Host: "policies.google.com"},
	{Host: "webcache.googleusercontent.com"},
}

// utilityPaths are applied to the registrable domain of the page itself so
// localized engines (google.co.jp, google.de) are handled without a table.
var utilityPaths = []string{"/search", "/url", "/maps"}

// Classifier derives the destination hostname of a link.
type Classifier struct {
	base  *url.URL
	rules []EndpointRule
}

// NewClassifier returns a Classifier resolving relative links against pageURL.
// An empty or unparsable pageURL disables resolution; relative links are then rejected.
func NewClassifier(pageURL string, rules []EndpointRule) *Classifier {
	c := &Classifier{rules: append([]EndpointRule(nil), rules...)}
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || base.Host == "" {
		return c
	}
	c.base = base
	if apex := utils.RegistrableDomain(base.Hostname()); apex != "" {
		for _, p := range utilityPaths {
			c.rules = append(c.rules, EndpointRule{Host: apex, PathPrefix: p})
		}
	}
	return c
}

// Classify returns the lowercase destination host of href, or false when the
// link is unparsable, not http(s), or an internal utility endpoint.
func (c *Classifier) Classify(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if c.base != nil {
		u = c.base.ResolveReference(u)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	for _, r := range c.rules {
		if r.matches(host, u.Path) {
			return "", false
		}
	}
	return host, true
}
