package parsers

import (
	"io"
	"strings"

	logpkg "github.com/haukened/serpfilter/internal/serp/common/log"
)

// ParseHostsFile reads /etc/hosts-style lines ("0.0.0.0 ads.example.com
// tracker.example.net") and collects every hostname after the address.
// Hosts syntax has no wildcards, so tokens containing "*" or starting with
// "." are rejected rather than treated as suffix markers.
func ParseHostsFile(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	return scanList(r, source, "hosts", logger, func(line int, body string, col *collector) {
		fields := strings.Fields(body)
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": line}, "hosts_no_hostnames")
			return
		}
		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": line, "raw": raw}, "hosts_skip_wildcard")
				continue
			}
			name := normalizeDomainName(raw)
			switch {
			case !isValidFQDN(name):
				logger.Debug(map[string]any{"line": line, "raw": raw}, "hosts_skip_invalid")
			case !col.add(name):
				logger.Debug(map[string]any{"line": line, "name": name}, "hosts_skip_duplicate")
			}
		}
	})
}
