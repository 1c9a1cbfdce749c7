package parsers

import (
	"io"

	logpkg "github.com/haukened/serpfilter/internal/serp/common/log"
)

// ParsePlainList reads one domain per line. "#" starts a comment anywhere on
// a line. Leading "*." or "." markers are accepted and dropped since every
// entry already covers its subdomains.
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	return scanList(r, source, "plain", logger, func(line int, body string, col *collector) {
		name := normalizeDomainName(body)
		switch {
		case !isValidFQDN(name):
			logger.Debug(map[string]any{"line": line, "raw": body}, "plain_skip_invalid")
		case !col.add(name):
			logger.Debug(map[string]any{"line": line, "name": name}, "plain_skip_duplicate")
		}
	})
}
