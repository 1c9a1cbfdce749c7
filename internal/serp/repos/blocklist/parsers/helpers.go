package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/serpfilter/internal/serp/common/utils"
)

// isValidFQDN checks whether the provided string is a plausible domain name:
//   - The total length must not exceed 255 characters and no whitespace may appear.
//   - The name must contain at least two labels.
//   - Each label must be between 1 and 63 characters long.
//   - The first label must start with a letter or number.
func isValidFQDN(name string) bool {
	if len(name) > 255 || strings.ContainsFunc(name, unicode.IsSpace) {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
	}
	runes := []rune(labels[0])
	return isAlphaNumeric(runes[0])
}

// normalizeDomainName trims whitespace, removes any leading "*." or "." suffix
// markers (every blocklist entry already covers its subdomains) and returns the
// canonical hostname without "www.".
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalHostname(name)
}

// isAlphaNumeric reports whether the given rune is a letter or digit.
func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripLineBOM removes a UTF-8 byte order mark at the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether the trimmed line is empty or a full-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// collector keeps first-seen order while dropping repeats.
type collector struct {
	seen map[string]struct{}
	out  []string
}

func newCollector() *collector {
	return &collector{seen: map[string]struct{}{}, out: make([]string, 0, 64)}
}

// add reports false when name was already collected.
func (c *collector) add(name string) bool {
	if _, ok := c.seen[name]; ok {
		return false
	}
	c.seen[name] = struct{}{}
	c.out = append(c.out, name)
	return true
}
