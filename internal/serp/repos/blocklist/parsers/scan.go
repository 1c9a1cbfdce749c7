package parsers

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	logpkg "github.com/haukened/serpfilter/internal/serp/common/log"
)

// entryFunc handles one content line: BOM, blank lines and comments are
// already gone and the body is trimmed.
type entryFunc func(line int, body string, col *collector)

// scanList drives a line-oriented list format through each and returns the
// collected names in first-seen order.
func scanList(r io.Reader, source, format string, logger logpkg.Logger, each entryFunc) ([]string, error) {
	logger = logger.With(map[string]any{"source": source, "format": format})
	sc := bufio.NewScanner(r)
	col := newCollector()

	line := 0
	for sc.Scan() {
		line++
		text := stripLineBOM(sc.Text())
		if empty, comment := classifyLine(text); empty || comment {
			continue
		}
		each(line, strings.TrimSpace(stripInlineComment(text)), col)
	}
	if err := sc.Err(); err != nil {
		logger.Warn(map[string]any{"line": line + 1, "error": err}, "list_scan_failed")
		return nil, fmt.Errorf("read %s list %s: %w", format, source, err)
	}

	logger.Debug(map[string]any{"count": len(col.out)}, "list_parsed")
	return col.out, nil
}
