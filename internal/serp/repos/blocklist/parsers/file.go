package parsers

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	logpkg "github.com/haukened/serpfilter/internal/serp/common/log"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported blocklist format")
	ErrMissingKey        = errors.New("missing blockedDomains key")
)

// Format names an import file layout.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatPlain Format = "plain"
	FormatHosts Format = "hosts"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatTOML  Format = "toml"
)

// ParseFile reads path in the given format. FormatAuto picks a structured parser
// by extension, otherwise sniffs the first significant line: an IP address in
// the first column means a hosts file.
func ParseFile(path string, format Format, logger logpkg.Logger) ([]string, error) {
	if format == FormatAuto || format == "" {
		detected, err := detectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	switch format {
	case FormatYAML, FormatJSON, FormatTOML:
		return ParseStructured(path, logger)
	case FormatPlain, FormatHosts:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if format == FormatHosts {
			return ParseHostsFile(f, path, logger)
		}
		return ParsePlainList(f, path, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}
		fields := strings.Fields(stripInlineComment(line))
		if len(fields) >= 2 && net.ParseIP(fields[0]) != nil {
			return FormatHosts, nil
		}
		return FormatPlain, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return FormatPlain, nil
}
