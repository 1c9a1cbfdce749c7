package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	logpkg "github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/domain"
)

// ParseStructured loads a YAML, JSON or TOML document and returns the normalized
// entries found under the "blockedDomains" key, e.g.
//
//	blockedDomains:
//	  - spam.example
//	  - www.other.org
func ParseStructured(path string, logger logpkg.Logger) ([]string, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if !k.Exists(domain.BlockedDomainsKey) {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingKey)
	}

	col := newCollector()
	for _, raw := range k.Strings(domain.BlockedDomainsKey) {
		name := normalizeDomainName(raw)
		if !isValidFQDN(name) {
			logger.Debug(map[string]any{"source": path, "raw": raw}, "structured_skip_invalid_fqdn")
			continue
		}
		col.add(name)
	}
	logger.Debug(map[string]any{"source": path, "count": len(col.out)}, "parse_structured_done")
	return col.out, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
