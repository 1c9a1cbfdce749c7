// Package settings manages the user's blocklist: the operations behind the
// CLI's list/add/remove/import/export commands.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/domain"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/parsers"
)

var (
	ErrEmptyDomain     = errors.New("domain is empty")
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrDuplicateDomain = errors.New("domain already blocked")
	ErrUnknownDomain   = errors.New("domain not in blocklist")
)

// Kind classifies a user-facing message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Message is the transient feedback shown after an operation.
type Message struct {
	Kind Kind
	Text string
}

// Result is the updated list plus the feedback for the operation that produced it.
type Result struct {
	Domains domain.BlockedDomainList
	Message Message
}

// ImportReport counts what happened to each entry of an imported file.
type ImportReport struct {
	Added      int
	Duplicates int
	Invalid    int
}

var (
	schemePrefix = regexp.MustCompile(`^https?://`)
	domainEntry  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*\.[a-zA-Z]{2,}$`)
)

// validDomainEntry checks the hostname shape accepted into the blocklist.
func validDomainEntry(fl validator.FieldLevel) bool {
	return domainEntry.MatchString(fl.Field().String())
}

// NormalizeInput turns user input such as "https://www.Example.com/path"
// into the stored form "example.com". It does not validate.
func NormalizeInput(raw string) string {
	d := strings.TrimSpace(raw)
	d = schemePrefix.ReplaceAllString(strings.ToLower(d), "")
	d = strings.TrimPrefix(d, "www.")
	d, _, _ = strings.Cut(d, "/")
	return d
}

type Service struct {
	store    blocklist.Store
	validate *validator.Validate
	logger   log.Logger
}

// New returns a Service persisting to store.
func New(store blocklist.Store, logger log.Logger) (*Service, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("domain_entry", validDomainEntry); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Service{store: store, validate: v, logger: logger}, nil
}

// List returns the stored blocklist.
func (s *Service) List(ctx context.Context) (domain.BlockedDomainList, error) {
	list, err := s.store.Get(ctx, domain.BlockedDomainsKey)
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	return domain.BlockedDomainList(list), nil
}

// Check normalizes raw and validates it, returning the storable entry.
func (s *Service) Check(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyDomain
	}
	d := NormalizeInput(raw)
	if err := s.validate.Var(d, "required,domain_entry"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, raw)
	}
	return d, nil
}

// Add validates raw and appends it to the blocklist.
func (s *Service) Add(ctx context.Context, raw string) (Result, error) {
	d, err := s.Check(raw)
	if err != nil {
		return s.failure(ctx, err), err
	}

	list, err := s.List(ctx)
	if err != nil {
		return Result{Message: Message{Kind: KindError, Text: "Could not read the blocklist"}}, err
	}
	if list.Contains(d) {
		err := fmt.Errorf("%w: %s", ErrDuplicateDomain, d)
		return Result{Domains: list, Message: errorMessage(err)}, err
	}

	updated := append(list, d)
	if err := s.store.Set(ctx, domain.BlockedDomainsKey, updated); err != nil {
		return Result{Domains: list, Message: Message{Kind: KindError, Text: "Could not save the blocklist"}}, fmt.Errorf("write blocklist: %w", err)
	}
	s.logger.Info(map[string]any{"domain": d, "entries": len(updated)}, "domain_added")
	return Result{Domains: updated, Message: Message{Kind: KindSuccess, Text: "Domain added"}}, nil
}

// Remove deletes every occurrence of d from the blocklist.
func (s *Service) Remove(ctx context.Context, raw string) (Result, error) {
	d := NormalizeInput(raw)
	if d == "" {
		return s.failure(ctx, ErrEmptyDomain), ErrEmptyDomain
	}

	list, err := s.List(ctx)
	if err != nil {
		return Result{Message: Message{Kind: KindError, Text: "Could not read the blocklist"}}, err
	}
	if !list.Contains(d) {
		err := fmt.Errorf("%w: %s", ErrUnknownDomain, d)
		return Result{Domains: list, Message: errorMessage(err)}, err
	}

	updated := list.Without(d)
	if err := s.store.Set(ctx, domain.BlockedDomainsKey, updated); err != nil {
		return Result{Domains: list, Message: Message{Kind: KindError, Text: "Could not save the blocklist"}}, fmt.Errorf("write blocklist: %w", err)
	}
	s.logger.Info(map[string]any{"domain": d, "entries": len(updated)}, "domain_removed")
	return Result{Domains: updated, Message: Message{Kind: KindSuccess, Text: "Domain removed"}}, nil
}

// Import merges the domains of a plain, hosts, YAML, JSON or TOML file into
// the blocklist. Invalid and already-present entries are counted and skipped.
func (s *Service) Import(ctx context.Context, path string, format parsers.Format) (ImportReport, error) {
	var report ImportReport

	entries, err := parsers.ParseFile(path, format, s.logger)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", path, err)
	}
	list, err := s.List(ctx)
	if err != nil {
		return report, err
	}

	updated := append(domain.BlockedDomainList(nil), list...)
	for _, raw := range entries {
		d, err := s.Check(raw)
		if err != nil {
			report.Invalid++
			s.logger.Debug(map[string]any{"entry": raw, "source": path}, "import_entry_invalid")
			continue
		}
		if updated.Contains(d) {
			report.Duplicates++
			continue
		}
		updated = append(updated, d)
		report.Added++
	}

	if report.Added == 0 {
		return report, nil
	}
	if err := s.store.Set(ctx, domain.BlockedDomainsKey, updated); err != nil {
		return report, fmt.Errorf("write blocklist: %w", err)
	}
	s.logger.Info(map[string]any{
		"source":     path,
		"added":      report.Added,
		"duplicates": report.Duplicates,
		"invalid":    report.Invalid,
	}, "blocklist_imported")
	return report, nil
}

type exportDoc struct {
	BlockedDomains []string `yaml:"blockedDomains"`
}

// Export writes the blocklist as YAML in the layout Import reads back.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(exportDoc{BlockedDomains: append([]string{}, list...)}); err != nil {
		return fmt.Errorf("encode blocklist: %w", err)
	}
	return enc.Close()
}

// failure builds an error Result carrying the current list when it can be read.
func (s *Service) failure(ctx context.Context, err error) Result {
	list, _ := s.List(ctx)
	return Result{Domains: list, Message: errorMessage(err)}
}

func errorMessage(err error) Message {
	text := "Something went wrong"
	switch {
	case errors.Is(err, ErrEmptyDomain):
		text = "Please enter a domain"
	case errors.Is(err, ErrInvalidDomain):
		text = "Please enter a valid domain"
	case errors.Is(err, ErrDuplicateDomain):
		text = "This domain is already registered"
	case errors.Is(err, ErrUnknownDomain):
		text = "This domain is not registered"
	}
	return Message{Kind: KindError, Text: text}
}
