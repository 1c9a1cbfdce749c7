package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Filter   FilterConfig   `koanf:"filter"`
	Notify   NotifyConfig   `koanf:"notify"`
	Decision DecisionConfig `koanf:"decision"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type StoreConfig struct {
	// Path of the bbolt database. Empty keeps the blocklist in memory.
	Path string `koanf:"path"`
}

type FilterConfig struct {
	// BootstrapDelays schedule the passes run right after start.
	BootstrapDelays []time.Duration `koanf:"bootstrap_delays" validate:"required,min=1,dive,gt=0"`

	// DebounceWindow is the quiet interval after the last mutation before a pass runs.
	DebounceWindow time.Duration `koanf:"debounce_window" validate:"gt=0"`

	// MaxCardDepth bounds the ancestor walk from a link to its result card.
	MaxCardDepth int `koanf:"max_card_depth" validate:"gte=1,lte=64"`

	// ContainerTags are the element names a result card may have.
	ContainerTags []string `koanf:"container_tags" validate:"required,min=1,dive,required,alpha"`

	// ResultContainers are tried in order when choosing what to observe.
	ResultContainers []string `koanf:"result_containers" validate:"required,min=1,dive,required,css_selector"`

	// PageURL resolves relative links and derives the engine's own utility endpoints.
	PageURL string `koanf:"page_url" validate:"omitempty,url"`
}

type NotifyConfig struct {
	Delay           time.Duration `koanf:"delay" validate:"gte=0"`
	DisplayDuration time.Duration `koanf:"display_duration" validate:"gt=0"`
	FadeDuration    time.Duration `koanf:"fade_duration" validate:"gte=0"`
}

type DecisionConfig struct {
	// CacheSize is the number of host decisions memoized; 0 disables the cache.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// BloomFPRate is the target false-positive rate of the negative pre-check.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG mirrors the timings and selectors the filter was tuned with.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Store: StoreConfig{
		Path: "",
	},
	Filter: FilterConfig{
		BootstrapDelays:  []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second},
		DebounceWindow:   300 * time.Millisecond,
		MaxCardDepth:     15,
		ContainerTags:    []string{"div"},
		ResultContainers: []string{"#search", "#rso", "#center_col"},
		PageURL:          "https://www.google.com/search",
	},
	Notify: NotifyConfig{
		Delay:           1500 * time.Millisecond,
		DisplayDuration: 3 * time.Second,
		FadeDuration:    300 * time.Millisecond,
	},
	Decision: DecisionConfig{
		CacheSize:   1000,
		BloomFPRate: 0.01,
	},
}

// sections are the nested groups an env key can address, e.g.
// SERP_FILTER_DEBOUNCE_WINDOW -> filter.debounce_window.
var sections = []string{"log", "store", "filter", "notify", "decision"}

func envKey(raw string) string {
	key := strings.ToLower(strings.TrimPrefix(raw, "SERP_"))
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(key, s+"_"); ok {
			return s + "." + rest
		}
	}
	return key
}

// validSelector accepts the simple selectors used to find result containers:
// "#id", ".class" or a bare tag name.
func validSelector(fl validator.FieldLevel) bool {
	sel := strings.TrimSpace(fl.Field().String())
	if sel == "" || strings.ContainsAny(sel, " >+~,") {
		return false
	}
	body := strings.TrimLeft(sel, "#.")
	if body == "" || len(sel)-len(body) > 1 {
		return false
	}
	for _, r := range body {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// envLoader loads environment variables with the prefix "SERP_".
// Values with commas or spaces become lists.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SERP_",
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(key)
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("css_selector", validSelector)
}

// Load applies defaults, then SERP_* environment overrides, and validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
