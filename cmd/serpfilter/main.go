package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/config"
	"github.com/haukened/serpfilter/internal/serp/dom"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/bloom"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/bolt"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/lru"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/memstore"
	"github.com/haukened/serpfilter/internal/serp/services/controller"
	"github.com/haukened/serpfilter/internal/serp/services/filter"
	"github.com/haukened/serpfilter/internal/serp/services/notify"
	"github.com/haukened/serpfilter/internal/serp/services/settings"
)

const (
	version = "0.1.0-dev"
	appName = "serpfilter"

	// memoryStore selects the in-process store instead of a database file.
	memoryStore = ":memory:"
)

// Application holds the components shared by every command.
type Application struct {
	config   *config.AppConfig
	clock    clock.Clock
	logger   log.Logger
	store    blocklist.Store
	settings *settings.Service
}

// pipeline is one filtering session bound to a document.
type pipeline struct {
	engine     *filter.Engine
	presenter  *notify.Presenter
	controller *controller.Controller
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown_signal_received")
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildApplication opens the blocklist store and the settings service.
func buildApplication(cfg *config.AppConfig, storePath string) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	store, err := openStore(storePath, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist store: %w", err)
	}

	svc, err := settings.New(store, logger.With(map[string]any{"component": "settings"}))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build settings service: %w", err)
	}

	log.Debug(map[string]any{
		"store": storePath,
		"stats": store.Stats(),
	}, "blocklist_store_opened")

	return &Application{
		config:   cfg,
		clock:    clk,
		logger:   logger,
		store:    store,
		settings: svc,
	}, nil
}

func openStore(path string, clk clock.Clock) (blocklist.Store, error) {
	if path == memoryStore {
		return memstore.New(clk), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return bolt.New(path, clk)
}

// defaultStorePath is used when neither the flag nor SERP_STORE_PATH is set.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", appName+".db")
	}
	return filepath.Join(dir, appName, "blocklist.db")
}

// buildPipeline wires the decision layer, engine, presenter and controller
// for doc.
func (app *Application) buildPipeline(doc *dom.Document, pageURL string) (*pipeline, error) {
	cfg := app.config

	cache, err := lru.New(cfg.Decision.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	repo := blocklist.NewRepository(cache, bloom.NewFactory(), cfg.Decision.BloomFPRate, app.clock)

	presenter := notify.New(notify.Options{
		Doc:             doc,
		Clock:           app.clock,
		Logger:          app.logger.With(map[string]any{"component": "notify"}),
		DisplayDuration: cfg.Notify.DisplayDuration,
		FadeDuration:    cfg.Notify.FadeDuration,
	})

	if pageURL == "" {
		pageURL = cfg.Filter.PageURL
	}
	engine := filter.NewEngine(filter.EngineOptions{
		Doc:         doc,
		Store:       app.store,
		Repository:  repo,
		Classifier:  filter.NewClassifier(pageURL, filter.DefaultEndpointRules),
		Locator:     filter.NewLocator(cfg.Filter.MaxCardDepth, cfg.Filter.ContainerTags),
		Presenter:   presenter,
		Clock:       app.clock,
		Logger:      app.logger.With(map[string]any{"component": "filter"}),
		NotifyDelay: cfg.Notify.Delay,
	})

	ctl := controller.New(controller.Options{
		Doc:                doc,
		Engine:             engine,
		Store:              app.store,
		Clock:              app.clock,
		Logger:             app.logger.With(map[string]any{"component": "controller"}),
		BootstrapDelays:    cfg.Filter.BootstrapDelays,
		DebounceWindow:     cfg.Filter.DebounceWindow,
		ContainerSelectors: cfg.Filter.ResultContainers,
	})

	log.Info(map[string]any{
		"page_url":        pageURL,
		"cache_size":      cfg.Decision.CacheSize,
		"bloom_fp_rate":   cfg.Decision.BloomFPRate,
		"max_card_depth":  cfg.Filter.MaxCardDepth,
		"debounce_window": cfg.Filter.DebounceWindow.String(),
	}, "filter_pipeline_configured")

	return &pipeline{engine: engine, presenter: presenter, controller: ctl}, nil
}

// Close releases the store.
func (app *Application) Close() error {
	return app.store.Close()
}
