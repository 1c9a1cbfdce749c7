package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/haukened/serpfilter/internal/serp/common/log"
	"github.com/haukened/serpfilter/internal/serp/config"
)

type rootOptions struct {
	storePath string
	logLevel  string
	app       *Application
}

// run executes one command line and releases the store even when the command fails.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if opts.app != nil {
		if cerr := opts.app.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Hide search results from blocked domains",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
				return fmt.Errorf("logging configuration error: %w", err)
			}

			path := opts.storePath
			if path == "" {
				path = cfg.Store.Path
			}
			if path == "" {
				path = defaultStorePath()
			}

			app, err := buildApplication(cfg, path)
			if err != nil {
				return err
			}
			opts.app = app
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.storePath, "db", "", `blocklist database path (":memory:" keeps it in memory)`)
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override SERP_LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newRemoveCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newStatsCmd(opts),
		newFilterCmd(opts),
	)
	return cmd
}
