package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/serpfilter/internal/serp/repos/blocklist/parsers"
	"github.com/haukened/serpfilter/internal/serp/services/settings"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List blocked domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.app.settings.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No blocked domains")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tDOMAIN")
			for i, d := range list {
				_, _ = fmt.Fprintf(w, "%d\t%s\n", i+1, d)
			}
			if err := w.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to flush table output: %v\n", err)
			}
			return nil
		},
	}
}

// printMessage writes a settings message the way the popup showed it.
func printMessage(cmd *cobra.Command, msg settings.Message) {
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", msg.Kind, msg.Text)
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <domain>...",
		Short: "Block one or more domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, raw := range args {
				res, err := opts.app.settings.Add(cmd.Context(), raw)
				printMessage(cmd, res.Message)
				if err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d domains not added", failed, len(args))
			}
			return nil
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <domain>...",
		Aliases: []string{"rm"},
		Short:   "Unblock one or more domains",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, raw := range args {
				res, err := opts.app.settings.Remove(cmd.Context(), raw)
				printMessage(cmd, res.Message)
				if err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d domains not removed", failed, len(args))
			}
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge domains from a plain list, hosts file, or YAML/JSON/TOML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.app.settings.Import(cmd.Context(), args[0], parsers.Format(format))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d, already present %d, invalid %d\n",
				report.Added, report.Duplicates, report.Invalid)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(parsers.FormatAuto), "auto, plain, hosts, yaml, json or toml")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the blocklist as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return opts.app.settings.Export(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := opts.app.settings.Export(cmd.Context(), f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show blocklist store metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := opts.app.store.Stats()
			updated := "never"
			if st.UpdatedUnix > 0 {
				updated = time.Unix(st.UpdatedUnix, 0).UTC().Format(time.RFC3339)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 4, ' ', 0)
			_, _ = fmt.Fprintf(w, "keys\t%d\n", st.Keys)
			_, _ = fmt.Fprintf(w, "version\t%d\n", st.Version)
			_, _ = fmt.Fprintf(w, "updated\t%s\n", updated)
			return w.Flush()
		},
	}
}
