package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/haukened/serpfilter/internal/serp/dom"
)

type filterOptions struct {
	pageURL      string
	output       string
	late         []string
	lateInterval time.Duration
	settle       time.Duration
}

func newFilterCmd(root *rootOptions) *cobra.Command {
	opts := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "filter [page.html|-]",
		Short: "Filter a saved results page and print the result",
		Long: "Loads an HTML results page, runs the filter the way it runs in a live page " +
			"(bootstrap passes, then debounced passes as --late fragments are appended to the " +
			"results container) and renders the document once it has settled.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return runFilter(cmd.Context(), root.app, input, opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.pageURL, "url", "", "URL the page was served from (default SERP_FILTER_PAGE_URL)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringArrayVar(&opts.late, "late", nil, "HTML fragment file appended after load; repeatable")
	cmd.Flags().DurationVar(&opts.lateInterval, "late-interval", 200*time.Millisecond, "delay between late fragments")
	cmd.Flags().DurationVar(&opts.settle, "settle", 2*time.Second, "time to let passes and the notification run before rendering")
	return cmd
}

func runFilter(ctx context.Context, app *Application, input string, opts *filterOptions, stdin io.Reader, stdout, stderr io.Writer) error {
	page, err := openInput(input, stdin)
	if err != nil {
		return err
	}
	defer page.Close()

	fragments := make([]string, 0, len(opts.late))
	for _, path := range opts.late {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read fragment %s: %w", path, err)
		}
		fragments = append(fragments, string(b))
	}

	doc := dom.New()
	p, err := app.buildPipeline(doc, opts.pageURL)
	if err != nil {
		return err
	}
	if err := p.controller.Start(ctx); err != nil {
		return err
	}
	defer p.presenter.Close()
	defer p.controller.Stop()

	if err := doc.Load(page); err != nil {
		return err
	}

	for _, frag := range fragments {
		if !sleep(ctx, opts.lateInterval) {
			return ctx.Err()
		}
		if err := appendToResults(doc, app.config.Filter.ResultContainers, frag); err != nil {
			return err
		}
	}
	if !sleep(ctx, opts.settle) {
		return ctx.Err()
	}

	p.controller.Stop()
	state := p.controller.State()
	stats := p.engine.RepoStats()
	fmt.Fprintf(stderr, "hidden %d result cards (epoch %d, %d rules, cache hits %d misses %d)\n",
		state.CumulativeHidden, state.Epoch, stats.Entries, stats.Hits, stats.Misses)

	return writeOutput(doc, opts.output, stdout)
}

func openInput(input string, stdin io.Reader) (io.ReadCloser, error) {
	if input == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return f, nil
}

// appendToResults appends fragment to the first results container present,
// else to <body>.
func appendToResults(doc *dom.Document, selectors []string, fragment string) error {
	return doc.Mutate(func(m *dom.Mutator) error {
		parent := resultsParent(m.Doc(), selectors)
		if parent == nil {
			return dom.ErrDetached
		}
		_, err := m.AppendHTML(parent, fragment)
		return err
	})
}

func resultsParent(doc *goquery.Document, selectors []string) *html.Node {
	for _, sel := range selectors {
		if s := doc.Find(sel); s.Length() > 0 {
			return s.Get(0)
		}
	}
	return dom.Body(doc)
}

func writeOutput(doc *dom.Document, path string, stdout io.Writer) error {
	if path == "" || path == "-" {
		return doc.Render(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := doc.Render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
