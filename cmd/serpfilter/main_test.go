package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/serpfilter/internal/serp/config"
	"github.com/haukened/serpfilter/internal/serp/dom"
)

const resultsPage = `<!DOCTYPE html><html><head><title>results</title></head><body>
<div id="search"><div id="rso">
<div class="g" id="spam"><h3>Spam</h3><div><a href="https://sub.spam.example/article">spam</a></div></div>
<div class="g" id="lookalike"><h3>Org</h3><div><a href="https://spam.example.org/">org</a></div></div>
<div class="g" id="other"><h3>Other</h3><div><a href="https://othersite.com/">other</a></div></div>
</div></div>
</body></html>`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SERP_LOG_LEVEL", "error")
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestCLI_AddListRemove(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nested", "blocklist.db")

	out, err := execute(t, "", "--db", db, "list")
	require.NoError(t, err)
	assert.Equal(t, "No blocked domains\n", out)

	out, err = execute(t, "", "--db", db, "add", "https://www.Spam.Example/page", "other.org")
	require.NoError(t, err)
	assert.Equal(t, "[success] Domain added\n[success] Domain added\n", out)

	out, err = execute(t, "", "--db", db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "DOMAIN")
	assert.Contains(t, out, "spam.example")
	assert.Contains(t, out, "other.org")

	out, err = execute(t, "", "--db", db, "add", "spam.example", "bad_domain")
	assert.Error(t, err)
	assert.Contains(t, out, "[error] This domain is already registered")
	assert.Contains(t, out, "[error] Please enter a valid domain")

	out, err = execute(t, "", "--db", db, "rm", "other.org")
	require.NoError(t, err)
	assert.Equal(t, "[success] Domain removed\n", out)

	out, err = execute(t, "", "--db", db, "export")
	require.NoError(t, err)
	assert.Equal(t, "blockedDomains:\n  - spam.example\n", out)

	out, err = execute(t, "", "--db", db, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "version")
}

func TestCLI_ImportExportFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "blocklist.db")
	hosts := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(hosts, []byte("127.0.0.1 localhost\n0.0.0.0 ads.example.com\n0.0.0.0 tracker.example.net # t\n"), 0o644))

	out, err := execute(t, "", "--db", db, "import", hosts)
	require.NoError(t, err)
	assert.Contains(t, out, "added 2")

	exported := filepath.Join(dir, "out.yaml")
	_, err = execute(t, "", "--db", db, "export", "-o", exported)
	require.NoError(t, err)
	b, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, "blockedDomains:\n  - ads.example.com\n  - tracker.example.net\n", string(b))

	_, err = execute(t, "", "--db", db, "import", "--format", "xml", hosts)
	assert.Error(t, err)
}

func TestCLI_Filter(t *testing.T) {
	t.Setenv("SERP_FILTER_BOOTSTRAP_DELAYS", "1ms,5ms")
	t.Setenv("SERP_FILTER_DEBOUNCE_WINDOW", "5ms")
	t.Setenv("SERP_NOTIFY_DELAY", "1ms")

	dir := t.TempDir()
	db := filepath.Join(dir, "blocklist.db")
	_, err := execute(t, "", "--db", db, "add", "spam.example")
	require.NoError(t, err)

	late := filepath.Join(dir, "late.html")
	require.NoError(t, os.WriteFile(late, []byte(`<div class="g" id="late"><h3>Late</h3><a href="https://www.spam.example/x">late</a></div>`), 0o644))

	out, err := execute(t, resultsPage, "--db", db, "filter", "--late", late, "--late-interval", "20ms", "--settle", "300ms")
	require.NoError(t, err)

	doc, err := dom.ParseString(out)
	require.NoError(t, err)
	hidden := func(id string) bool {
		n := findNode(t, doc, "#"+id)
		return dom.AttrOr(n, "data-filtered", "") == "true" && dom.Style(n, "display") == "none"
	}
	assert.True(t, hidden("spam"))
	assert.False(t, hidden("lookalike"))
	assert.False(t, hidden("other"))
	assert.True(t, hidden("late"))
	assert.Contains(t, out, `id="filter-notification"`)
}

func TestBuildApplication_MemoryStore(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg, memoryStore)
	require.NoError(t, err)
	defer app.Close()

	res, err := app.settings.Add(context.Background(), "spam.example")
	require.NoError(t, err)
	assert.Len(t, res.Domains, 1)

	doc, err := dom.ParseString(resultsPage)
	require.NoError(t, err)
	p, err := app.buildPipeline(doc, "")
	require.NoError(t, err)
	assert.NotNil(t, p.engine)
	assert.NotNil(t, p.controller)
}

func TestDefaultStorePath(t *testing.T) {
	assert.True(t, strings.HasSuffix(defaultStorePath(), ".db"))
}
