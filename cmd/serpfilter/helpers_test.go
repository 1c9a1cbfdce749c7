package main

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/haukened/serpfilter/internal/serp/dom"
)

func findNode(t *testing.T, d *dom.Document, sel string) *html.Node {
	t.Helper()
	var n *html.Node
	d.Read(func(doc *goquery.Document) {
		if s := doc.Find(sel); s.Length() > 0 {
			n = s.Get(0)
		}
	})
	require.NotNil(t, n, "selector %q", sel)
	return n
}
