// Package dom is a small live-document model over golang.org/x/net/html.
//
// A Document is shared between the host (which loads and mutates content) and
// the filtering engine. Every Read or Mutate call is atomic; structural and
// attribute changes made through a Mutator are reported to observers after the
// call returns, in the spirit of a browser MutationObserver.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	ErrAlreadyLoaded = errors.New("document already loaded")
	ErrDetached      = errors.New("node is not attached to the document")
)

const skeleton = "<html><head></head><body></body></html>"

// Document is a mutable HTML document with readiness and mutation observation.
type Document struct {
	mu        sync.Mutex
	doc       *goquery.Document
	ready     bool
	onReady   []func()
	observers []*observer
}

// New returns a document that is still loading: it holds an empty skeleton
// until Load supplies the parsed content.
func New() *Document {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(skeleton))
	return &Document{doc: doc}
}

// Parse returns a ready document built from r.
func Parse(r io.Reader) (*Document, error) {
	d := New()
	if err := d.Load(r); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseString is Parse for an in-memory string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Load parses r as the document content and fires the ready callbacks.
func (d *Document) Load(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	d.mu.Lock()
	if d.ready {
		d.mu.Unlock()
		return ErrAlreadyLoaded
	}
	d.doc = doc
	d.ready = true
	fns := d.onReady
	d.onReady = nil
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// IsReady reports whether Load has completed.
func (d *Document) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// OnReady runs fn once the document is loaded: immediately when it already is,
// otherwise from within Load.
func (d *Document) OnReady(fn func()) {
	d.mu.Lock()
	if !d.ready {
		d.onReady = append(d.onReady, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

// Read runs fn with exclusive access to the document tree.
// fn must not retain nodes for mutation outside a later Mutate call.
func (d *Document) Read(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// Mutate runs fn with a Mutator. Records produced by fn are delivered to
// matching observers after the document lock is released, even if fn fails.
func (d *Document) Mutate(fn func(m *Mutator) error) error {
	d.mu.Lock()
	m := &Mutator{doc: d.doc}
	err := fn(m)
	deliveries := d.route(m.records)
	d.mu.Unlock()

	for _, dl := range deliveries {
		dl.fn(dl.records)
	}
	return err
}

// Render writes the serialized document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return err
		}
	}
	return nil
}

// HTML returns the serialized document.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Root returns the document node.
func Root(doc *goquery.Document) *html.Node {
	if len(doc.Nodes) == 0 {
		return nil
	}
	return doc.Nodes[0]
}

// Body returns the <body> element, or nil.
func Body(doc *goquery.Document) *html.Node {
	sel := doc.Find("body")
	if sel.Length() == 0 {
		return nil
	}
	return sel.Nodes[0]
}

// IsAttached reports whether n is still reachable from a document node.
func IsAttached(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == root {
			return true
		}
	}
	return false
}
