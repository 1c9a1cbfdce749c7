package filter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/haukened/serpfilter/internal/serp/dom"
)

const headingSelector = "h1, h2, h3, h4, h5, h6"

// Predicate reports whether n is a candidate container.
type Predicate func(n *html.Node) bool

// Traversal finds the nearest node related to start that satisfies pred.
type Traversal interface {
	Nearest(start *html.Node, pred Predicate) (*html.Node, bool)
}

// BoundedAscent walks from start up through its ancestors, visiting at most
// MaxDepth nodes and never past <body>.
type BoundedAscent struct {
	MaxDepth int
}

func (b BoundedAscent) Nearest(start *html.Node, pred Predicate) (*html.Node, bool) {
	if start == nil || !dom.IsAttached(start) {
		return nil, false
	}
	depth := 0
	for cur := start; cur != nil && depth < b.MaxDepth; cur = cur.Parent {
		if cur.Type == html.DocumentNode || isBody(cur) {
			break
		}
		if cur.Type == html.ElementNode && pred(cur) {
			return cur, true
		}
		depth++
	}
	return nil, false
}

func isBody(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "body"
}

// CardPredicate matches an element whose tag is one of tags and that contains
// both a heading and a link with an href somewhere below it.
func CardPredicate(tags []string) Predicate {
	allowed := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		if _, ok := allowed[n.Data]; !ok {
			return false
		}
		sel := goquery.NewDocumentFromNode(n).Selection
		return sel.Find(headingSelector).Length() > 0 && sel.Find("a[href]").Length() > 0
	}
}

// Locator maps a link back to its enclosing result card.
type Locator struct {
	Traversal Traversal
	Predicate Predicate
}

// NewLocator returns the default bounded-ascent card locator.
func NewLocator(maxDepth int, containerTags []string) *Locator {
	return &Locator{
		Traversal: BoundedAscent{MaxDepth: maxDepth},
		Predicate: CardPredicate(containerTags),
	}
}

// FindCard returns the closest card containing start, if any.
func (l *Locator) FindCard(start *html.Node) (*html.Node, bool) {
	return l.Traversal.Nearest(start, l.Predicate)
}
