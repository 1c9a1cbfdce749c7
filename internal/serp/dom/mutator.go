package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Op is the kind of change a MutationRecord describes.
type Op string

const (
	OpInsert Op = "insert"
	OpRemove Op = "remove"
	OpAttr   Op = "attr"
)

// MutationRecord describes one change. For insert/remove Target is the parent
// whose child list changed; for attr it is the element itself.
type MutationRecord struct {
	Op     Op
	Target *html.Node
	Node   *html.Node
	Name   string
}

// IsChildList reports whether the record is a structural change.
func (r MutationRecord) IsChildList() bool {
	return r.Op == OpInsert || r.Op == OpRemove
}

// Mutator is the write handle passed to Document.Mutate.
type Mutator struct {
	doc     *goquery.Document
	records []MutationRecord
}

// Doc exposes the tree for queries inside a mutation.
func (m *Mutator) Doc() *goquery.Document { return m.doc }

// AppendHTML parses fragment in the context of parent and appends the result.
func (m *Mutator) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	if parent == nil || !IsAttached(parent) {
		return nil, ErrDetached
	}
	context := parent
	if parent.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
		m.records = append(m.records, MutationRecord{Op: OpInsert, Target: parent, Node: n})
	}
	return nodes, nil
}

// AppendElement creates <tag> with attrs and text and appends it to parent.
func (m *Mutator) AppendElement(parent *html.Node, tag string, attrs map[string]string, text string) (*html.Node, error) {
	if parent == nil || !IsAttached(parent) {
		return nil, ErrDetached
	}
	el := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for k, v := range attrs {
		el.Attr = append(el.Attr, html.Attribute{Key: k, Val: v})
	}
	if text != "" {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	parent.AppendChild(el)
	m.records = append(m.records, MutationRecord{Op: OpInsert, Target: parent, Node: el})
	return el, nil
}

// Remove detaches n from its parent. Removing a detached node is a no-op.
func (m *Mutator) Remove(n *html.Node) {
	if n == nil || n.Parent == nil {
		return
	}
	parent := n.Parent
	parent.RemoveChild(n)
	m.records = append(m.records, MutationRecord{Op: OpRemove, Target: parent, Node: n})
}

// SetAttr sets key=val on n, recording a change only when the value differs.
func (m *Mutator) SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			if n.Attr[i].Val == val {
				return
			}
			n.Attr[i].Val = val
			m.recordAttr(n, key)
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	m.recordAttr(n, key)
}

// RemoveAttr deletes key from n if present.
func (m *Mutator) RemoveAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			m.recordAttr(n, key)
			return
		}
	}
}

// SetStyle sets one inline style property, keeping the others.
func (m *Mutator) SetStyle(n *html.Node, prop, value string) {
	decls := parseStyle(AttrOr(n, "style", ""))
	decls = decls.set(prop, value)
	m.SetAttr(n, "style", decls.String())
}

// RemoveStyle clears one inline style property. An emptied style attribute is removed.
func (m *Mutator) RemoveStyle(n *html.Node, prop string) {
	current, ok := Attr(n, "style")
	if !ok {
		return
	}
	decls := parseStyle(current).remove(prop)
	if len(decls) == 0 {
		m.RemoveAttr(n, "style")
		return
	}
	m.SetAttr(n, "style", decls.String())
}

func (m *Mutator) recordAttr(n *html.Node, key string) {
	m.records = append(m.records, MutationRecord{Op: OpAttr, Target: n, Name: key})
}

// Attr returns the value of a non-namespaced attribute.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def.
func AttrOr(n *html.Node, key, def string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return def
}

// Style returns the value of one inline style property.
func Style(n *html.Node, prop string) string {
	return parseStyle(AttrOr(n, "style", "")).get(prop)
}
