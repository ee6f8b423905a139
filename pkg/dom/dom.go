// Package dom provides a small headless document built on golang.org/x/net/html.
//
// It covers what the listing loader needs from a page: looking elements up by
// id, toggling classes, appending HTML fragments and counting marker-classed
// elements.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HiddenClass hides an element (Bootstrap utility class).
const HiddenClass = "d-none"

// ErrElementNotFound is returned when a required element id is absent.
var ErrElementNotFound = errors.New("element not found")

// Document is a parsed HTML page. All element mutations go through the
// document lock.
type Document struct {
	mu   sync.Mutex
	root *html.Node
}

// Element is a node inside a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ByID returns the first element with the given id, or nil.
func (d *Document) ByID(id string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return &Element{doc: d, node: found}
}

// FindByClassAttr returns the first element carrying class whose attribute key
// equals val, or nil.
func (d *Document) FindByClassAttr(class, key, val string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasClass(n, class) && attr(n, key) == val {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return &Element{doc: d, node: found}
}

// Root returns the <html> element, or nil for an empty document.
func (d *Document) Root() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "html" {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return &Element{doc: d, node: found}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// CountClass counts elements in the whole document carrying class.
func (d *Document) CountClass(class string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countClass(d.root, class)
}

// Attr returns an attribute value, or "" when absent.
func (e *Element) Attr(name string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, name)
}

// HasAttr reports whether the attribute is present, even if empty.
func (e *Element) HasAttr(name string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, a := range e.node.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// HasClass reports whether class is in the element's class list.
func (e *Element) HasClass(class string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return hasClass(e.node, class)
}

// AddClass adds class if it is not already present.
func (e *Element) AddClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if hasClass(e.node, class) {
		return
	}
	classes := append(strings.Fields(attr(e.node, "class")), class)
	setAttr(e.node, "class", strings.Join(classes, " "))
}

// RemoveClass removes every occurrence of class.
func (e *Element) RemoveClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	fields := strings.Fields(attr(e.node, "class"))
	kept := fields[:0]
	for _, f := range fields {
		if f != class {
			kept = append(kept, f)
		}
	}
	setAttr(e.node, "class", strings.Join(kept, " "))
}

// ToggleClass adds class when on is true and removes it otherwise.
func (e *Element) ToggleClass(class string, on bool) {
	if on {
		e.AddClass(class)
		return
	}
	e.RemoveClass(class)
}

// SetAttr sets an attribute, adding it when absent.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.node, name, value)
}

// Text returns the concatenated text of the element's descendants.
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var b strings.Builder
	walk(e.node, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces the element's children with a single text node.
func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Descendants returns the descendant elements with the given tag name in
// document order.
func (e *Element) Descendants(tag string) []*Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.Data == tag {
				out = append(out, &Element{doc: e.doc, node: n})
			}
			return true
		})
	}
	return out
}

// Show removes HiddenClass.
func (e *Element) Show() {
	e.RemoveClass(HiddenClass)
}

// Hide adds HiddenClass.
func (e *Element) Hide() {
	e.AddClass(HiddenClass)
}

// Visible reports whether the element lacks HiddenClass.
func (e *Element) Visible() bool {
	return !e.HasClass(HiddenClass)
}

// AppendHTML parses fragment in the context of the element and appends the
// resulting nodes as its last children.
func (e *Element) AppendHTML(fragment []byte) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	nodes, err := html.ParseFragment(bytes.NewReader(fragment), e.node)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	return nil
}

// CountClass counts descendants of the element carrying class.
func (e *Element) CountClass(class string) int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	n := 0
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		n += countClass(c, class)
	}
	return n
}

// CountClass counts elements carrying class in a standalone HTML fragment.
func CountClass(fragment []byte, class string) (int, error) {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(bytes.NewReader(fragment), context)
	if err != nil {
		return 0, fmt.Errorf("parse fragment: %w", err)
	}
	total := 0
	for _, n := range nodes {
		total += countClass(n, class)
	}
	return total, nil
}

func countClass(root *html.Node, class string) int {
	n := 0
	walk(root, func(node *html.Node) bool {
		if node.Type == html.ElementNode && hasClass(node, class) {
			n++
		}
		return true
	})
	return n
}

// walk visits n and its descendants depth first until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}
