package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Stable DOM surface. These names must not collide with host-page classes.
const (
	ClassHighlight = "sol-highlight"
	ClassOverlay   = "sol-popover"
	ClassPanel     = "sol-trade-panel"
	ClassToast     = "sol-toast"

	// AttrOwned tags every node the lens injects. Owned subtrees are never
	// scanned.
	AttrOwned    = "data-mintlens"
	AttrMarkID   = "data-sol-id"
	AttrMarkKind = "data-sol-kind"
)

// Owner roles stored in AttrOwned.
const (
	OwnerMark    = "mark"
	OwnerWrap    = "wrap"
	OwnerOverlay = "overlay"
	OwnerPanel   = "panel"
)

// MutationRecord describes one child-list or character-data change.
type MutationRecord struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// Observer receives mutation batches synchronously after each change.
type Observer func([]MutationRecord)

// Document is an in-memory DOM built on golang.org/x/net/html. It is not safe
// for concurrent use; callers confine it to one event loop.
type Document struct {
	root *html.Node
	body *html.Node

	marks     map[string]*html.Node
	observers map[int]Observer
	nextObs   int
}

// NewDocument wraps an existing tree and indexes any marks already present.
func NewDocument(root *html.Node) *Document {
	d := &Document{
		root:      root,
		marks:     make(map[string]*html.Node),
		observers: make(map[int]Observer),
	}
	d.body = findElement(root, atom.Body)
	if d.body == nil {
		d.body = root
	}
	d.index(root)
	return d
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return NewDocument(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func (d *Document) Root() *html.Node { return d.root }
func (d *Document) Body() *html.Node { return d.body }

// Observe registers fn for every subsequent mutation. The returned func
// unregisters it.
func (d *Document) Observe(fn Observer) func() {
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

// Mark returns the marked element registered under id.
func (d *Document) Mark(id string) (*html.Node, bool) {
	n, ok := d.marks[id]
	return n, ok
}

// MarkCount returns how many marked elements are attached to the document.
func (d *Document) MarkCount() int { return len(d.marks) }

// Append adds child as the last child of parent.
func (d *Document) Append(parent, child *html.Node) {
	parent.AppendChild(child)
	d.index(child)
	d.notify(MutationRecord{Target: parent, Added: []*html.Node{child}})
}

// InsertBefore inserts child under parent ahead of before. A nil before
// appends.
func (d *Document) InsertBefore(parent, child, before *html.Node) {
	if before != nil && before.Parent != parent {
		before = nil
	}
	parent.InsertBefore(child, before)
	d.index(child)
	d.notify(MutationRecord{Target: parent, Added: []*html.Node{child}})
}

// Replace swaps old for repl in old's parent.
func (d *Document) Replace(old, repl *html.Node) error {
	parent := old.Parent
	if parent == nil {
		return fmt.Errorf("dom: replace: node is detached")
	}
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
	d.unindex(old)
	d.index(repl)
	d.notify(MutationRecord{Target: parent, Added: []*html.Node{repl}, Removed: []*html.Node{old}})
	return nil
}

// Remove detaches n. Removing a detached node is a no-op.
func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	d.unindex(n)
	d.notify(MutationRecord{Target: parent, Removed: []*html.Node{n}})
}

// ReplaceChildren drops every child of parent and appends children in order,
// reported as a single record.
func (d *Document) ReplaceChildren(parent *html.Node, children ...*html.Node) {
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		d.unindex(c)
		removed = append(removed, c)
		c = next
	}
	for _, c := range children {
		parent.AppendChild(c)
		d.index(c)
	}
	d.notify(MutationRecord{Target: parent, Added: children, Removed: removed})
}

// SetText replaces a text node's data.
func (d *Document) SetText(n *html.Node, text string) {
	if n.Type != html.TextNode || n.Data == text {
		return
	}
	n.Data = text
	d.notify(MutationRecord{Target: n})
}

// Contains reports whether n is attached under the document root.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Render writes the serialized document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the body's inner HTML, which is what callers compare.
func (d *Document) String() string {
	return InnerHTML(d.body)
}

func (d *Document) notify(rec MutationRecord) {
	if len(d.observers) == 0 {
		return
	}
	batch := []MutationRecord{rec}
	for _, fn := range d.observers {
		fn(batch)
	}
}

func (d *Document) index(n *html.Node) {
	Walk(n, func(c *html.Node) bool {
		if id, ok := Attr(c, AttrMarkID); ok && id != "" {
			d.marks[id] = c
		}
		return true
	})
}

func (d *Document) unindex(n *html.Node) {
	Walk(n, func(c *html.Node) bool {
		if id, ok := Attr(c, AttrMarkID); ok {
			if d.marks[id] == c {
				delete(d.marks, id)
			}
		}
		return true
	})
}

// InnerHTML serializes n's children.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML serializes n itself.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.DataAtom == a {
			found = c
			return false
		}
		return true
	})
	return found
}
