package cdp

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/dgnsrekt/mintlens/internal/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// nodeRef identifies the live node behind a mirror node.
type nodeRef struct {
	ID      cdp.NodeID
	Backend cdp.BackendNodeID
}

// Mirror keeps an in-memory copy of a tab's DOM in sync with DOM domain
// events. Nodes the lens created locally stay unbound until the browser
// reports them, then they are paired by identity instead of duplicated.
type Mirror struct {
	doc  *dom.Document
	byID map[cdp.NodeID]*html.Node
	refs map[*html.Node]nodeRef

	stale bool
}

// NewMirror converts a DOM.getDocument(depth=-1) tree.
func NewMirror(root *cdp.Node) (*Mirror, error) {
	if root == nil || root.NodeType != cdp.NodeTypeDocument {
		return nil, fmt.Errorf("cdp: mirror root must be a document node")
	}
	m := &Mirror{
		byID: make(map[cdp.NodeID]*html.Node),
		refs: make(map[*html.Node]nodeRef),
	}
	m.doc = dom.NewDocument(m.convert(root))
	return m, nil
}

func (m *Mirror) Document() *dom.Document { return m.doc }

// Ref returns the live identity of n, if the browser has reported it.
func (m *Mirror) Ref(n *html.Node) (nodeRef, bool) {
	r, ok := m.refs[n]
	return r, ok
}

// NeedsResync reports whether an event referenced a node the mirror has
// never seen. The caller should rebuild from DOM.getDocument.
func (m *Mirror) NeedsResync() bool { return m.stale }

// Len returns how many live nodes are mapped.
func (m *Mirror) Len() int { return len(m.byID) }

// Inserted applies DOM.childNodeInserted.
func (m *Mirror) Inserted(parentID, prevID cdp.NodeID, node *cdp.Node) {
	if node == nil {
		return
	}
	parent, ok := m.byID[parentID]
	if !ok {
		m.stale = true
		return
	}
	if _, dup := m.byID[node.NodeID]; dup {
		return
	}
	if isOwned(node) {
		if local := m.findUnbound(parent, node); local != nil {
			m.bind(local, node)
			return
		}
	}
	h := m.convert(node)
	if h == nil {
		return
	}
	var before *html.Node
	if prevID == 0 {
		before = parent.FirstChild
	} else if prev, ok := m.byID[prevID]; ok && prev.Parent == parent {
		before = prev.NextSibling
	}
	m.doc.InsertBefore(parent, h, before)
}

// Removed applies DOM.childNodeRemoved. Nodes already detached locally
// only lose their mapping.
func (m *Mirror) Removed(parentID, nodeID cdp.NodeID) {
	n, ok := m.byID[nodeID]
	if !ok {
		return
	}
	m.forget(n)
	if n.Parent != nil {
		m.doc.Remove(n)
	}
}

// CharacterData applies DOM.characterDataModified.
func (m *Mirror) CharacterData(nodeID cdp.NodeID, data string) {
	n, ok := m.byID[nodeID]
	if !ok {
		m.stale = true
		return
	}
	m.doc.SetText(n, data)
}

// SetChildren applies DOM.setChildNodes, which replaces whatever children
// the mirror had for parent.
func (m *Mirror) SetChildren(parentID cdp.NodeID, nodes []*cdp.Node) {
	parent, ok := m.byID[parentID]
	if !ok {
		m.stale = true
		return
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		m.forget(c)
	}
	kids := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if h := m.convert(n); h != nil {
			kids = append(kids, h)
		}
	}
	m.doc.ReplaceChildren(parent, kids...)
}

// Attribute applies DOM.attributeModified and attributeRemoved. Attribute
// changes never need a rescan, so observers are not notified.
func (m *Mirror) Attribute(nodeID cdp.NodeID, name, value string, removed bool) {
	n, ok := m.byID[nodeID]
	if !ok {
		return
	}
	if removed {
		dom.RemoveAttr(n, name)
		return
	}
	dom.SetAttr(n, name, value)
}

func (m *Mirror) convert(n *cdp.Node) *html.Node {
	var h *html.Node
	switch n.NodeType {
	case cdp.NodeTypeDocument:
		h = &html.Node{Type: html.DocumentNode}
	case cdp.NodeTypeDocumentType:
		h = &html.Node{Type: html.DoctypeNode, Data: strings.ToLower(n.NodeName)}
	case cdp.NodeTypeElement:
		name := n.LocalName
		if name == "" {
			name = strings.ToLower(n.NodeName)
		}
		h = dom.Element(name, n.Attributes...)
		h.DataAtom = atom.Lookup([]byte(name))
	case cdp.NodeTypeText:
		h = &html.Node{Type: html.TextNode, Data: n.NodeValue}
	case cdp.NodeTypeComment:
		h = &html.Node{Type: html.CommentNode, Data: n.NodeValue}
	default:
		return nil
	}
	m.record(h, n)
	for _, c := range n.Children {
		if hc := m.convert(c); hc != nil {
			h.AppendChild(hc)
		}
	}
	return h
}

func (m *Mirror) record(h *html.Node, n *cdp.Node) {
	m.byID[n.NodeID] = h
	m.refs[h] = nodeRef{ID: n.NodeID, Backend: n.BackendNodeID}
}

func (m *Mirror) forget(h *html.Node) {
	dom.Walk(h, func(c *html.Node) bool {
		if ref, ok := m.refs[c]; ok {
			delete(m.refs, c)
			if m.byID[ref.ID] == c {
				delete(m.byID, ref.ID)
			}
		}
		return true
	})
}

// findUnbound looks under parent for a lens-created node with the same
// identity as the reported one.
func (m *Mirror) findUnbound(parent *html.Node, node *cdp.Node) *html.Node {
	key := remoteKey(node)
	if key == "" {
		return nil
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if _, bound := m.refs[c]; bound {
			continue
		}
		if dom.IsOwned(c) && localKey(c) == key {
			return c
		}
	}
	return nil
}

// bind pairs a local subtree with its live counterpart node by node.
func (m *Mirror) bind(local *html.Node, remote *cdp.Node) {
	m.record(local, remote)
	lc := local.FirstChild
	for _, rc := range remote.Children {
		if lc == nil {
			break
		}
		m.bind(lc, rc)
		lc = lc.NextSibling
	}
}

func isOwned(n *cdp.Node) bool {
	_, ok := cdpAttr(n, dom.AttrOwned)
	return ok
}

func cdpAttr(n *cdp.Node, key string) (string, bool) {
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		if n.Attributes[i] == key {
			return n.Attributes[i+1], true
		}
	}
	return "", false
}

// remoteKey and localKey agree on an identity for owned nodes: the element
// id when present, otherwise the first marker id inside.
func remoteKey(n *cdp.Node) string {
	if id, ok := cdpAttr(n, "id"); ok && id != "" {
		return "id:" + id
	}
	var walk func(*cdp.Node) string
	walk = func(c *cdp.Node) string {
		if v, ok := cdpAttr(c, dom.AttrMarkID); ok {
			return "mark:" + v
		}
		for _, cc := range c.Children {
			if k := walk(cc); k != "" {
				return k
			}
		}
		return ""
	}
	return walk(n)
}

func localKey(n *html.Node) string {
	if id, ok := dom.Attr(n, "id"); ok && id != "" {
		return "id:" + id
	}
	key := ""
	dom.Walk(n, func(c *html.Node) bool {
		if key != "" {
			return false
		}
		if v, ok := dom.Attr(c, dom.AttrMarkID); ok {
			key = "mark:" + v
			return false
		}
		return true
	})
	return key
}
