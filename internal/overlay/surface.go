package overlay

import (
	"github.com/dgnsrekt/mintlens/internal/dom"
	"golang.org/x/net/html"
)

// Surface is where overlay nodes live. The controller is its only writer.
// Update and Unmount on an overlay that no longer exists are no-ops.
type Surface interface {
	Mount(s *Session) error
	Update(s *Session) error
	Unmount(s *Session) error
}

// DocumentSurface renders overlays into an in-memory document body.
type DocumentSurface struct {
	doc   *dom.Document
	nodes map[string]*html.Node
}

func NewDocumentSurface(doc *dom.Document) *DocumentSurface {
	return &DocumentSurface{doc: doc, nodes: make(map[string]*html.Node)}
}

func (d *DocumentSurface) Mount(s *Session) error {
	n := Render(s)
	d.doc.Append(d.doc.Body(), n)
	d.nodes[s.ID] = n
	return nil
}

func (d *DocumentSurface) Update(s *Session) error {
	old, ok := d.nodes[s.ID]
	if !ok || !d.doc.Contains(old) {
		delete(d.nodes, s.ID)
		return nil
	}
	n := Render(s)
	if err := d.doc.Replace(old, n); err != nil {
		return err
	}
	d.nodes[s.ID] = n
	return nil
}

func (d *DocumentSurface) Unmount(s *Session) error {
	n, ok := d.nodes[s.ID]
	if !ok {
		return nil
	}
	delete(d.nodes, s.ID)
	d.doc.Remove(n)
	return nil
}

// Node returns the mounted overlay for a session id.
func (d *DocumentSurface) Node(id string) (*html.Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}
