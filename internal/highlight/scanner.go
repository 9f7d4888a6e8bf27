package highlight

import (
	"github.com/dgnsrekt/mintlens/internal/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result summarizes one scan pass.
type Result struct {
	Visited   int    `json:"visited"`
	Rewritten int    `json:"rewritten"`
	Marks     []Mark `json:"marks"`

	// Rewrites lists each replaced text node, for pushing to a live page.
	Rewrites []*Rewrite `json:"-"`
}

// Scanner walks text nodes under a root and applies a Rewriter to each.
type Scanner struct {
	rw *Rewriter
}

func NewScanner(rw *Rewriter) *Scanner {
	if rw == nil {
		rw = NewRewriter()
	}
	return &Scanner{rw: rw}
}

// Scan marks every eligible text node under root in document order. Nodes
// are collected before any rewrite so replacement never disturbs the walk.
func (s *Scanner) Scan(doc *dom.Document, root *html.Node) Result {
	if root == nil {
		root = doc.Body()
	}
	var texts []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		switch n.Type {
		case html.ElementNode:
			return !skipSubtree(n)
		case html.TextNode:
			texts = append(texts, n)
		}
		return true
	})

	res := Result{Visited: len(texts)}
	for _, n := range texts {
		rw, ok := s.rw.Process(doc, n)
		if !ok {
			continue
		}
		res.Rewritten++
		res.Marks = append(res.Marks, rw.Marks...)
		res.Rewrites = append(res.Rewrites, rw)
	}
	return res
}

func skipSubtree(n *html.Node) bool {
	if dom.IsMarked(n) || dom.IsOwned(n) {
		return true
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Textarea, atom.Template:
		return true
	}
	return false
}
