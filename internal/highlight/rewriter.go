package highlight

import (
	"strconv"
	"sync/atomic"

	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/pattern"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// Rewrite records one text node replaced by a wrap container.
type Rewrite struct {
	Original *html.Node
	Wrapper  *html.Node
	Marks    []Mark
}

// Mark identifies one marker span created by a rewrite.
type Mark struct {
	ID   string       `json:"id"`
	Kind pattern.Kind `json:"kind"`
	Text string       `json:"text"`
}

// Rewriter replaces matched substrings of a text node with marker spans.
type Rewriter struct {
	prefix string
	seq    atomic.Int64
}

// NewRewriter returns a Rewriter whose marker ids are unique per instance.
func NewRewriter() *Rewriter {
	return &Rewriter{prefix: "m" + uuid.NewString()[:8]}
}

func (r *Rewriter) nextID() string {
	return r.prefix + "-" + strconv.FormatInt(r.seq.Add(1), 10)
}

// Process rewrites node in place. It reports false when the node is already
// inside a marked or owned element, or when nothing matched.
func (r *Rewriter) Process(doc *dom.Document, node *html.Node) (*Rewrite, bool) {
	if node.Type != html.TextNode || node.Parent == nil {
		return nil, false
	}
	if skipParent(node.Parent) {
		return nil, false
	}

	text := node.Data
	spans := pattern.Find(text)
	if len(spans) == 0 {
		return nil, false
	}

	wrapper := dom.Element("span", dom.AttrOwned, dom.OwnerWrap)
	marks := make([]Mark, 0, len(spans))
	pos := 0
	for _, s := range spans {
		if s.Start > pos {
			wrapper.AppendChild(dom.Text(text[pos:s.Start]))
		}
		id := r.nextID()
		span := dom.Element("span",
			"class", dom.ClassHighlight,
			dom.AttrOwned, dom.OwnerMark,
			dom.AttrMarkID, id,
			dom.AttrMarkKind, string(s.Kind),
		)
		span.AppendChild(dom.Text(s.Text))
		wrapper.AppendChild(span)
		marks = append(marks, Mark{ID: id, Kind: s.Kind, Text: s.Text})
		pos = s.End
	}
	if pos < len(text) {
		wrapper.AppendChild(dom.Text(text[pos:]))
	}

	if err := doc.Replace(node, wrapper); err != nil {
		return nil, false
	}
	return &Rewrite{Original: node, Wrapper: wrapper, Marks: marks}, true
}

func skipParent(p *html.Node) bool {
	return dom.IsMarked(p) || dom.IsOwned(p)
}
