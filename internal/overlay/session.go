package overlay

import (
	"strings"
	"time"

	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/pattern"
	"golang.org/x/net/html"
)

// State is the content state of the single live overlay.
type State string

const (
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// offsetY is the gap between the anchor's bottom edge and the overlay.
const offsetY = 5

// Anchor is the marked element an overlay hangs from, measured at hover time.
type Anchor struct {
	ID     string       `json:"id"`
	Kind   pattern.Kind `json:"kind"`
	Text   string       `json:"text"`
	Rect   dom.Rect     `json:"rect"`
	Scroll dom.Scroll   `json:"scroll"`
}

// Identifier is what the lookup carries: the address token, or the ticker
// symbol without "$".
func (a Anchor) Identifier() string {
	text := strings.TrimSpace(a.Text)
	if a.Kind == pattern.KindTicker {
		return strings.TrimPrefix(text, "$")
	}
	return text
}

// Title is the overlay heading.
func (a Anchor) Title() string {
	if a.Kind == pattern.KindTicker || strings.HasPrefix(a.Text, "$") {
		return "Token"
	}
	return "Address"
}

// AnchorFor reads a marker span's tags. rect and scroll come from whatever
// layout source the caller has.
func AnchorFor(n *html.Node, rect dom.Rect, scroll dom.Scroll) Anchor {
	id, _ := dom.Attr(n, dom.AttrMarkID)
	kind, _ := dom.Attr(n, dom.AttrMarkKind)
	return Anchor{ID: id, Kind: pattern.Kind(kind), Text: dom.TextContent(n), Rect: rect, Scroll: scroll}
}

// Target is what a mouseover landed on.
type Target struct {
	Marked bool
	Anchor Anchor
}

// Row is one label/value line of loaded data.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Session is the one overlay instance. A new hover target always gets a new
// Session; only its content state changes while it lives.
type Session struct {
	ID         string    `json:"id"`
	Generation uint64    `json:"generation"`
	Anchor     Anchor    `json:"anchor"`
	State      State     `json:"state"`
	Rows       []Row     `json:"rows,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Top        float64   `json:"top"`
	Left       float64   `json:"left"`
	CreatedAt  time.Time `json:"created_at"`
}

// ElementID is the DOM id of the overlay container.
func (s *Session) ElementID() string {
	return dom.ClassOverlay + "-" + s.ID
}

func position(a Anchor) (top, left float64) {
	return a.Rect.Bottom + a.Scroll.Y + offsetY, a.Rect.Left + a.Scroll.X
}
