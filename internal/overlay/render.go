package overlay

import (
	"fmt"

	"github.com/dgnsrekt/mintlens/internal/dom"
	"golang.org/x/net/html"
)

// Apology is the only text a failed overlay shows.
const Apology = "Could not load token info 😢"

const loadingText = "Loading token info..."

// Class names inside the overlay container.
const (
	ClassLoading = "sol-popover-loading"
	ClassData    = "sol-popover-data"
	ClassError   = "sol-popover-error"
	ClassRow     = "sol-popover-row"
)

// Render builds the overlay subtree for s. The loading indicator and the
// data region are always present; exactly one of them is visible.
func Render(s *Session) *html.Node {
	root := dom.Element("div",
		"class", dom.ClassOverlay,
		"id", s.ElementID(),
		dom.AttrOwned, dom.OwnerOverlay,
		"data-state", string(s.State),
		"style", fmt.Sprintf("position:absolute;top:%gpx;left:%gpx;z-index:2147483647", s.Top, s.Left),
	)

	dom.Children(root,
		dom.Children(dom.Element("h3"), dom.Text(s.Anchor.Title())),
		dom.Children(dom.Element("div", "class", "sol-popover-id"), dom.Text(s.Anchor.Text)),
		dom.Element("hr"),
	)

	loading := dom.Children(dom.Element("p", "class", ClassLoading), dom.Text(loadingText))
	data := dom.Element("div", "class", ClassData)
	if s.State == StateLoading {
		dom.SetAttr(data, "hidden", "")
	} else {
		dom.SetAttr(loading, "hidden", "")
	}

	switch s.State {
	case StateLoaded:
		for _, r := range s.Rows {
			row := dom.Children(dom.Element("div", "class", ClassRow),
				dom.Children(dom.Element("strong"), dom.Text(r.Label+": ")),
				dom.Children(dom.Element("span"), dom.Text(r.Value)),
			)
			data.AppendChild(row)
		}
	case StateFailed:
		data.AppendChild(dom.Children(dom.Element("p", "class", ClassError), dom.Text(Apology)))
	}

	return dom.Children(root, loading, data)
}

// Visible reports whether the region with class is shown in an overlay
// subtree.
func Visible(root *html.Node, class string) bool {
	n := dom.FindByClass(root, class)
	if n == nil {
		return false
	}
	_, hidden := dom.Attr(n, "hidden")
	return !hidden
}
