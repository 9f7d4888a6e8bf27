package panel

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// Intent is a simulated trade request. Nothing is ever executed.
type Intent struct {
	ID      string          `json:"id"`
	Side    ActionKind      `json:"side"`
	Amount  decimal.Decimal `json:"amount,omitempty"`
	Percent int             `json:"percent,omitempty"`
	URL     string          `json:"url"`
	At      time.Time       `json:"at"`
}

// Text is the toast and notification body.
func (i Intent) Text() string {
	if i.Side == ActionBuy {
		return fmt.Sprintf("Buy %s SOL (simulated)", i.Amount.String())
	}
	return fmt.Sprintf("Sell %d%% (simulated)", i.Percent)
}

// Toast is a transient message shown inside the panel.
type Toast struct {
	ID      string
	Text    string
	Expires time.Time
}

// Position is the panel's top-left corner in viewport pixels.
type Position struct {
	X float64
	Y float64
}

var defaultPosition = Position{X: 20, Y: 80}

// Panel is the per-page trading panel state. It is confined to the page's
// event loop.
type Panel struct {
	rules   *Rules
	url     string
	gated   bool
	hidden  bool
	pos     Position
	toasts  []Toast
	last    *Intent
	now     func() time.Time
	idCount int
}

func New(rules *Rules) *Panel {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Panel{rules: rules, pos: defaultPosition, now: time.Now}
}

// Navigate re-evaluates the URL gate.
func (p *Panel) Navigate(url string) {
	p.url = url
	p.gated = p.rules.Match(url)
}

// SetRules swaps the rule set and re-gates the current URL.
func (p *Panel) SetRules(r *Rules) {
	if r == nil {
		return
	}
	p.rules = r
	p.Navigate(p.url)
}

// Visible reports whether the panel should be on the page.
func (p *Panel) Visible() bool {
	return p.gated && !p.hidden
}

// Gated reports whether the URL matched, regardless of the toggle.
func (p *Panel) Gated() bool { return p.gated }

// Move places the panel at an absolute position.
func (p *Panel) Move(pos Position) {
	if pos.X < 0 {
		pos.X = 0
	}
	if pos.Y < 0 {
		pos.Y = 0
	}
	p.pos = pos
}

// Drag moves the panel by a delta.
func (p *Panel) Drag(dx, dy float64) {
	p.Move(Position{X: p.pos.X + dx, Y: p.pos.Y + dy})
}

func (p *Panel) Position() Position { return p.pos }

// Key handles a keyboard shortcut and reports whether it was bound. The
// intent is nil for toggle.
func (p *Panel) Key(key string) (*Intent, bool) {
	if !p.gated {
		return nil, false
	}
	a, ok := p.rules.Shortcut(key)
	if !ok {
		return nil, false
	}
	// Hidden panels still answer toggle so they can come back.
	if p.hidden && a.Kind != ActionToggle {
		return nil, false
	}
	in, err := p.Trigger(a)
	if err != nil {
		return nil, false
	}
	return in, true
}

// Trigger runs an action. Buy and sell push a toast and return the intent;
// toggle flips visibility and returns nil.
func (p *Panel) Trigger(a Action) (*Intent, error) {
	if err := p.rules.checkAction(a); err != nil {
		return nil, fmt.Errorf("panel: %w", err)
	}
	now := p.now()
	in := &Intent{ID: uuid.NewString(), Side: a.Kind, URL: p.url, At: now}
	switch a.Kind {
	case ActionToggle:
		p.hidden = !p.hidden
		return nil, nil
	case ActionBuy:
		in.Amount = p.rules.BuyAmounts[a.Index]
	case ActionSell:
		in.Percent = p.rules.SellPercents[a.Index]
	default:
		return nil, fmt.Errorf("panel: unknown action %q", a.Kind)
	}
	p.last = in
	p.pushToast(in.Text(), now)
	return in, nil
}

// Last returns the most recent intent.
func (p *Panel) Last() (Intent, bool) {
	if p.last == nil {
		return Intent{}, false
	}
	return *p.last, true
}

// Toasts returns live toasts and forgets expired ones.
func (p *Panel) Toasts() []Toast {
	now := p.now()
	live := p.toasts[:0]
	for _, t := range p.toasts {
		if now.Before(t.Expires) {
			live = append(live, t)
		}
	}
	p.toasts = live
	return append([]Toast(nil), live...)
}

// NextExpiry is when the oldest toast expires, for scheduling a re-render.
func (p *Panel) NextExpiry() (time.Time, bool) {
	if len(p.toasts) == 0 {
		return time.Time{}, false
	}
	return p.toasts[0].Expires, true
}

func (p *Panel) pushToast(text string, now time.Time) {
	p.idCount++
	p.toasts = append(p.toasts, Toast{
		ID:      "t" + strconv.Itoa(p.idCount),
		Text:    text,
		Expires: now.Add(p.rules.ToastTTL),
	})
}

// Render builds the owned panel subtree. It returns nil when the panel is
// not visible.
func (p *Panel) Render() *html.Node {
	if !p.Visible() {
		return nil
	}
	root := dom.Element("div",
		"class", dom.ClassPanel,
		"id", dom.ClassPanel,
		dom.AttrOwned, dom.OwnerPanel,
		"style", fmt.Sprintf("position:fixed;top:%gpx;left:%gpx;z-index:2147483646", p.pos.Y, p.pos.X),
	)
	dom.Children(root, dom.Children(dom.Element("div", "class", "sol-trade-panel-handle"), dom.Text("Quick Trade")))

	buys := dom.Element("div", "class", "sol-trade-panel-buy")
	for i, amt := range p.rules.BuyAmounts {
		a := Action{Kind: ActionBuy, Index: i}
		buys.AppendChild(dom.Children(dom.Element("button", "data-action", a.String()), dom.Text("Buy "+amt.String()+" SOL")))
	}
	sells := dom.Element("div", "class", "sol-trade-panel-sell")
	for i, pct := range p.rules.SellPercents {
		a := Action{Kind: ActionSell, Index: i}
		sells.AppendChild(dom.Children(dom.Element("button", "data-action", a.String()), dom.Text("Sell "+strconv.Itoa(pct)+"%")))
	}
	dom.Children(root, buys, sells)

	for _, t := range p.Toasts() {
		root.AppendChild(dom.Children(dom.Element("div", "class", dom.ClassToast, "data-toast", t.ID), dom.Text(t.Text)))
	}
	return root
}
