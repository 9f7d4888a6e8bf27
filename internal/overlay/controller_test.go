package overlay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/eventloop"
	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/dgnsrekt/mintlens/internal/pattern"
	"go.uber.org/goleak"
	"golang.org/x/net/html"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLookup struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	results map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		gates:   make(map[string]chan struct{}),
		results: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (f *fakeLookup) FetchMintInfo(ctx context.Context, address string) (mintinfo.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, address)
	gate := f.gates[address]
	body, err := f.results[address], f.errs[address]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return mintinfo.Decode([]byte(body))
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const fullResult = `{
	"decimals": 6,
	"mintStats": {"supply": "1500000", "mintAuthority": null, "freezeAuthority": "FrzAuth111"},
	"holderStats": {"totalHolders": 1234567, "top10Balance": "2500000000", "topHolderBalance": "not-a-number"}
}`

type harness struct {
	t       *testing.T
	loop    *eventloop.Loop
	doc     *dom.Document
	surface *DocumentSurface
	ctrl    *Controller
	events  chan Event
}

func newHarness(t *testing.T, lookup bridge.Lookup) *harness {
	t.Helper()
	doc, err := dom.ParseString(`<html><body><p>hello</p></body></html>`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	loop := eventloop.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()

	h := &harness{t: t, loop: loop, doc: doc, events: make(chan Event, 64)}
	h.surface = NewDocumentSurface(doc)
	h.ctrl = NewController(lookup, h.surface, loop, Options{
		Timeout:  time.Second,
		Observer: func(e Event) { h.events <- e },
	})
	t.Cleanup(func() {
		h.ctrl.Close()
		cancel()
		<-loop.Done()
	})
	return h
}

func (h *harness) do(fn func()) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.loop.Do(ctx, fn); err != nil {
		h.t.Fatalf("loop.Do() error = %v", err)
	}
}

func (h *harness) waitFor(want EventType) Event {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Type == want {
				return e
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for %s event", want)
			return Event{}
		}
	}
}

func (h *harness) overlayNode() *html.Node {
	h.t.Helper()
	var n *html.Node
	h.do(func() { n = dom.FindByClass(h.doc.Body(), dom.ClassOverlay) })
	return n
}

func anchor(id, text string) Anchor {
	kind := pattern.KindAddress
	if strings.HasPrefix(text, "$") {
		kind = pattern.KindTicker
	}
	return Anchor{
		ID:     id,
		Kind:   kind,
		Text:   text,
		Rect:   dom.Rect{Top: 100, Left: 40, Bottom: 120, Right: 200},
		Scroll: dom.Scroll{X: 10, Y: 300},
	}
}

func TestHoverLoadsAndRenders(t *testing.T) {
	f := newFakeLookup()
	f.results["Mint111111"] = fullResult
	h := newHarness(t, f)

	h.do(func() { h.ctrl.MouseOver(Target{Marked: true, Anchor: anchor("m1", "Mint111111")}) })
	e := h.waitFor(EventLoaded)

	want := map[string]string{
		"Decimals":         "6",
		"Supply":           "1.5",
		"Mint Authority":   "N/A",
		"Freeze Authority": "FrzAuth111",
		"Holders":          "1234567",
		"Top 10 Holdings":  "2,500",
		"Top Holder":       "not-a-number",
	}
	if len(e.Session.Rows) != len(want) {
		t.Fatalf("len(Rows) = %d; want %d", len(e.Session.Rows), len(want))
	}
	for _, r := range e.Session.Rows {
		if r.Value != want[r.Label] {
			t.Errorf("row %q = %q; want %q", r.Label, r.Value, want[r.Label])
		}
	}

	n := h.overlayNode()
	if n == nil {
		t.Fatal("overlay not mounted")
	}
	if Visible(n, ClassLoading) {
		t.Fatal("loading indicator visible after load")
	}
	if !Visible(n, ClassData) {
		t.Fatal("data region hidden after load")
	}
	if !strings.Contains(dom.TextContent(n), "Supply: 1.5") {
		t.Fatalf("overlay text = %q; want Supply row", dom.TextContent(n))
	}
}

func TestHoverPosition(t *testing.T) {
	f := newFakeLookup()
	f.gates["Mint111111"] = make(chan struct{})
	h := newHarness(t, f)
	defer close(f.gates["Mint111111"])

	h.do(func() { h.ctrl.HoverEnter(anchor("m1", "Mint111111")) })
	e := h.waitFor(EventCreated)
	if e.Session.Top != 425 || e.Session.Left != 50 {
		t.Fatalf("position = (%v, %v); want (425, 50)", e.Session.Top, e.Session.Left)
	}
	n := h.overlayNode()
	style, _ := dom.Attr(n, "style")
	if !strings.Contains(style, "top:425px;left:50px") {
		t.Fatalf("style = %q; want top:425px;left:50px", style)
	}
	if !Visible(n, ClassLoading) || Visible(n, ClassData) {
		t.Fatal("loading state must show only the loading indicator")
	}
}

func TestStaleResponseDoesNotOverwrite(t *testing.T) {
	f := newFakeLookup()
	f.results["AddrA11111"] = `{"decimals":0,"mintStats":{"supply":"111"},"holderStats":{}}`
	f.results["AddrB22222"] = `{"decimals":0,"mintStats":{"supply":"222"},"holderStats":{}}`
	gateA := make(chan struct{})
	f.gates["AddrA11111"] = gateA
	h := newHarness(t, f)

	h.do(func() { h.ctrl.HoverEnter(anchor("a", "AddrA11111")) })
	h.do(func() { h.ctrl.HoverEnter(anchor("b", "AddrB22222")) })
	loaded := h.waitFor(EventLoaded)
	if loaded.Session.Anchor.ID != "b" {
		t.Fatalf("loaded anchor = %q; want b", loaded.Session.Anchor.ID)
	}

	close(gateA)
	h.waitFor(EventStale)

	var cur Session
	var ok bool
	h.do(func() { cur, ok = h.ctrl.Current() })
	if !ok || cur.Anchor.ID != "b" {
		t.Fatalf("Current() = %+v, %v; want anchor b", cur, ok)
	}
	if cur.Rows[1].Value != "222" {
		t.Fatalf("Supply = %q; want 222", cur.Rows[1].Value)
	}
	var count int
	h.do(func() { count = len(dom.FindAllByClass(h.doc.Body(), dom.ClassOverlay)) })
	if count != 1 {
		t.Fatalf("overlay count = %d; want 1", count)
	}
}

func TestRemoteErrorShowsApology(t *testing.T) {
	f := newFakeLookup()
	f.errs["Mint111111"] = &bridge.RemoteError{Message: mintinfo.MsgNotOK}
	h := newHarness(t, f)

	h.do(func() { h.ctrl.HoverEnter(anchor("m1", "Mint111111")) })
	e := h.waitFor(EventFailed)
	if !strings.Contains(e.Session.Reason, mintinfo.MsgNotOK) {
		t.Fatalf("Reason = %q; want %q", e.Session.Reason, mintinfo.MsgNotOK)
	}
	n := h.overlayNode()
	if Visible(n, ClassLoading) {
		t.Fatal("loading indicator visible after failure")
	}
	if got := dom.TextContent(dom.FindByClass(n, ClassData)); got != Apology {
		t.Fatalf("data text = %q; want %q", got, Apology)
	}
}

func TestMissingStatsFails(t *testing.T) {
	f := newFakeLookup()
	f.results["Mint111111"] = `{"decimals":6,"mintStats":{"supply":"1"}}`
	h := newHarness(t, f)

	h.do(func() { h.ctrl.HoverEnter(anchor("m1", "Mint111111")) })
	e := h.waitFor(EventFailed)
	if e.Session.Rows != nil {
		t.Fatalf("Rows = %v; want none", e.Session.Rows)
	}
}

func TestSameAnchorIsNoop(t *testing.T) {
	f := newFakeLookup()
	f.results["Mint111111"] = fullResult
	h := newHarness(t, f)

	a := anchor("m1", "Mint111111")
	h.do(func() { h.ctrl.HoverEnter(a) })
	first := h.waitFor(EventLoaded)
	h.do(func() { h.ctrl.HoverEnter(a) })

	var cur Session
	h.do(func() { cur, _ = h.ctrl.Current() })
	if cur.ID != first.Session.ID {
		t.Fatalf("session replaced on same anchor: %s -> %s", first.Session.ID, cur.ID)
	}
	if got := f.callCount(); got != 1 {
		t.Fatalf("lookup calls = %d; want 1", got)
	}
}

func TestNonMarkedTargetDismisses(t *testing.T) {
	f := newFakeLookup()
	f.results["Mint111111"] = fullResult
	h := newHarness(t, f)

	h.do(func() { h.ctrl.HoverEnter(anchor("m1", "Mint111111")) })
	h.waitFor(EventLoaded)
	h.do(func() { h.ctrl.MouseOver(Target{}) })
	h.waitFor(EventDestroyed)

	if n := h.overlayNode(); n != nil {
		t.Fatal("overlay still mounted after dismiss")
	}
	var ok bool
	h.do(func() { _, ok = h.ctrl.Current() })
	if ok {
		t.Fatal("Current() reported a session after dismiss")
	}
}

func TestTickerLookupUsesSymbol(t *testing.T) {
	f := newFakeLookup()
	f.errs["BONK"] = errors.New("boom")
	h := newHarness(t, f)

	h.do(func() { h.ctrl.HoverEnter(anchor("t1", "$BONK")) })
	h.waitFor(EventFailed)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) != 1 || f.calls[0] != "BONK" {
		t.Fatalf("calls = %v; want [BONK]", f.calls)
	}
}

func TestUpdateAfterUnmountIsNoop(t *testing.T) {
	doc, err := dom.ParseString(`<p>x</p>`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	s := NewDocumentSurface(doc)
	sess := &Session{ID: "s1", State: StateLoading}
	if err := s.Mount(sess); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	n, _ := s.Node("s1")
	doc.Remove(n)

	sess.State = StateLoaded
	if err := s.Update(sess); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Unmount(sess); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	if strings.Contains(doc.String(), dom.ClassOverlay) {
		t.Fatalf("document = %q; want no overlay", doc.String())
	}
}
