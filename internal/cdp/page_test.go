package cdp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/dgnsrekt/mintlens/internal/panel"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDriver struct {
	mu       sync.Mutex
	root     *cdp.Node
	reject   bool
	failEval func(js string) bool
	replaced []cdp.BackendNodeID
	wraps    []string
	evals    []string
}

func (d *fakeDriver) Install(context.Context) error { return nil }

func (d *fakeDriver) Document(context.Context) (*cdp.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root, nil
}

func (d *fakeDriver) ReplaceText(_ context.Context, backend cdp.BackendNodeID, _, wrapHTML string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaced = append(d.replaced, backend)
	d.wraps = append(d.wraps, wrapHTML)
	return !d.reject, nil
}

func (d *fakeDriver) Eval(_ context.Context, js string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evals = append(d.evals, js)
	if d.failEval != nil && d.failEval(js) {
		return false, errors.New("eval reply lost")
	}
	return true, nil
}

func (d *fakeDriver) replaceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.replaced)
}

func (d *fakeDriver) evalContaining(sub string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, js := range d.evals {
		if strings.Contains(js, sub) {
			return true
		}
	}
	return false
}

type stubLookup struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubLookup) FetchMintInfo(_ context.Context, address string) (mintinfo.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, address)
	s.mu.Unlock()
	return mintinfo.Decode([]byte(`{"decimals":6,"mintStats":{"supply":"1500000"},"holderStats":{"totalHolders":42}}`))
}

func (s *stubLookup) called(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == address {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type pageHarness struct {
	page   *Page
	drv    *fakeDriver
	lookup *stubLookup
	text   *cdp.Node
	done   chan error
}

func startPage(t *testing.T, url, text string, reject bool) *pageHarness {
	t.Helper()
	return startPageWith(t, url, text, &fakeDriver{reject: reject})
}

func startPageWith(t *testing.T, url, text string, drv *fakeDriver) *pageHarness {
	t.Helper()
	g := &ids{}
	txt := g.text(text)
	drv.root = g.document(g.el("p", nil, txt))
	lookup := &stubLookup{}
	p := newPage("T1", url, drv, Deps{Lookup: lookup, Debounce: 10 * time.Millisecond, LookupTimeout: time.Second})

	h := &pageHarness{page: p, drv: drv, lookup: lookup, text: txt, done: make(chan error, 1)}
	go func() { h.done <- p.Run(context.Background()) }()
	t.Cleanup(func() {
		p.Close()
		<-h.done
	})
	return h
}

func (h *pageHarness) stats(t *testing.T) PageStats {
	t.Helper()
	s, err := h.page.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	return s
}

func TestPagePushesRewrites(t *testing.T) {
	h := startPage(t, "https://example.com/", "gm CA: 7DdHyxLZQuudndfrX3ZD", false)

	waitFor(t, "live rewrite", func() bool { return h.drv.replaceCount() == 1 })
	h.drv.mu.Lock()
	backend, wrap := h.drv.replaced[0], h.drv.wraps[0]
	h.drv.mu.Unlock()
	if backend != h.text.BackendNodeID {
		t.Fatalf("ReplaceText() backend = %d; want %d", backend, h.text.BackendNodeID)
	}
	if !strings.Contains(wrap, `class="sol-highlight"`) || !strings.Contains(wrap, "7DdHyxLZQuudndfrX3ZD") {
		t.Fatalf("wrap html = %s", wrap)
	}

	s := h.stats(t)
	if s.Rewrites != 1 || s.Marks != 1 || s.Resyncs != 1 {
		t.Fatalf("Stats() = %+v; want 1 rewrite, 1 mark, 1 resync", s)
	}
	if s.Panel {
		t.Fatal("panel shown on a non-matching URL")
	}
}

func TestPageRevertsRejectedRewriteOnce(t *testing.T) {
	h := startPage(t, "https://example.com/", "$BONK to the moon", true)

	// The first failure reverts the mirror, the rescan tries once more.
	waitFor(t, "second attempt", func() bool { return h.drv.replaceCount() == 2 })
	time.Sleep(60 * time.Millisecond)
	if n := h.drv.replaceCount(); n != 2 {
		t.Fatalf("ReplaceText() calls = %d; want 2", n)
	}
	if s := h.stats(t); s.Failures != 2 {
		t.Fatalf("Failures = %d; want 2", s.Failures)
	}
}

func TestPageHoverOpensOverlay(t *testing.T) {
	h := startPage(t, "https://example.com/", "$BONK", false)
	waitFor(t, "live rewrite", func() bool { return h.drv.replaceCount() == 1 })

	h.page.HandleEvent(&runtime.EventBindingCalled{
		Name:    bindingName,
		Payload: `{"type":"hover","marked":true,"id":"m-1","kind":"ticker","text":"$BONK","rect":{"top":10,"left":20,"bottom":30,"right":60},"scroll":{"x":0,"y":0}}`,
	})
	waitFor(t, "lookup", func() bool { return h.lookup.called("BONK") })
	waitFor(t, "loaded overlay pushed", func() bool { return h.drv.evalContaining("Supply") })
	if !h.drv.evalContaining("sol-popover-") {
		t.Fatal("overlay element id never pushed")
	}

	// Bindings from other scripts are ignored.
	h.page.HandleEvent(&runtime.EventBindingCalled{Name: "other", Payload: `{"type":"hover","marked":false}`})
	if s := h.stats(t); !s.Overlay {
		t.Fatal("overlay dismissed by a foreign binding")
	}

	h.page.HandleEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: `{"type":"hover","marked":false}`})
	waitFor(t, "overlay removed", func() bool {
		s, err := h.page.Stats(context.Background())
		return err == nil && !s.Overlay
	})
}

func TestPagePanelFollowsNavigation(t *testing.T) {
	h := startPage(t, "https://pump.fun/coin/abc", "nothing to see", false)
	waitFor(t, "panel pushed", func() bool { return h.drv.evalContaining("sol-trade-panel-handle") })

	h.page.HandleEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: `{"type":"key","key":"1"}`})
	waitFor(t, "buy toast", func() bool { return h.drv.evalContaining("Buy 0.1 SOL (simulated)") })

	h.page.HandleEvent(&page.EventNavigatedWithinDocument{URL: "https://example.com/elsewhere"})
	waitFor(t, "panel removed", func() bool {
		s, err := h.page.Stats(context.Background())
		return err == nil && !s.Panel && s.URL == "https://example.com/elsewhere"
	})
	if !h.drv.evalContaining(`el.remove()`) {
		t.Fatal("panel removal never pushed")
	}
}

func (h *pageHarness) overlayNodes(t *testing.T) int {
	t.Helper()
	var n int
	err := h.page.loop.Do(context.Background(), func() {
		n = len(dom.FindAllByClass(h.page.mirror.Document().Body(), dom.ClassOverlay))
	})
	if err != nil {
		t.Fatalf("loop.Do() error = %v", err)
	}
	return n
}

func hoverPayload(id string) string {
	return `{"type":"hover","marked":true,"id":"` + id + `","kind":"ticker","text":"$BONK","rect":{"top":10,"left":20,"bottom":30,"right":60},"scroll":{"x":0,"y":0}}`
}

func TestPageSameDocumentNavigationTakesOverlayDown(t *testing.T) {
	h := startPage(t, "https://example.com/", "$BONK", false)
	waitFor(t, "live rewrite", func() bool { return h.drv.replaceCount() == 1 })

	h.page.HandleEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: hoverPayload("m-a")})
	waitFor(t, "overlay shown", func() bool { return h.overlayNodes(t) == 1 })

	h.page.HandleEvent(&page.EventNavigatedWithinDocument{URL: "https://example.com/route"})
	waitFor(t, "overlay removed", func() bool { return h.overlayNodes(t) == 0 })
	if !h.drv.evalContaining("el.remove()") {
		t.Fatal("overlay removal never pushed to the tab")
	}
	if !h.drv.evalContaining("__mintlensResetHover()") {
		t.Fatal("hover state never reset in the tab")
	}

	h.page.HandleEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: hoverPayload("m-b")})
	waitFor(t, "second overlay shown", func() bool {
		s, err := h.page.Stats(context.Background())
		return err == nil && s.Overlay
	})
	if n := h.overlayNodes(t); n != 1 {
		t.Fatalf("overlay nodes = %d; want 1", n)
	}
}

func TestPageCrossDocumentNavigationResetsOverlay(t *testing.T) {
	h := startPage(t, "https://example.com/", "$BONK", false)
	waitFor(t, "live rewrite", func() bool { return h.drv.replaceCount() == 1 })

	h.page.HandleEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: hoverPayload("m-a")})
	waitFor(t, "overlay shown", func() bool { return h.overlayNodes(t) == 1 })

	h.page.HandleEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{URL: "https://example.com/other"}})
	waitFor(t, "overlay session dropped", func() bool {
		s, err := h.page.Stats(context.Background())
		return err == nil && !s.Overlay && s.URL == "https://example.com/other"
	})
}

func TestPageFailedOverlayMountLeavesNothing(t *testing.T) {
	drv := &fakeDriver{failEval: func(js string) bool {
		return strings.Contains(js, "sol-popover") && !strings.Contains(js, "el.remove()")
	}}
	h := startPageWith(t, "https://example.com/", "$BONK", drv)
	waitFor(t, "live rewrite", func() bool { return h.drv.replaceCount() == 1 })

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		h.page.HandleEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: hoverPayload(id)})
	}
	if n := h.overlayNodes(t); n != 0 {
		t.Fatalf("overlay nodes after failed mounts = %d; want 0", n)
	}
	if s := h.stats(t); s.Overlay {
		t.Fatal("controller owns a session whose mount failed")
	}
	if !h.drv.evalContaining("el.remove()") {
		t.Fatal("live cleanup never pushed after failed mount")
	}
	if h.lookup.called("BONK") {
		t.Fatal("lookup started for an overlay that was never mounted")
	}
}

func TestPageReleaseUnsubscribesRules(t *testing.T) {
	store, err := panel.OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	p := newPage("T9", "https://example.com/", &fakeDriver{}, Deps{Rules: store})
	if n := store.Subscribers(); n != 1 {
		t.Fatalf("Subscribers() = %d; want 1", n)
	}
	p.release()
	p.release()
	if n := store.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() after release = %d; want 0", n)
	}
}
