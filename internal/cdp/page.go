package cdp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/eventloop"
	"github.com/dgnsrekt/mintlens/internal/highlight"
	"github.com/dgnsrekt/mintlens/internal/notify"
	"github.com/dgnsrekt/mintlens/internal/overlay"
	"github.com/dgnsrekt/mintlens/internal/panel"
	"github.com/dgnsrekt/mintlens/internal/watcher"
	"golang.org/x/net/html"
)

// Deps are shared by every page the client attaches.
type Deps struct {
	Lookup          bridge.Lookup
	Rules           *panel.Store
	Notifier        *notify.Notifier
	Formatter       *overlay.Formatter
	DefaultDecimals int
	LookupTimeout   time.Duration
	Debounce        time.Duration

	// OnNavigate is called on the page loop after the tab's URL changes.
	// It must not block.
	OnNavigate func(id target.ID, url string)
}

// PageStats is a snapshot of one page's activity.
type PageStats struct {
	TargetID  string        `json:"target_id"`
	URL       string        `json:"url"`
	Marks     int           `json:"marks"`
	Watcher   watcher.Stats `json:"watcher"`
	Overlay   bool          `json:"overlay"`
	Panel     bool          `json:"panel"`
	Resyncs   int           `json:"resyncs"`
	Rewrites  int           `json:"rewrites"`
	Failures  int           `json:"failures"`
	StartedAt time.Time     `json:"started_at"`
}

// Page owns everything the lens does in one tab. Fields from url down are
// touched only from the loop goroutine.
type Page struct {
	id   target.ID
	drv  driver
	deps Deps
	loop *eventloop.Loop

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	url       string
	mirror    *Mirror
	scanner   *highlight.Scanner
	watcher   *watcher.Watcher
	ctrl      *overlay.Controller
	surface   *liveSurface
	panel     *panel.Panel
	panelNode *html.Node
	toast     *eventloop.Timer
	reverted  map[*html.Node]bool
	resyncing bool
	stats     PageStats

	unsubscribe func()
}

func newPage(id target.ID, url string, drv driver, deps Deps) *Page {
	p := &Page{
		id:       id,
		drv:      drv,
		deps:     deps,
		loop:     eventloop.New(0),
		url:      url,
		scanner:  highlight.NewScanner(highlight.NewRewriter()),
		reverted: make(map[*html.Node]bool),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.stats = PageStats{TargetID: string(id), URL: url, StartedAt: time.Now()}

	p.watcher = watcher.New(p.loop, deps.Debounce, p.scan)
	p.surface = &liveSurface{p: p}
	p.ctrl = overlay.NewController(deps.Lookup, p.surface, p.loop, overlay.Options{
		DefaultDecimals: deps.DefaultDecimals,
		Timeout:         deps.LookupTimeout,
		Formatter:       deps.Formatter,
		Observer:        p.onOverlay,
	})

	var rules *panel.Rules
	if deps.Rules != nil {
		rules = deps.Rules.Rules()
		p.unsubscribe = deps.Rules.OnChange(func(r *panel.Rules) {
			p.loop.Post(func() {
				p.panel.SetRules(r)
				p.renderPanel()
			})
		})
	}
	p.panel = panel.New(rules)
	p.panel.Navigate(url)
	return p
}

// Run drives the page until ctx is done or Close is called.
func (p *Page) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-p.ctx.Done():
		}
		p.loop.Close()
	}()

	p.loop.Post(p.resync)
	err := p.loop.Run(ctx)
	p.watcher.Stop()
	p.toast.Stop()
	p.release()
	return err
}

// release drops what newPage acquired. It is also the cleanup for a page
// whose Run never started.
func (p *Page) release() {
	p.Close()
	p.ctrl.Close()
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// Close stops the page. Safe from any goroutine.
func (p *Page) Close() {
	p.once.Do(p.cancel)
}

// Stats returns a snapshot taken on the loop.
func (p *Page) Stats(ctx context.Context) (PageStats, error) {
	var s PageStats
	err := p.loop.Do(ctx, func() {
		s = p.stats
		s.URL = p.url
		s.Watcher = p.watcher.Stats()
		if p.mirror != nil {
			s.Marks = p.mirror.Document().MarkCount()
		}
		_, s.Overlay = p.ctrl.Current()
		s.Panel = p.panelNode != nil
	})
	return s, err
}

// HandleEvent is the chromedp target listener. It must not block, so every
// event is posted to the loop.
func (p *Page) HandleEvent(ev any) {
	switch e := ev.(type) {
	case *cdpdom.EventDocumentUpdated:
		p.loop.Post(p.resync)
	case *cdpdom.EventChildNodeInserted:
		p.loop.Post(func() { p.withMirror(func(m *Mirror) { m.Inserted(e.ParentNodeID, e.PreviousNodeID, e.Node) }) })
	case *cdpdom.EventChildNodeRemoved:
		p.loop.Post(func() { p.withMirror(func(m *Mirror) { m.Removed(e.ParentNodeID, e.NodeID) }) })
	case *cdpdom.EventCharacterDataModified:
		p.loop.Post(func() { p.withMirror(func(m *Mirror) { m.CharacterData(e.NodeID, e.CharacterData) }) })
	case *cdpdom.EventSetChildNodes:
		p.loop.Post(func() { p.withMirror(func(m *Mirror) { m.SetChildren(e.ParentID, e.Nodes) }) })
	case *cdpdom.EventAttributeModified:
		p.loop.Post(func() { p.withMirror(func(m *Mirror) { m.Attribute(e.NodeID, e.Name, e.Value, false) }) })
	case *cdpdom.EventAttributeRemoved:
		p.loop.Post(func() { p.withMirror(func(m *Mirror) { m.Attribute(e.NodeID, e.Name, "", true) }) })
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		payload := e.Payload
		p.loop.Post(func() { p.onMessage(payload) })
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			url := e.Frame.URL
			p.loop.Post(func() { p.navigated(url, false) })
		}
	case *page.EventNavigatedWithinDocument:
		url := e.URL
		p.loop.Post(func() { p.navigated(url, true) })
	}
}

func (p *Page) withMirror(fn func(*Mirror)) {
	if p.mirror == nil {
		return
	}
	fn(p.mirror)
	if p.mirror.NeedsResync() && !p.resyncing {
		p.resyncing = true
		p.loop.Post(p.resync)
	}
}

// resync rebuilds the mirror from the live document and rescans it.
func (p *Page) resync() {
	p.resyncing = false
	root, err := p.drv.Document(p.ctx)
	if err != nil {
		slog.Warn("page resync failed", "target_id", p.id, "error", err)
		return
	}
	m, err := NewMirror(root)
	if err != nil {
		slog.Warn("page mirror build failed", "target_id", p.id, "error", err)
		return
	}

	// The old document and its overlay are gone.
	p.ctrl.Reset()
	p.mirror = m
	p.panelNode = nil
	p.reverted = make(map[*html.Node]bool)
	p.surface.reset(m.Document())
	p.watcher.ObserveDocument(m.Document())
	p.stats.Resyncs++
	slog.Debug("page mirror rebuilt", "target_id", p.id, "nodes", m.Len())

	p.scan()
	p.renderPanel()
}

// scan marks the mirror and pushes each rewrite to the live node.
func (p *Page) scan() {
	if p.mirror == nil {
		return
	}
	doc := p.mirror.Document()
	res := p.scanner.Scan(doc, doc.Body())
	for _, rw := range res.Rewrites {
		ref, ok := p.mirror.Ref(rw.Original)
		if !ok {
			continue
		}
		applied, err := p.drv.ReplaceText(p.ctx, ref.Backend, rw.Original.Data, dom.OuterHTML(rw.Wrapper))
		if err == nil && applied {
			p.stats.Rewrites++
			continue
		}
		p.stats.Failures++
		slog.Debug("live rewrite not applied", "target_id", p.id, "node", ref.Backend, "error", err)
		// Put the text back once so a later scan can retry against fresh
		// content; a second failure leaves the node alone.
		if !p.reverted[rw.Original] && rw.Wrapper.Parent != nil {
			p.reverted[rw.Original] = true
			_ = doc.Replace(rw.Wrapper, rw.Original)
		}
	}
	if res.Rewritten > 0 {
		slog.Debug("page scan", "target_id", p.id, "visited", res.Visited, "rewritten", res.Rewritten, "marks", len(res.Marks))
	}
}

func (p *Page) navigated(url string, sameDocument bool) {
	if url == p.url {
		return
	}
	p.url = url
	if sameDocument {
		// The document survives a route change, so the overlay has to be
		// taken down through the surface.
		p.ctrl.Dismiss()
		if _, err := p.drv.Eval(p.ctx, resetHoverJS); err != nil {
			slog.Debug("hover reset failed", "target_id", p.id, "error", err)
		}
	} else {
		p.ctrl.Reset()
	}
	p.panel.Navigate(url)
	slog.Info("tab navigated", "target_id", p.id, "same_document", sameDocument, "url", truncateURL(url), "panel", p.panel.Visible())
	if sameDocument {
		p.renderPanel()
	}
	if p.deps.OnNavigate != nil {
		p.deps.OnNavigate(p.id, url)
	}
}

func (p *Page) onMessage(payload string) {
	m, err := decodeMessage(payload)
	if err != nil {
		slog.Debug("binding message dropped", "target_id", p.id, "error", err)
		return
	}
	switch m.Type {
	case "hover":
		p.ctrl.MouseOver(m.Target())
	case "key":
		in, ok := p.panel.Key(m.Key)
		if !ok {
			return
		}
		p.renderPanel()
		p.announce(in)
	case "action":
		a, err := panel.ParseAction(m.Action)
		if err != nil {
			slog.Debug("panel action rejected", "action", m.Action, "error", err)
			return
		}
		in, err := p.panel.Trigger(a)
		if err != nil {
			slog.Debug("panel action rejected", "action", m.Action, "error", err)
			return
		}
		p.renderPanel()
		p.announce(in)
	case "drag":
		p.panel.Drag(m.DX, m.DY)
		p.renderPanel()
	}
}

func (p *Page) announce(in *panel.Intent) {
	if in == nil {
		return
	}
	slog.Info("trade intent (simulated)", "target_id", p.id, "side", in.Side, "amount", in.Amount.String(), "percent", in.Percent, "url", truncateURL(in.URL))
	if !p.deps.Notifier.Enabled() {
		return
	}
	msg := notify.Message{Title: "mintlens trade intent", Tags: []string{string(in.Side), "simulated"}, Body: in.Text()}
	go func() {
		if err := p.deps.Notifier.Notify(p.ctx, msg); err != nil {
			slog.Warn("trade intent notification failed", "error", err)
		}
	}()
}

// renderPanel brings the live panel in line with panel state and schedules
// the next toast expiry.
func (p *Page) renderPanel() {
	if p.mirror == nil {
		return
	}
	doc := p.mirror.Document()
	n := p.panel.Render()

	if n == nil {
		if p.panelNode != nil {
			doc.Remove(p.panelNode)
			p.panelNode = nil
			if _, err := p.drv.Eval(p.ctx, removeJS(dom.ClassPanel)); err != nil {
				slog.Debug("panel remove failed", "target_id", p.id, "error", err)
			}
		}
		return
	}

	if p.panelNode != nil && p.panelNode.Parent != nil {
		_ = doc.Replace(p.panelNode, n)
	} else {
		doc.Append(doc.Body(), n)
	}
	p.panelNode = n
	if _, err := p.drv.Eval(p.ctx, upsertJS(dom.ClassPanel, dom.OuterHTML(n))); err != nil {
		slog.Debug("panel render failed", "target_id", p.id, "error", err)
	}

	p.toast.Stop()
	p.toast = nil
	if next, ok := p.panel.NextExpiry(); ok {
		p.toast = p.loop.AfterFunc(time.Until(next)+10*time.Millisecond, p.renderPanel)
	}
}

func (p *Page) onOverlay(e overlay.Event) {
	switch e.Type {
	case overlay.EventCreated:
		slog.Debug("overlay session created", "target_id", p.id, "anchor", e.Session.Anchor.ID, "identifier", e.Session.Anchor.Identifier())
	case overlay.EventFailed:
		slog.Info("overlay lookup failed", "target_id", p.id, "anchor", e.Session.Anchor.ID, "reason", e.Session.Reason)
	case overlay.EventStale:
		slog.Debug("stale overlay completion dropped", "target_id", p.id, "generation", e.Session.Generation)
	}
}

// liveSurface keeps the overlay in the mirror and pushes the same markup to
// the tab.
type liveSurface struct {
	p     *Page
	local *overlay.DocumentSurface
}

func (s *liveSurface) reset(doc *dom.Document) {
	s.local = overlay.NewDocumentSurface(doc)
}

func (s *liveSurface) Mount(sess *overlay.Session) error {
	if s.local == nil {
		return nil
	}
	if err := s.local.Mount(sess); err != nil {
		return err
	}
	n, _ := s.local.Node(sess.ID)
	if _, err := s.p.drv.Eval(s.p.ctx, upsertJS(sess.ElementID(), dom.OuterHTML(n))); err != nil {
		// The controller will not own this session, so nothing may be left
		// behind. The eval may have landed even though its reply failed.
		_ = s.local.Unmount(sess)
		if _, rerr := s.p.drv.Eval(s.p.ctx, removeJS(sess.ElementID())); rerr != nil {
			slog.Debug("overlay cleanup failed", "target_id", s.p.id, "error", rerr)
		}
		return err
	}
	return nil
}

func (s *liveSurface) Update(sess *overlay.Session) error {
	if s.local == nil {
		return nil
	}
	if err := s.local.Update(sess); err != nil {
		return err
	}
	n, ok := s.local.Node(sess.ID)
	if !ok {
		return nil
	}
	_, err := s.p.drv.Eval(s.p.ctx, replaceExistingJS(sess.ElementID(), dom.OuterHTML(n)))
	return err
}

func (s *liveSurface) Unmount(sess *overlay.Session) error {
	if s.local == nil {
		return nil
	}
	if err := s.local.Unmount(sess); err != nil {
		return err
	}
	_, err := s.p.drv.Eval(s.p.ctx, removeJS(sess.ElementID()))
	return err
}
