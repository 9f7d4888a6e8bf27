package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const defaultPollInterval = 5 * time.Second

// Options configure a Client.
type Options struct {
	CDPURL       string
	TabURLFilter string
	PollInterval time.Duration
	Deps         Deps
}

// Client manages CDP connections to browser tabs. Each matching page target
// gets its own Page.
type Client struct {
	opts        Options
	tabRegistry *TabRegistry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	runCtx    context.Context
	runCancel context.CancelFunc

	tabs   map[target.ID]*TabContext
	tabsMu sync.RWMutex
	wg     sync.WaitGroup
}

type TabContext struct {
	ID     target.ID
	URL    string
	Page   *Page
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(opts Options, tabRegistry *TabRegistry) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if tabRegistry == nil {
		tabRegistry = NewTabRegistry()
	}
	return &Client{
		opts:        opts,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*TabContext),
	}
}

// Connect dials the browser and attaches to the tabs already open. Finding no
// matching tab is not an error; Run keeps polling for new ones.
func (c *Client) Connect(ctx context.Context) error {
	slog.Info("connecting to chromium", "url", c.opts.CDPURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.opts.CDPURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)
	c.runCtx, c.runCancel = context.WithCancel(context.Background())

	// The first Run binds the browser connection to the context it is
	// given, so it must be browserCtx itself and not a derived timeout.
	if err := chromedp.Run(c.browserCtx); err != nil {
		c.browserCancel()
		c.allocCancel()
		return fmt.Errorf("cdp: connect to browser: %w", err)
	}

	attached, err := c.sync(ctx)
	if err != nil {
		c.Close()
		return err
	}
	if attached == 0 {
		slog.Warn("no tabs match yet", "tab_url_filter", c.opts.TabURLFilter)
	}
	return nil
}

// Run polls for tabs opening and closing until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.sync(ctx); err != nil {
				slog.Warn("tab poll failed", "error", err)
			}
		}
	}
}

// sync attaches to new matching page targets and drops the ones that are
// gone. It returns how many tabs were newly attached.
func (c *Client) sync(ctx context.Context) (int, error) {
	listCtx, cancel := context.WithTimeout(c.browserCtx, commandTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		return 0, fmt.Errorf("cdp: enumerate targets: %w", err)
	}

	seen := make(map[target.ID]bool, len(targets))
	attached := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		seen[t.TargetID] = true
		if c.hasTab(t.TargetID) {
			continue
		}
		if !c.matchesTabURL(t.URL) {
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("failed to attach to tab", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
			continue
		}
		attached++
	}

	c.tabsMu.RLock()
	var gone []target.ID
	for id := range c.tabs {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	c.tabsMu.RUnlock()
	for _, id := range gone {
		c.detach(id)
	}
	return attached, nil
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(targetID))

	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tabCancel()
		return fmt.Errorf("cdp: enable page domain: %w", err)
	}

	drv := &chromedpDriver{tabCtx: tabCtx}
	deps := c.opts.Deps
	deps.OnNavigate = c.onNavigate(c.opts.Deps.OnNavigate)
	p := newPage(targetID, url, drv, deps)
	chromedp.ListenTarget(tabCtx, p.HandleEvent)

	if err := drv.Install(c.runCtx); err != nil {
		p.release()
		tabCancel()
		return err
	}

	tab := &TabContext{ID: targetID, URL: url, Page: p, ctx: tabCtx, cancel: tabCancel}
	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()
	info := c.tabRegistry.Register(targetID, url)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := p.Run(c.runCtx); err != nil {
			slog.Debug("page loop ended", "target_id", targetID, "error", err)
		}
	}()

	slog.Info("attached to tab", "target_id", targetID, "host", info.Host, "url", truncateURL(url))
	return nil
}

// detach releases a tab whose target is gone.
func (c *Client) detach(id target.ID) {
	c.tabsMu.Lock()
	tab, ok := c.tabs[id]
	delete(c.tabs, id)
	c.tabsMu.Unlock()
	if !ok {
		return
	}
	tab.Page.Close()
	tab.cancel()
	c.tabRegistry.Remove(id)
	slog.Info("detached from tab", "target_id", id, "url", truncateURL(tab.URL))
}

// onNavigate keeps the tab record current and lets go of tabs that leave
// the URL filter.
func (c *Client) onNavigate(next func(target.ID, string)) func(target.ID, string) {
	return func(id target.ID, url string) {
		if next != nil {
			next(id, url)
		}
		c.tabsMu.Lock()
		tab, ok := c.tabs[id]
		if ok {
			tab.URL = url
		}
		c.tabsMu.Unlock()
		if !ok {
			return
		}
		if !c.matchesTabURL(url) {
			slog.Info("tab left url filter", "target_id", id, "tab_url_filter", c.opts.TabURLFilter, "url", truncateURL(url))
			// detach closes the page, so it must not run on the page loop.
			go c.detach(id)
			return
		}
		c.tabRegistry.Register(id, url)
	}
}

func (c *Client) hasTab(id target.ID) bool {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	_, ok := c.tabs[id]
	return ok
}

// Stats collects a snapshot from every attached page.
func (c *Client) Stats(ctx context.Context) []PageStats {
	c.tabsMu.RLock()
	pages := make([]*Page, 0, len(c.tabs))
	for _, t := range c.tabs {
		pages = append(pages, t.Page)
	}
	c.tabsMu.RUnlock()

	out := make([]PageStats, 0, len(pages))
	for _, p := range pages {
		if s, err := p.Stats(ctx); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Close stops every page and disconnects. Tabs stay open in the browser.
func (c *Client) Close() error {
	c.tabsMu.Lock()
	tabs := c.tabs
	c.tabs = make(map[target.ID]*TabContext)
	c.tabsMu.Unlock()
	for _, t := range tabs {
		t.Page.Close()
	}

	if c.runCancel != nil {
		c.runCancel()
	}
	c.wg.Wait()
	for _, t := range tabs {
		t.cancel()
	}
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("cdp client closed")
	return nil
}

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func (c *Client) matchesTabURL(url string) bool {
	if c.opts.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.opts.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
