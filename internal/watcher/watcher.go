package watcher

import (
	"log/slog"
	"time"

	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/eventloop"
)

// DefaultWindow is the quiet interval before a rescan runs.
const DefaultWindow = 100 * time.Millisecond

// Stats counts watcher activity.
type Stats struct {
	Batches  int       `json:"batches"`
	Scans    int       `json:"scans"`
	LastScan time.Time `json:"last_scan"`
}

// Watcher turns mutation batches into coalesced rescans of the whole root.
type Watcher struct {
	deb   *Debouncer
	scan  func()
	stats Stats

	unobserve func()
}

// New returns a watcher that calls scan on the loop after each burst of
// mutations settles for window.
func New(loop *eventloop.Loop, window time.Duration, scan func()) *Watcher {
	if window <= 0 {
		window = DefaultWindow
	}
	w := &Watcher{scan: scan}
	w.deb = NewDebouncer(loop, window, w.run)
	return w
}

// ObserveDocument subscribes to an in-memory document's mutations.
func (w *Watcher) ObserveDocument(doc *dom.Document) {
	if w.unobserve != nil {
		w.unobserve()
	}
	w.unobserve = doc.Observe(func(batch []dom.MutationRecord) {
		w.Notify(len(batch))
	})
}

// Notify records a mutation batch of n records and restarts the window.
// Must be called on the loop.
func (w *Watcher) Notify(n int) {
	if n <= 0 {
		return
	}
	w.stats.Batches++
	w.deb.Trigger()
}

// Stop cancels any pending scan and detaches from the document.
func (w *Watcher) Stop() {
	w.deb.Cancel()
	if w.unobserve != nil {
		w.unobserve()
		w.unobserve = nil
	}
}

// Stats returns a copy of the counters. Must be called on the loop.
func (w *Watcher) Stats() Stats {
	return w.stats
}

func (w *Watcher) run() {
	w.stats.Scans++
	w.stats.LastScan = time.Now()
	start := time.Now()
	w.scan()
	slog.Debug("watcher rescan done", "scans", w.stats.Scans, "batches", w.stats.Batches, "duration_ms", time.Since(start).Milliseconds())
}
