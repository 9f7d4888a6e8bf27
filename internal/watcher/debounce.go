package watcher

import (
	"time"

	"github.com/dgnsrekt/mintlens/internal/eventloop"
)

// Debouncer runs fn once, wait after the last Trigger. At most one task is
// pending at any time. All methods must be called from the loop.
type Debouncer struct {
	loop *eventloop.Loop
	wait time.Duration
	fn   func()

	seq   uint64
	timer *eventloop.Timer
}

func NewDebouncer(loop *eventloop.Loop, wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{loop: loop, wait: wait, fn: fn}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.seq++
	seq := d.seq
	d.timer.Stop()
	d.timer = d.loop.AfterFunc(d.wait, func() {
		// A timer that fired just before Stop may still reach the loop.
		if seq != d.seq {
			return
		}
		d.timer = nil
		d.fn()
	})
}

// Cancel drops the pending task, if any.
func (d *Debouncer) Cancel() {
	d.seq++
	d.timer.Stop()
	d.timer = nil
}

// Pending reports whether a task is scheduled.
func (d *Debouncer) Pending() bool {
	return d.timer != nil
}
