package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned when posting to a loop that has stopped.
var ErrClosed = errors.New("eventloop: closed")

const defaultQueueSize = 256

// Loop runs posted tasks one at a time on a single goroutine, in the order
// they were posted. Everything a page owns (DOM mirror, overlay session,
// debounce timer) is touched only from inside a task.
type Loop struct {
	wake chan struct{}
	done chan struct{}

	mu     sync.Mutex
	queue  []func()
	closed bool
}

// New creates a loop. queue is the initial capacity of the task queue (0
// picks a default); the queue grows past it rather than reordering.
func New(queue int) *Loop {
	if queue <= 0 {
		queue = defaultQueueSize
	}
	return &Loop{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		queue: make([]func(), 0, queue),
	}
}

// Run executes tasks until ctx is cancelled or Close is called. A panicking
// task is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		if err := ctx.Err(); err != nil {
			l.drop()
			return err
		}

		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range batch {
			if err := ctx.Err(); err != nil {
				l.drop()
				return err
			}
			l.exec(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
		case <-l.wake:
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventloop task panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks; Run returns after draining queued ones.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// drop closes the loop and discards whatever is still queued.
func (l *Loop) drop() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}

// Timer is a scheduled task that posts to the loop when it fires.
type Timer struct {
	t *time.Timer
}

// AfterFunc posts fn to the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, func() { l.Post(fn) })}
}

// Stop cancels the timer. It reports false if the timer already fired.
func (t *Timer) Stop() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}
