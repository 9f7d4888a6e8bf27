package overlay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// DefaultLookupTimeout bounds a single hover lookup.
const DefaultLookupTimeout = 10 * time.Second

// Poster queues work onto the goroutine that owns the controller.
// eventloop.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// EventType names a session transition.
type EventType string

const (
	EventCreated   EventType = "created"
	EventLoaded    EventType = "loaded"
	EventFailed    EventType = "failed"
	EventDestroyed EventType = "destroyed"
	EventStale     EventType = "stale"
)

// Event is passed to Options.Observer. Session is a copy.
type Event struct {
	Type    EventType `json:"type"`
	Session Session   `json:"session"`
}

type Options struct {
	DefaultDecimals int
	Timeout         time.Duration
	Formatter       *Formatter
	Observer        func(Event)
}

// Controller owns the single overlay session. Every method except Close
// must be called from the Poster's goroutine.
type Controller struct {
	lookup  bridge.Lookup
	surface Surface
	post    Poster
	opts    Options

	current    *Session
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(lookup bridge.Lookup, surface Surface, post Poster, opts Options) *Controller {
	if opts.DefaultDecimals <= 0 {
		opts.DefaultDecimals = mintinfo.DefaultDecimals
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLookupTimeout
	}
	if opts.Formatter == nil {
		opts.Formatter = NewFormatter(language.AmericanEnglish)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		lookup:  lookup,
		surface: surface,
		post:    post,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// MouseOver handles a hover event. A non-marked target dismisses the
// overlay; a marked one enters it.
func (c *Controller) MouseOver(t Target) {
	if !t.Marked {
		c.Dismiss()
		return
	}
	c.HoverEnter(t.Anchor)
}

// HoverEnter shows an overlay for a. Re-entering the current anchor is a
// no-op.
func (c *Controller) HoverEnter(a Anchor) {
	if c.current != nil && c.current.Anchor.ID == a.ID {
		return
	}
	c.Dismiss()

	c.generation++
	top, left := position(a)
	s := &Session{
		ID:         uuid.NewString(),
		Generation: c.generation,
		Anchor:     a,
		State:      StateLoading,
		Top:        top,
		Left:       left,
		CreatedAt:  time.Now(),
	}
	if err := c.surface.Mount(s); err != nil {
		slog.Warn("overlay mount failed", "anchor", a.ID, "error", err)
		return
	}
	c.current = s
	slog.Debug("overlay session created", "session", s.ID, "anchor", a.ID, "generation", s.Generation)
	c.emit(EventCreated, s)

	go c.fetch(s.Generation, a.Identifier())
}

// Dismiss destroys the current overlay, if any.
func (c *Controller) Dismiss() {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil
	// Invalidate any lookup still in flight for s.
	c.generation++
	if err := c.surface.Unmount(s); err != nil {
		slog.Warn("overlay unmount failed", "session", s.ID, "error", err)
	}
	c.emit(EventDestroyed, s)
}

// Reset drops the session without touching the surface. Used after a
// navigation has already discarded the page.
func (c *Controller) Reset() {
	if c.current != nil {
		c.emit(EventDestroyed, c.current)
	}
	c.current = nil
	c.generation++
}

// Current returns a copy of the live session.
func (c *Controller) Current() (Session, bool) {
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

// Close cancels in-flight lookups. Safe from any goroutine.
func (c *Controller) Close() {
	c.cancel()
}

func (c *Controller) fetch(gen uint64, identifier string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.Timeout)
	defer cancel()
	res, err := c.lookup.FetchMintInfo(ctx, identifier)
	if !c.post.Post(func() { c.complete(gen, res, err) }) {
		slog.Debug("overlay completion dropped, loop closed", "generation", gen)
	}
}

func (c *Controller) complete(gen uint64, res mintinfo.Result, err error) {
	s := c.current
	if s == nil || gen != c.generation || s.Generation != gen {
		slog.Debug("stale lookup dropped", "generation", gen, "current", c.generation)
		c.emit(EventStale, &Session{Generation: gen})
		return
	}

	if err == nil {
		var rows []Row
		rows, err = buildRows(res, c.opts.DefaultDecimals, c.opts.Formatter)
		if err == nil {
			s.State = StateLoaded
			s.Rows = rows
		}
	}
	if err != nil {
		slog.Warn("overlay lookup failed", "session", s.ID, "anchor", s.Anchor.ID, "error", err)
		s.State = StateFailed
		s.Reason = err.Error()
		s.Rows = nil
	}

	if uerr := c.surface.Update(s); uerr != nil {
		slog.Warn("overlay update failed", "session", s.ID, "error", uerr)
	}
	if s.State == StateLoaded {
		c.emit(EventLoaded, s)
	} else {
		c.emit(EventFailed, s)
	}
}

func (c *Controller) emit(t EventType, s *Session) {
	if c.opts.Observer == nil {
		return
	}
	c.opts.Observer(Event{Type: t, Session: *s})
}
