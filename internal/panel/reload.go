package panel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Store holds the current rules and reloads them when the file changes.
type Store struct {
	path string
	cur  atomic.Pointer[Rules]

	mu      sync.Mutex
	subs    map[int]func(*Rules)
	nextSub int
}

// OpenStore loads rules from path. An empty path yields DefaultRules and a
// store that never reloads.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		s.cur.Store(DefaultRules())
		return s, nil
	}
	r, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	s.cur.Store(r)
	return s, nil
}

// Rules returns the current snapshot. Callers must not mutate it.
func (s *Store) Rules() *Rules {
	return s.cur.Load()
}

// OnChange registers fn to receive every successfully reloaded rule set.
// The returned func unregisters it.
func (s *Store) OnChange(fn func(*Rules)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(*Rules))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Subscribers reports how many OnChange callbacks are registered.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Watch reloads the rules file until ctx is done. It watches the parent
// directory so editors that save by rename are picked up. A file that
// fails to parse keeps the previous rules.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("panel: watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("panel: rules path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("panel: watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("watching panel rules", "path", abs)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("panel rules watcher error", "error", err)
		case <-fire:
			s.reload()
		}
	}
}

func (s *Store) reload() {
	r, err := LoadRules(s.path)
	if err != nil {
		slog.Warn("panel rules reload failed, keeping previous", "path", s.path, "error", err)
		return
	}
	s.cur.Store(r)
	slog.Info("panel rules reloaded", "path", s.path, "patterns", len(r.URLPatterns))

	s.mu.Lock()
	subs := make([]func(*Rules), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(r)
	}
}
