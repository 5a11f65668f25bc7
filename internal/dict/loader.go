package dict

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Source produces a table. FileSource is the usual implementation.
type Source func(ctx context.Context) (Data, error)

// FileSource reads a table from path.
func FileSource(path string) Source {
	return func(ctx context.Context) (Data, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return ReadFile(path)
	}
}

// StaticSource returns d as is.
func StaticSource(d Data) Source {
	return func(context.Context) (Data, error) {
		return d, nil
	}
}

// Handle is a one-shot load result. Callers block in Wait until the
// background load has finished.
type Handle struct {
	name string
	done chan struct{}
	data Data
	err  error
}

func newHandle(name string) *Handle {
	return &Handle{name: name, done: make(chan struct{})}
}

// Loaded returns a Handle that is already complete.
func Loaded(name string, d Data) *Handle {
	h := newHandle(name)
	h.finish(d, nil)
	return h
}

func (h *Handle) finish(d Data, err error) {
	h.data, h.err = d, err
	close(h.done)
}

// Name returns the table name the handle was created for.
func (h *Handle) Name() string { return h.name }

// Ready reports whether the load has completed, successfully or not.
func (h *Handle) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the table is loaded or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Data, error) {
	select {
	case <-h.done:
		return h.data, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Set is a group of tables loaded concurrently.
type Set struct {
	handles map[string]*Handle
	done    chan struct{}
	err     error
}

// LoadSet starts loading every source in the background and returns
// immediately. A failing source cancels the others.
func LoadSet(ctx context.Context, sources map[string]Source, log *slog.Logger) *Set {
	if log == nil {
		log = slog.Default()
	}
	s := &Set{
		handles: make(map[string]*Handle, len(sources)),
		done:    make(chan struct{}),
	}
	g, gctx := errgroup.WithContext(ctx)
	for name, src := range sources {
		h := newHandle(name)
		s.handles[name] = h
		g.Go(func() error {
			start := time.Now()
			d, err := src(gctx)
			h.finish(d, err)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			log.Debug("table loaded", "table", name, "rows", len(d), "elapsed", time.Since(start))
			return nil
		})
	}
	go func() {
		s.err = g.Wait()
		if s.err != nil {
			log.Warn("table load failed", "error", s.err)
		}
		close(s.done)
	}()
	return s
}

// Get returns the handle for name, or nil if the set has no such table.
func (s *Set) Get(name string) *Handle {
	return s.handles[name]
}

// Wait blocks until every table in the set has finished loading.
func (s *Set) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active holds the current immutable snapshot of T. Readers that loaded a
// snapshot keep using it after a swap.
type Active[T any] struct {
	p atomic.Pointer[T]
}

// Load returns the current snapshot, or nil before the first Store.
func (a *Active[T]) Load() *T {
	return a.p.Load()
}

// Store replaces the snapshot and returns the previous one.
func (a *Active[T]) Store(v *T) *T {
	return a.p.Swap(v)
}
