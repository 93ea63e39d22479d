package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler wraps an slog.Handler with a buffered channel and worker pool.
// Records enqueued after Close are counted as dropped.
type AsyncHandler struct {
	inner   slog.Handler
	ch      chan queued
	wg      *sync.WaitGroup
	dropped *atomic.Int64
	closed  *atomic.Bool
	once    *sync.Once
	mu      *sync.RWMutex // guards sends against close(ch)
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan queued, chanSize),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
		closed:  &atomic.Bool{},
		once:    &sync.Once{},
		mu:      &sync.RWMutex{},
	}
	if workers < 1 {
		workers = 1
	}
	for range workers {
		h.wg.Add(1)
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.wg.Done()
	for item := range h.ch {
		_ = item.inner.Handle(item.ctx, item.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the channel is full or closed.
// The context is detached from cancellation but keeps its values.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed.Load() {
		h.dropped.Add(1)
		return nil
	}
	select {
	case h.ch <- queued{ctx: context.WithoutCancel(ctx), rec: rec.Clone(), inner: h.inner}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a new AsyncHandler sharing the same channel but wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		ch:      h.ch,
		wg:      h.wg,
		dropped: h.dropped,
		closed:  h.closed,
		once:    h.once,
		mu:      h.mu,
	}
}

// WithGroup returns a new AsyncHandler sharing the same channel but wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		ch:      h.ch,
		wg:      h.wg,
		dropped: h.dropped,
		closed:  h.closed,
		once:    h.once,
		mu:      h.mu,
	}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close closes the channel and waits for all workers to drain. It is safe
// to call more than once.
func (h *AsyncHandler) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed.Store(true)
		close(h.ch)
		h.mu.Unlock()
	})
	h.wg.Wait()
}

// queued is a record waiting for a worker, bound to the handler (and its
// attrs/groups) that accepted it.
type queued struct {
	ctx   context.Context
	rec   slog.Record
	inner slog.Handler
}
