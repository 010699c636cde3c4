package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncState is shared by an AsyncHandler and every handler derived from it
// through WithAttrs/WithGroup.
type asyncState struct {
	queue   chan asyncRecord
	wg      sync.WaitGroup
	dropped atomic.Int64
	once    sync.Once
}

type asyncRecord struct {
	handler slog.Handler
	rec     slog.Record
}

// AsyncHandler hands records to a bounded queue drained by worker goroutines,
// so logging on the fan-out path never waits on stdout. Records are dropped
// and counted when the queue is full.
type AsyncHandler struct {
	inner slog.Handler
	state *asyncState
}

// NewAsyncHandler creates an AsyncHandler with the given queue capacity and worker count.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	st := &asyncState{queue: make(chan asyncRecord, queueSize)}
	for range workers {
		st.wg.Add(1)
		go st.drain()
	}
	return &AsyncHandler{inner: inner, state: st}
}

func (s *asyncState) drain() {
	defer s.wg.Done()
	for r := range s.queue {
		_ = r.handler.Handle(context.Background(), r.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.state.queue <- asyncRecord{handler: h.inner, rec: rec.Clone()}:
	default:
		h.state.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the queue but wrapping inner.WithAttrs.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

// WithGroup returns a handler sharing the queue but wrapping inner.WithGroup.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.state.dropped.Load()
}

// Close stops accepting records and waits for queued ones to be written.
// It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.state.once.Do(func() {
		close(h.state.queue)
		h.state.wg.Wait()
	})
}
