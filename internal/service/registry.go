package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/tyresync/internal/adapter/otel"
	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
)

// ConnectionRegistry tracks the observers currently connected to this process.
type ConnectionRegistry struct {
	mu        sync.RWMutex
	observers map[string]*realtime.Observer
	metrics   *otel.Metrics
	now       func() time.Time
}

// NewConnectionRegistry creates an empty registry. metrics may be nil.
func NewConnectionRegistry(metrics *otel.Metrics) *ConnectionRegistry {
	return &ConnectionRegistry{
		observers: make(map[string]*realtime.Observer),
		metrics:   metrics,
		now:       time.Now,
	}
}

// Register adds an observer keyed by the transport's ID. Registering an ID
// that is already present replaces the previous entry.
func (r *ConnectionRegistry) Register(t realtime.Transport, remoteAddr string) realtime.Observer {
	o := &realtime.Observer{
		ID:          t.ID(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: r.now().UTC(),
		Transport:   t,
	}

	r.mu.Lock()
	_, replaced := r.observers[o.ID]
	r.observers[o.ID] = o
	r.mu.Unlock()

	if !replaced {
		r.metrics.ObserverRegistered(context.Background())
	}
	slog.Debug("observer registered", "observer_id", o.ID, "remote", remoteAddr, "replaced", replaced)
	return copyObserver(o)
}

// Deregister removes the observer if present. Unknown IDs are ignored.
func (r *ConnectionRegistry) Deregister(observerID string) {
	r.mu.Lock()
	_, ok := r.observers[observerID]
	delete(r.observers, observerID)
	r.mu.Unlock()

	if ok {
		r.metrics.ObserverRemoved(context.Background())
		slog.Debug("observer deregistered", "observer_id", observerID)
	}
}

// ListAll returns a point-in-time copy of current membership.
func (r *ConnectionRegistry) ListAll() []realtime.Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]realtime.Observer, 0, len(r.observers))
	for _, o := range r.observers {
		out = append(out, copyObserver(o))
	}
	return out
}

// Get returns a copy of one observer.
func (r *ConnectionRegistry) Get(observerID string) (realtime.Observer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.observers[observerID]
	if !ok {
		return realtime.Observer{}, false
	}
	return copyObserver(o), true
}

// Len returns the number of registered observers.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// Subscribe adds topic to the observer's topic set. The first subscription
// switches the observer from receiving every topic to receiving only its set.
func (r *ConnectionRegistry) Subscribe(observerID string, topic realtime.Topic) (*realtime.Subscription, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("subscribe %q: %w", topic, domain.ErrValidation)
	}

	r.mu.Lock()
	o, ok := r.observers[observerID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("observer %s: %w", observerID, domain.ErrNotFound)
	}
	o.Filtered = true
	if !slices.Contains(o.Topics, topic) {
		o.Topics = append(o.Topics, topic)
	}
	r.mu.Unlock()

	return realtime.NewSubscription(observerID, topic, func() {
		r.Unsubscribe(observerID, topic)
	}), nil
}

// Unsubscribe removes topic from the observer's topic set. An observer whose
// last topic is removed receives nothing until it subscribes again.
func (r *ConnectionRegistry) Unsubscribe(observerID string, topic realtime.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.observers[observerID]
	if !ok {
		return
	}
	o.Topics = slices.DeleteFunc(o.Topics, func(t realtime.Topic) bool { return t == topic })
}

func copyObserver(o *realtime.Observer) realtime.Observer {
	c := *o
	c.Topics = slices.Clone(o.Topics)
	return c
}
