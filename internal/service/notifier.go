package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/tyresync/internal/adapter/otel"
	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/port/broadcast"
)

// MutationNotifier bridges committed writes to the broadcast layer.
type MutationNotifier struct {
	publisher broadcast.Publisher
	metrics   *otel.Metrics

	// mu serializes snapshot read and publish so observers see publications
	// of a topic in the order Notify was called.
	mu sync.Mutex
}

// NewMutationNotifier creates a notifier publishing through publisher.
func NewMutationNotifier(publisher broadcast.Publisher, metrics *otel.Metrics) *MutationNotifier {
	return &MutationNotifier{publisher: publisher, metrics: metrics}
}

var _ broadcast.Notifier = (*MutationNotifier)(nil)

// Notify reads the current snapshot through provider and publishes it on
// topic. It must only be called after the mutation has been committed.
// A provider failure returns an error wrapping realtime.ErrSnapshotRead and
// nothing is published.
func (n *MutationNotifier) Notify(ctx context.Context, topic realtime.Topic, provider realtime.SnapshotProvider) error {
	if !topic.Valid() {
		return fmt.Errorf("notify: %w: invalid topic %q", domain.ErrValidation, topic)
	}

	ctx, span := otel.StartNotifySpan(ctx, topic.String())
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()

	snap, err := provider(ctx)
	if err != nil {
		n.metrics.RecordNotification(ctx, topic.String(), true)
		span.RecordError(err)
		return fmt.Errorf("notify %s: %w: %w", topic, realtime.ErrSnapshotRead, err)
	}

	res := n.publisher.Publish(ctx, topic, snap)
	n.metrics.RecordNotification(ctx, topic.String(), false)
	slog.Debug("mutation notified", "topic", topic, "observers", res.Attempted, "failed", res.Failed, "bytes", snap.Len())
	return nil
}
