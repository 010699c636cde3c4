package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/tyresync/internal/adapter/otel"
	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/port/broadcast"
	"github.com/Strob0t/tyresync/internal/port/messagequeue"
	"github.com/Strob0t/tyresync/internal/resilience"
)

// MutationRelay carries "please notify" requests from processes that commit
// writes without owning the WebSocket connections (the admin CLI) to the
// server that does. Requests never carry data; the server re-reads the store.
type MutationRelay struct {
	queue    messagequeue.Queue
	breaker  *resilience.Breaker
	notifier broadcast.Notifier
	// providers maps each relayable topic to the store read that backs it.
	providers map[realtime.Topic]realtime.SnapshotProvider
	metrics   *otel.Metrics
}

// NewMutationRelay creates a relay. notifier and providers are only needed on
// the receiving side (Start); breaker may be nil. Requests for a topic with
// no provider are dropped.
func NewMutationRelay(queue messagequeue.Queue, breaker *resilience.Breaker, notifier broadcast.Notifier, providers map[realtime.Topic]realtime.SnapshotProvider, metrics *otel.Metrics) *MutationRelay {
	return &MutationRelay{
		queue:     queue,
		breaker:   breaker,
		notifier:  notifier,
		providers: providers,
		metrics:   metrics,
	}
}

// Request publishes a notify request for topic.
func (r *MutationRelay) Request(ctx context.Context, topic realtime.Topic, origin, reason string) error {
	if !topic.Valid() {
		return fmt.Errorf("relay request: %w: invalid topic %q", domain.ErrValidation, topic)
	}
	data, err := json.Marshal(messagequeue.NotifyRequest{Topic: topic.String(), Origin: origin, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal notify request: %w", err)
	}

	publish := func(ctx context.Context) error {
		return r.queue.Publish(ctx, messagequeue.SubjectInstallationsNotify, data)
	}
	if r.breaker != nil {
		err = r.breaker.ExecuteContext(ctx, publish)
	} else {
		err = publish(ctx)
	}
	if err != nil {
		return fmt.Errorf("relay notify request: %w", err)
	}
	return nil
}

// Start subscribes to notify requests and forwards them to the notifier.
// The returned function cancels the subscription.
func (r *MutationRelay) Start(ctx context.Context) (func(), error) {
	if r.notifier == nil || len(r.providers) == 0 {
		return nil, fmt.Errorf("relay: notifier and providers are required to receive")
	}
	cancel, err := r.queue.Subscribe(ctx, messagequeue.SubjectInstallationsNotify, r.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectInstallationsNotify, err)
	}
	slog.Info("mutation relay listening", "subject", messagequeue.SubjectInstallationsNotify)
	return cancel, nil
}

func (r *MutationRelay) handle(ctx context.Context, _ string, data []byte) error {
	var req messagequeue.NotifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("unmarshal notify request: %w", err)
	}
	topic := realtime.Topic(req.Topic)
	if !topic.Valid() {
		return fmt.Errorf("notify request: %w: invalid topic %q", domain.ErrValidation, req.Topic)
	}
	provider, ok := r.providers[topic]
	if !ok {
		// Acked, not retried: redelivery cannot make the topic known.
		slog.Warn("dropped notify request for unknown topic", "topic", topic, "origin", req.Origin)
		return nil
	}

	r.metrics.RecordRelay(ctx, req.Origin)
	slog.Info("relayed notify request", "topic", topic, "origin", req.Origin, "reason", req.Reason)
	return r.notifier.Notify(ctx, topic, provider)
}
