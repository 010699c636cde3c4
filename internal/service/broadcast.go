package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/tyresync/internal/adapter/otel"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/port/broadcast"
)

// ObserverLister yields a point-in-time copy of the registered observers.
type ObserverLister interface {
	ListAll() []realtime.Observer
}

// BroadcastChannel fans published snapshots out to every registered observer.
type BroadcastChannel struct {
	observers ObserverLister
	metrics   *otel.Metrics
}

// NewBroadcastChannel creates a channel publishing to the observers listed by
// observers. metrics may be nil.
func NewBroadcastChannel(observers ObserverLister, metrics *otel.Metrics) *BroadcastChannel {
	return &BroadcastChannel{observers: observers, metrics: metrics}
}

var _ broadcast.Publisher = (*BroadcastChannel)(nil)

// Publish hands the frame for (topic, snapshot) to each observer's transport.
// A failed send is logged and counted; it never stops the loop and is never
// returned. Transports queue frames, so Publish does not wait on the network.
func (b *BroadcastChannel) Publish(ctx context.Context, topic realtime.Topic, snapshot realtime.Snapshot) broadcast.Result {
	start := time.Now()
	observers := b.observers.ListAll()

	ctx, span := otel.StartPublishSpan(ctx, topic.String(), len(observers))
	defer span.End()

	frame, err := realtime.EncodeMessage(topic, snapshot)
	if err != nil {
		slog.Error("encode broadcast frame", "topic", topic, "error", err)
		return broadcast.Result{}
	}

	var res broadcast.Result
	for i := range observers {
		o := &observers[i]
		if !o.Accepts(topic) || o.Transport == nil {
			continue
		}
		res.Attempted++
		if err := o.Transport.Send(ctx, frame); err != nil {
			res.Failed++
			level := slog.LevelWarn
			if errors.Is(err, realtime.ErrObserverClosed) {
				level = slog.LevelDebug
			}
			slog.Log(ctx, level, "broadcast delivery failed",
				"topic", topic, "observer_id", o.ID, "error", err)
		}
	}

	b.metrics.RecordPublish(ctx, topic.String(), res.Attempted, res.Failed, snapshot.Len(), time.Since(start))
	slog.Debug("broadcast published", "topic", topic, "attempted", res.Attempted, "failed", res.Failed)
	return res
}
