package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tyresync"

// Metrics holds the fan-out metric instruments. A nil *Metrics is valid and
// records nothing, so components can be built without telemetry in tests.
type Metrics struct {
	Observers          metric.Int64UpDownCounter
	Publishes          metric.Int64Counter
	Deliveries         metric.Int64Counter
	DeliveryFailures   metric.Int64Counter
	Notifications      metric.Int64Counter
	SnapshotFailures   metric.Int64Counter
	SnapshotBytes      metric.Int64Histogram
	PublishDuration    metric.Float64Histogram
	RelayedNotifyCalls metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Observers, err = meter.Int64UpDownCounter("tyresync.observers",
		metric.WithDescription("Currently registered observers"))
	if err != nil {
		return nil, err
	}

	m.Publishes, err = meter.Int64Counter("tyresync.broadcast.publishes",
		metric.WithDescription("Broadcast publish operations"))
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("tyresync.broadcast.deliveries",
		metric.WithDescription("Frames handed to observer transports"))
	if err != nil {
		return nil, err
	}

	m.DeliveryFailures, err = meter.Int64Counter("tyresync.broadcast.delivery_failures",
		metric.WithDescription("Frames an observer transport refused"))
	if err != nil {
		return nil, err
	}

	m.Notifications, err = meter.Int64Counter("tyresync.notifier.notifications",
		metric.WithDescription("Mutation notifications processed"))
	if err != nil {
		return nil, err
	}

	m.SnapshotFailures, err = meter.Int64Counter("tyresync.notifier.snapshot_failures",
		metric.WithDescription("Snapshot reads that failed after a mutation"))
	if err != nil {
		return nil, err
	}

	m.SnapshotBytes, err = meter.Int64Histogram("tyresync.broadcast.snapshot_bytes",
		metric.WithDescription("Size of published snapshots"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	m.PublishDuration, err = meter.Float64Histogram("tyresync.broadcast.duration_seconds",
		metric.WithDescription("Time spent fanning a snapshot out"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.RelayedNotifyCalls, err = meter.Int64Counter("tyresync.relay.notify_requests",
		metric.WithDescription("Notify requests received over NATS"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserverRegistered records an observer joining.
func (m *Metrics) ObserverRegistered(ctx context.Context) {
	if m == nil {
		return
	}
	m.Observers.Add(ctx, 1)
}

// ObserverRemoved records an observer leaving.
func (m *Metrics) ObserverRemoved(ctx context.Context) {
	if m == nil {
		return
	}
	m.Observers.Add(ctx, -1)
}

// RecordPublish records one fan-out pass.
func (m *Metrics) RecordPublish(ctx context.Context, topic string, attempted, failed, size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	m.Publishes.Add(ctx, 1, attrs)
	m.Deliveries.Add(ctx, int64(attempted-failed), attrs)
	if failed > 0 {
		m.DeliveryFailures.Add(ctx, int64(failed), attrs)
	}
	m.SnapshotBytes.Record(ctx, int64(size), attrs)
	m.PublishDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordNotification records a notify call and whether its snapshot read failed.
func (m *Metrics) RecordNotification(ctx context.Context, topic string, snapshotFailed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	m.Notifications.Add(ctx, 1, attrs)
	if snapshotFailed {
		m.SnapshotFailures.Add(ctx, 1, attrs)
	}
}

// RecordRelay records a notify request received from the message queue.
func (m *Metrics) RecordRelay(ctx context.Context, origin string) {
	if m == nil {
		return
	}
	m.RelayedNotifyCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("origin", origin)))
}
