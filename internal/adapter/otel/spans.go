package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tyresync"

// StartNotifySpan starts a span covering snapshot read plus broadcast.
func StartNotifySpan(ctx context.Context, topic string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notify",
		trace.WithAttributes(attribute.String("realtime.topic", topic)),
	)
}

// StartPublishSpan starts a span for one fan-out pass.
func StartPublishSpan(ctx context.Context, topic string, observers int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "broadcast",
		trace.WithAttributes(
			attribute.String("realtime.topic", topic),
			attribute.Int("realtime.observers", observers),
		),
	)
}

// StartMutationSpan starts a span for an installation write.
func StartMutationSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "installation."+op,
		trace.WithAttributes(attribute.String("installation.id", id)),
	)
}
