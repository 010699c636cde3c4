package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	observerIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithObserverID returns a new context tagged with a WebSocket observer ID.
func WithObserverID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, observerIDKey, id)
}

// ObserverID extracts the observer ID from the context, or "".
func ObserverID(ctx context.Context) string {
	id, _ := ctx.Value(observerIDKey).(string)
	return id
}

// From returns slog.Default() enriched with the request and observer IDs
// carried by ctx.
func From(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	if id := ObserverID(ctx); id != "" {
		l = l.With("observer_id", id)
	}
	return l
}
