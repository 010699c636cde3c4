// Package cache defines the port interface for caching.
//
// tyresync only caches replayable HTTP responses for idempotent writes.
// Installation snapshots are never cached: every notification reads the
// store so observers always receive the post-mutation state.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. Values are opaque bytes.
// A missing or expired key is reported as found=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
