// Package ristretto implements the cache port using dgraph-io/ristretto as L1 in-process cache.
package ristretto

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is the in-process L1 for replayable idempotent responses.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache bounded to maxSizeMB megabytes of values.
func New(maxSizeMB int64) (*Cache, error) {
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	maxCost := maxSizeMB << 20
	// Cached idempotent responses are small JSON bodies; assume ~1 KiB each
	// and keep ten counters per expected entry.
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: (maxCost >> 10) * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns a copy of the cached value.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

// Set stores a copy of value. A non-positive ttl means no expiry.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := bytes.Clone(value)
	if ttl <= 0 {
		c.c.Set(key, v, int64(len(v)))
		return nil
	}
	c.c.SetWithTTL(key, v, int64(len(v)), ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
