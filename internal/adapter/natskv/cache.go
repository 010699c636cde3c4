// Package natskv implements the cache port using NATS JetStream KV as L2 remote cache.
package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// headerLen is the size of the expiry prefix stored in front of every value.
const headerLen = 8

// Cache stores idempotent responses in a JetStream KeyValue bucket so they
// survive a process restart. The bucket TTL bounds retention; per-entry TTLs
// are enforced on read from an expiry prefix.
type Cache struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// Key maps an arbitrary cache key onto the KV key alphabet.
// Idempotency keys carry ':' and '/' from the request path, which KV rejects.
func Key(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get retrieves a value, treating expired entries as misses.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, Key(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get: %w", err)
	}
	raw := entry.Value()
	if len(raw) < headerLen {
		return nil, false, nil
	}
	if exp := int64(binary.BigEndian.Uint64(raw[:headerLen])); exp != 0 && c.now().UnixNano() > exp {
		return nil, false, nil
	}
	return append([]byte(nil), raw[headerLen:]...), true, nil
}

// Set stores value with an expiry prefix. A non-positive ttl defers to the bucket TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, headerLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf[:headerLen], uint64(c.now().Add(ttl).UnixNano()))
	}
	copy(buf[headerLen:], value)
	if _, err := c.kv.Put(ctx, Key(key), buf); err != nil {
		return fmt.Errorf("natskv put: %w", err)
	}
	return nil
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, Key(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("natskv delete: %w", err)
	}
	return nil
}
