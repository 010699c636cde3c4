// Package cachetest holds a behavioural suite shared by every cache.Cache adapter.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/tyresync/internal/port/cache"
)

// Run exercises the contract of cache.Cache against c.
// settle is called after each write so adapters with asynchronous admission
// (ristretto) can flush; pass nil when writes are immediately visible.
func Run(t *testing.T, c cache.Cache, settle func()) {
	t.Helper()
	ctx := context.Background()
	if settle == nil {
		settle = func() {}
	}

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "idem:POST:/api/v1/installations:k1", []byte(`{"id":"a"}`), time.Minute); err != nil {
			t.Fatal(err)
		}
		settle()
		val, found, err := c.Get(ctx, "idem:POST:/api/v1/installations:k1")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != `{"id":"a"}` {
			t.Fatalf("unexpected value %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "idem:never-set")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for unknown key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "idem:del", []byte("x"), time.Minute)
		settle()
		if err := c.Delete(ctx, "idem:del"); err != nil {
			t.Fatal(err)
		}
		settle()
		_, found, err := c.Get(ctx, "idem:del")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteUnknown", func(t *testing.T) {
		if err := c.Delete(ctx, "idem:unknown"); err != nil {
			t.Fatalf("Delete of unknown key returned %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "idem:ow", []byte("v1"), time.Minute)
		settle()
		_ = c.Set(ctx, "idem:ow", []byte("v2"), time.Minute)
		settle()
		val, found, err := c.Get(ctx, "idem:ow")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %q (found=%v)", val, found)
		}
	})

	t.Run("ValueIsolation", func(t *testing.T) {
		buf := []byte("original")
		_ = c.Set(ctx, "idem:iso", buf, time.Minute)
		settle()
		buf[0] = 'X'
		val, _, _ := c.Get(ctx, "idem:iso")
		if string(val) != "original" {
			t.Fatalf("cache must not alias caller buffers, got %q", val)
		}
	})
}
