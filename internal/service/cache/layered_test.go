package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingCache struct {
	*TTLCache
	gets   int
	setErr error
	closed bool
}

func (c *countingCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets++
	return c.TTLCache.GetBytes(ctx, key)
}

func (c *countingCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.TTLCache.SetBytes(ctx, key, value, ttl)
}

func (c *countingCache) Close() error {
	c.closed = true
	return nil
}

func TestLayeredCacheServesFromMemory(t *testing.T) {
	ctx := context.Background()
	l2 := &countingCache{TTLCache: NewTTLCache()}
	lc := NewLayeredCache(l2, time.Minute)

	if err := lc.SetBytes(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	for i := 0; i < 3; i++ {
		b, ok, err := lc.GetBytes(ctx, "k")
		if err != nil || !ok || string(b) != "v" {
			t.Fatalf("GetBytes = %q %v %v", b, ok, err)
		}
	}
	if l2.gets != 0 {
		t.Fatalf("l2 gets=%d, want 0", l2.gets)
	}

	if err := lc.Close(); err != nil || !l2.closed {
		t.Fatalf("Close should close l2")
	}
}

func TestLayeredCacheFillsMemoryFromShared(t *testing.T) {
	ctx := context.Background()
	l2 := &countingCache{TTLCache: NewTTLCache()}
	_ = l2.TTLCache.SetBytes(ctx, "k", []byte("v"), 0)
	lc := NewLayeredCache(l2, time.Minute)

	lc.GetBytes(ctx, "k")
	lc.GetBytes(ctx, "k")
	if l2.gets != 1 {
		t.Fatalf("l2 gets=%d, want 1", l2.gets)
	}
}

func TestLayeredCacheWriteFailure(t *testing.T) {
	ctx := context.Background()
	l2 := &countingCache{TTLCache: NewTTLCache(), setErr: errors.New("down")}
	lc := NewLayeredCache(l2, time.Minute)

	if err := lc.SetBytes(ctx, "k", []byte("v"), time.Hour); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok, _ := lc.l1.GetBytes(ctx, "k"); ok {
		t.Fatalf("memory must not hold a value the shared cache rejected")
	}
}
