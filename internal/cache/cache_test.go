package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

var (
	_ Cache = (*RedisClient)(nil)
	_ Cache = (*MemoryCache)(nil)
)

func TestMemoryCacheScopesByChannel(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour)

	if err := c.MarkProcessed(ctx, 1, "abc"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	if ok, _ := c.IsProcessed(ctx, 1, "abc"); !ok {
		t.Error("Expected fingerprint to be processed for channel 1")
	}
	if ok, _ := c.IsProcessed(ctx, 2, "abc"); ok {
		t.Error("Fingerprint leaked into channel 2")
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	c.MarkProcessed(ctx, 1, "abc")
	now = now.Add(2 * time.Minute)

	if ok, _ := c.IsProcessed(ctx, 1, "abc"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	c.MarkProcessed(ctx, 1, "a")
	c.MarkProcessed(ctx, 11, "b")
	if err := c.ClearProcessed(ctx, 1); err != nil {
		t.Fatalf("ClearProcessed failed: %v", err)
	}

	if ok, _ := c.IsProcessed(ctx, 1, "a"); ok {
		t.Error("Expected channel 1 to be cleared")
	}
	if ok, _ := c.IsProcessed(ctx, 11, "b"); !ok {
		t.Error("Channel 11 must not be cleared with channel 1")
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c.MarkProcessed(ctx, id, "fp")
			c.IsProcessed(ctx, id, "fp")
		}(int64(i))
	}
	wg.Wait()

	for i := range 20 {
		if ok, _ := c.IsProcessed(ctx, int64(i), "fp"); !ok {
			t.Errorf("Missing fingerprint for channel %d", i)
		}
	}
}

func TestKeyLayout(t *testing.T) {
	if got := key("feedcaster:fp:", 7, "deadbeef"); got != "feedcaster:fp:7:deadbeef" {
		t.Errorf("Unexpected key %q", got)
	}
	if got := channelPattern("p:", 7); got != "p:7:*" {
		t.Errorf("Unexpected pattern %q", got)
	}
}
