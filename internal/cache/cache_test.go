package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNilCacheNeverHits(t *testing.T) {
	var c *Redis
	c.Set(context.Background(), "k", 1)
	var out int
	if c.Get(context.Background(), "k", &out) {
		t.Fatal("nil cache must miss")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is required for redis tests")
	}
	c, err := NewRedis(addr, "", 0, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer c.Close()

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	c.Set(context.Background(), key, map[string]int{"visits": 3})
	var out map[string]int
	if !c.Get(context.Background(), key, &out) || out["visits"] != 3 {
		t.Fatalf("unexpected cached value: %v", out)
	}
}
