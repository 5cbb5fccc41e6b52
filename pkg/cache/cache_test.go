package cache

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"
)

type entry struct {
	Tau   int     `json:"tau"`
	Shift float64 `json:"shift"`
}

func newTestMemory(opts ...MemoryOption) (*MemoryCache, *time.Time) {
	opts = append(opts, WithMemoryCleanup(0))
	mc := NewMemoryCache(opts...)
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	return mc, &now
}

func TestMemoryRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory()
	defer mc.Close()

	if err := mc.Set(ctx, "a", entry{Tau: 99, Shift: -1.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got entry
	if err := mc.Get(ctx, "a", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (entry{Tau: 99, Shift: -1.5}) {
		t.Fatalf("unexpected %+v", got)
	}

	var raw string
	if err := mc.Get(ctx, "a", &raw); err != nil || raw != `{"tau":99,"shift":-1.5}` {
		t.Fatalf("raw get %q, %v", raw, err)
	}

	*now = now.Add(2 * time.Minute)
	if err := mc.Get(ctx, "a", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
	if mc.Len() != 0 {
		t.Fatalf("expired key should be dropped on read")
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", 1, time.Hour)
	*now = now.Add(time.Second)
	_ = mc.Set(ctx, "b", 2, time.Hour)
	*now = now.Add(time.Second)
	var v int
	_ = mc.Get(ctx, "a", &v)
	*now = now.Add(time.Second)
	_ = mc.Set(ctx, "c", 3, time.Hour)

	if mc.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", mc.Len())
	}
	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should have been evicted, got %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if err := mc.Get(ctx, k, &v); err != nil {
			t.Fatalf("%s should remain: %v", k, err)
		}
	}
}

func TestLayeredFillsL1FromL2(t *testing.T) {
	ctx := context.Background()
	remote, _ := newTestMemory()
	lc := NewLayeredCache(remote, 10, time.Minute)
	defer lc.Close()

	_ = remote.Set(ctx, "k", entry{Tau: 3}, time.Hour)

	var got entry
	if err := lc.Get(ctx, "k", &got); err != nil || got.Tau != 3 {
		t.Fatalf("get through: %+v, %v", got, err)
	}
	_ = remote.Delete(ctx, "k")
	if err := lc.Get(ctx, "k", &got); err != nil || got.Tau != 3 {
		t.Fatalf("expected L1 hit, got %+v, %v", got, err)
	}

	_ = lc.Delete(ctx, "k")
	if err := lc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestHashJSONStable(t *testing.T) {
	a, err := HashJSON(map[string]interface{}{"b": 2, "a": []float64{1, 2}})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, _ := HashJSON(map[string]interface{}{"a": []float64{1, 2}, "b": 2})
	c, _ := HashJSON(map[string]interface{}{"a": []float64{1, 2.5}, "b": 2})
	if a != b || a == c || len(a) != 64 {
		t.Fatalf("unexpected hashes %s %s %s", a, b, c)
	}
	if Key("result", a[:8]) != "result:"+a[:8] {
		t.Fatalf("unexpected key")
	}
	if got := (RedisConfig{}).withDefaults(); got.Addr() != "localhost:6379" || got.Prefix != "brentshift" {
		t.Fatalf("unexpected defaults %+v", got)
	}
}

// TestRedisCache runs against a live server when REDIS_ADDR=host:port is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	ctx := context.Background()
	rc, err := NewRedisCache(ctx, RedisConfig{Host: host, Port: port, Prefix: "brentshift-test"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rc.Close()

	if err := rc.Set(ctx, "k", entry{Tau: 7}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got entry
	if err := rc.Get(ctx, "k", &got); err != nil || got.Tau != 7 {
		t.Fatalf("get: %+v, %v", got, err)
	}
	if ns := rc.Namespace("queue", "analyses"); ns != "brentshift-test:queue:analyses" {
		t.Fatalf("namespace %q", ns)
	}
	_ = rc.Delete(ctx, "k")
	if err := rc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}
