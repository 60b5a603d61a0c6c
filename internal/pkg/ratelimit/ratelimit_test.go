package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, scope string, rate, burst float64) (*Limiter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(rdb, nil, scope, rate, burst), rdb
}

func TestAllowSeparatesSubjects(t *testing.T) {
	limiter, _ := newLimiter(t, "login", 1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, err := limiter.Allow(ctx, "10.0.0.1"); err != nil || !ok {
			t.Fatalf("attempt %d should pass, ok=%v err=%v", i, ok, err)
		}
	}
	ok, retry, err := limiter.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok || retry <= 0 || retry > time.Second {
		t.Fatalf("expected rejection with retry in (0,1s], ok=%v retry=%v", ok, retry)
	}

	if ok, _, err := limiter.Allow(ctx, "10.0.0.2"); err != nil || !ok {
		t.Fatalf("other subjects have their own bucket, ok=%v err=%v", ok, err)
	}
}

func TestTakeReportsRemaining(t *testing.T) {
	limiter, rdb := newLimiter(t, "sync", 5, 3)
	ctx := context.Background()

	d, err := limiter.Take(ctx, "7")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("unexpected decision %+v", d)
	}
	ttl, err := rdb.PTTL(ctx, limiter.key("7")).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("bucket key should expire, ttl=%v err=%v", ttl, err)
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	limiter, _ := newLimiter(t, "mail", 10, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("warm acquire: %v", err)
	}

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("blocked acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected to wait for a refill, elapsed=%v", elapsed)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	limiter, _ := newLimiter(t, "mail", 1, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("warm acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, ""); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("expected ErrRateLimitTimeout, got %v", err)
	}
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	var nilLimiter *Limiter
	if ok, _, err := nilLimiter.Allow(context.Background(), "x"); !ok || err != nil {
		t.Fatalf("nil limiter should allow, ok=%v err=%v", ok, err)
	}
	zero := NewLimiter(nil, nil, "sync", 0, 0)
	if err := zero.Acquire(context.Background()); err != nil {
		t.Fatalf("zero-rate limiter should not block: %v", err)
	}
	if d, err := zero.Take(context.Background(), "x"); err != nil || !d.Allowed {
		t.Fatalf("zero-rate limiter should allow, %+v %v", d, err)
	}
}

func TestRedisErrorFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := NewLimiter(rdb, nil, "login", 1, 1)
	mr.Close()

	ok, _, err := limiter.Allow(context.Background(), "ip")
	if err == nil || !ok {
		t.Fatalf("expected fail-open with error, ok=%v err=%v", ok, err)
	}
}
