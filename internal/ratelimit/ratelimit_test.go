package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestGenerateLimiterNilFailsOpen(t *testing.T) {
	var limiter *GenerateLimiter

	res, err := limiter.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("a missing limiter must never block requests")
	}
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	var bucket *TokenBucket
	if _, err := bucket.Allow(context.Background(), "k", 1, 1); err == nil {
		t.Fatal("expected error without a client")
	}
}

func TestBucketTTL(t *testing.T) {
	if got := bucketTTL(1, 10); got != 20*time.Second {
		t.Fatalf("expected 20s, got %s", got)
	}
	if got := bucketTTL(100, 1); got < time.Second {
		t.Fatalf("ttl must be at least a second, got %s", got)
	}
}

func TestCastHelpers(t *testing.T) {
	if got := castToInt(int64(1)); got != 1 {
		t.Fatalf("castToInt(int64) = %d", got)
	}
	if got := castToFloat("2.5"); got != 2.5 {
		t.Fatalf("castToFloat(string) = %f", got)
	}
	if got := castToFloat(nil); got != 0 {
		t.Fatalf("castToFloat(nil) = %f", got)
	}
}

func TestLockerValidatesArguments(t *testing.T) {
	var locker *Locker
	if _, _, err := locker.TryLock(context.Background(), "k", time.Second); err == nil {
		t.Fatal("expected error without a client")
	}
	if err := locker.Release(context.Background(), "k", "token"); err != nil {
		t.Fatalf("release on a nil locker must be a no-op, got %v", err)
	}
}
