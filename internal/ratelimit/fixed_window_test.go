package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterBoundsUserEvents(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	if !limiter.Allow("user-1") {
		t.Fatalf("first event should pass")
	}
	if !limiter.Allow("user-1") {
		t.Fatalf("second event should pass")
	}
	if limiter.Allow("user-1") {
		t.Fatalf("third event should be blocked")
	}
	// quota is per user, not global
	if !limiter.Allow("user-2") {
		t.Fatalf("other users must keep their own quota")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("user-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Minute)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestFixedWindowLimiterRejectsInvalidQuota(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "test:ratelimit", 0, time.Minute); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "test:ratelimit", 1, 0); err == nil {
		t.Fatalf("expected constructor error for zero window")
	}
}
