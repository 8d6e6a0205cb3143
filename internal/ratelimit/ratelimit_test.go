package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		RequestsPerSecond: 1,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "u1"

	// Burst-size requests go through immediately
	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow(key) {
		t.Error("Request after burst should be denied")
	}

	// One token refills per second at 1 rps
	time.Sleep(1100 * time.Millisecond)

	if !limiter.Allow(key) {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	cfg := Config{
		RequestsPerSecond: 1,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("u1")
	}

	if limiter.Allow("u1") {
		t.Error("u1 should be rate limited")
	}
	if !limiter.Allow("u2") {
		t.Error("u2 should not be rate limited by u1's spending")
	}
}

func TestLimiterRefillCapsAtBurst(t *testing.T) {
	cfg := Config{
		RequestsPerSecond: 1000,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	limiter.Allow("u1")
	limiter.Allow("u1")
	time.Sleep(50 * time.Millisecond)

	// Even after a long refill window only burst-size tokens are available
	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("u1") {
			allowed++
		}
	}
	if allowed > 2 {
		t.Errorf("expected at most 2 allowed after refill, got %d", allowed)
	}
}
