package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_Burst(t *testing.T) {
	// 10 tokens/sec, burst of 5.
	limiter := New(10, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Errorf("request %d within burst should be allowed", i)
		}
	}

	if limiter.Allow() {
		t.Error("request beyond burst should be denied")
	}
}

func TestLimiter_Refill(t *testing.T) {
	// 100 tokens/sec refills quickly enough to observe in a test.
	limiter := New(100, 10)

	for i := 0; i < 10; i++ {
		limiter.Allow()
	}
	if limiter.Allow() {
		t.Error("bucket should be empty after draining")
	}

	time.Sleep(100 * time.Millisecond)

	if !limiter.Allow() {
		t.Error("bucket should have refilled")
	}
}

func TestLimiter_CapsAtCapacity(t *testing.T) {
	limiter := New(1000, 3)
	time.Sleep(50 * time.Millisecond)

	if tokens := limiter.Tokens(); tokens > 3 {
		t.Errorf("Tokens() = %v, must not exceed capacity", tokens)
	}
}
