package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 5, 5)

	if !b.Allow(5) {
		t.Fatalf("expected initial burst of 5 to succeed")
	}
	if b.Allow(1) {
		t.Fatalf("expected empty bucket to reject")
	}

	clk.Advance(200 * time.Millisecond) // refills 1 token at 5/sec
	if !b.Allow(1) {
		t.Fatalf("expected 1 token after 200ms")
	}
	if b.Allow(1) {
		t.Fatalf("expected bucket empty again")
	}
}

func TestTokenBucket_CapsAtCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 2, 100)

	clk.Advance(time.Hour)
	if !b.Allow(2) {
		t.Fatalf("expected capacity tokens after long idle")
	}
	if b.Allow(1) {
		t.Fatalf("refill must not exceed capacity")
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow(1) {
		t.Fatalf("expected initial token")
	}
	clk.Advance(-10 * time.Second)
	if b.Allow(1) {
		t.Fatalf("expected no refill when time goes backwards")
	}
	clk.Advance(11 * time.Second)
	if !b.Allow(1) {
		t.Fatalf("expected refill after clock recovers")
	}
}

func TestTokenBucket_ZeroCostAlwaysAllowed(t *testing.T) {
	b := NewTokenBucket(&fakeClock{}, 0, 0)
	if !b.Allow(0) {
		t.Fatalf("Allow(0) must succeed")
	}
	if b.Allow(1) {
		t.Fatalf("zero-capacity bucket must reject")
	}
}
