package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownFiresExactlyOnce(t *testing.T) {
	var fired atomic.Int32

	c := NewCountdown(time.Now().Add(30*time.Millisecond), 10*time.Millisecond, nil, func() {
		fired.Add(1)
	})
	c.Start()
	defer c.Stop()

	time.Sleep(150 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("onExpire fired %d times, want 1", got)
	}
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	var fired atomic.Int32

	c := NewCountdown(time.Now().Add(30*time.Millisecond), 10*time.Millisecond, nil, func() {
		fired.Add(1)
	})
	c.Start()
	c.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("onExpire fired %d times after stop, want 0", got)
	}
}

func TestCountdownRemainingClampedToZero(t *testing.T) {
	base := time.Now()
	clock := func() time.Time { return base }

	c := NewCountdown(base.Add(-time.Minute), time.Second, clock, func() {})

	if got := c.Remaining(); got != 0 {
		t.Errorf("remaining past deadline = %v, want 0", got)
	}
}

func TestCountdownRemainingIsDeadlineAnchored(t *testing.T) {
	base := time.Now()
	var offset atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(offset.Load()))
	}

	c := NewCountdown(base.Add(10*time.Minute), time.Second, clock, func() {})

	if got := c.Remaining(); got != 10*time.Minute {
		t.Errorf("remaining = %v, want 10m", got)
	}

	// Jumping the clock forward shrinks remaining by the same amount; nothing
	// is decremented tick by tick.
	offset.Store(int64(4 * time.Minute))
	if got := c.Remaining(); got != 6*time.Minute {
		t.Errorf("remaining after clock jump = %v, want 6m", got)
	}
}
