package session

import (
	"sync"
	"time"
)

// Countdown tracks an absolute deadline and fires an expiry callback exactly
// once when it passes. Remaining time is always recomputed as deadline minus
// wall clock, never decremented, so it survives reconnects and clock drift
// on the client side.
type Countdown struct {
	deadline time.Time
	tick     time.Duration
	now      func() time.Time
	onExpire func()

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCountdown creates a countdown against deadline. onExpire runs on the
// countdown's own goroutine; the owner is responsible for making it safe to
// call after Stop (the session's finalize latch covers this).
func NewCountdown(deadline time.Time, tick time.Duration, now func() time.Time, onExpire func()) *Countdown {
	if now == nil {
		now = time.Now
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Countdown{
		deadline: deadline,
		tick:     tick,
		now:      now,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}
}

// Start begins ticking in a goroutine. One-second granularity is enough;
// correctness comes from the deadline, not the tick rate.
func (c *Countdown) Start() {
	go c.run()
}

func (c *Countdown) run() {
	t := time.NewTicker(c.tick)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if c.Remaining() > 0 {
				continue
			}
			// Edge-triggered: fire once, then the loop exits for good.
			select {
			case <-c.stop:
				return
			default:
			}
			c.onExpire()
			return
		}
	}
}

// Remaining returns time left until the deadline, clamped to zero.
func (c *Countdown) Remaining() time.Duration {
	rem := c.deadline.Sub(c.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// Stop halts ticking so no expiry fires after the owner has gone terminal.
// Safe to call more than once.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
