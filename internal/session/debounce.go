package session

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces rapid updates for a key into a single write issued
// after a quiet window. Re-triggering a key restarts its window, so only the
// final state before the quiet period is persisted (trailing debounce).
//
// The write callback receives only the key; it is expected to read the
// current value from its owner, which is what makes last-write-wins hold.
type Debouncer[K comparable] struct {
	mu      sync.Mutex
	window  time.Duration
	write   func(ctx context.Context, key K)
	timers  map[K]*time.Timer
	stopped bool
}

// NewDebouncer creates a Debouncer firing write after window of quiet per key.
func NewDebouncer[K comparable](window time.Duration, write func(ctx context.Context, key K)) *Debouncer[K] {
	return &Debouncer[K]{
		window: window,
		write:  write,
		timers: make(map[K]*time.Timer),
	}
}

// Trigger schedules (or reschedules) the write for key.
func (d *Debouncer[K]) Trigger(key K) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d.window, func() { d.fire(key, t) })
	d.timers[key] = t
}

// fire runs a timer's write unless the key was flushed, stopped, or
// rescheduled in the meantime (the map holds a newer timer then).
func (d *Debouncer[K]) fire(key K, t *time.Timer) {
	d.mu.Lock()
	if d.stopped || d.timers[key] != t {
		d.mu.Unlock()
		return
	}
	delete(d.timers, key)
	d.mu.Unlock()

	d.write(context.Background(), key)
}

// Flush cancels every pending timer and runs its write immediately.
// Callers use this to guarantee durability before closing the owner.
func (d *Debouncer[K]) Flush(ctx context.Context) {
	d.mu.Lock()
	keys := make([]K, 0, len(d.timers))
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, k := range keys {
		d.write(ctx, k)
	}
}

// Stop abandons all pending writes and rejects future triggers.
func (d *Debouncer[K]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}

// Pending returns the number of keys with a scheduled write.
func (d *Debouncer[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
