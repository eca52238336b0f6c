package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

type writeLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *writeLog) add(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
}

func (l *writeLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

func (l *writeLog) count(key string) int {
	n := 0
	for _, k := range l.snapshot() {
		if k == key {
			n++
		}
	}
	return n
}

func TestDebouncerCoalescesRapidTriggers(t *testing.T) {
	log := &writeLog{}
	d := NewDebouncer(30*time.Millisecond, func(_ context.Context, key string) {
		log.add(key)
	})
	defer d.Stop()

	// Rapid A, B, A: A's window restarts, B runs independently.
	d.Trigger("A")
	d.Trigger("B")
	d.Trigger("A")

	time.Sleep(150 * time.Millisecond)

	if got := log.count("A"); got != 1 {
		t.Errorf("key A written %d times, want 1", got)
	}
	if got := log.count("B"); got != 1 {
		t.Errorf("key B written %d times, want 1", got)
	}
}

func TestDebouncerRetriggerAfterFire(t *testing.T) {
	log := &writeLog{}
	d := NewDebouncer(20*time.Millisecond, func(_ context.Context, key string) {
		log.add(key)
	})
	defer d.Stop()

	d.Trigger("A")
	time.Sleep(80 * time.Millisecond)
	d.Trigger("A")
	time.Sleep(80 * time.Millisecond)

	if got := log.count("A"); got != 2 {
		t.Errorf("key A written %d times, want 2 (one per quiet window)", got)
	}
}

func TestDebouncerFlushWritesImmediately(t *testing.T) {
	log := &writeLog{}
	d := NewDebouncer(time.Hour, func(_ context.Context, key string) {
		log.add(key)
	})
	defer d.Stop()

	d.Trigger("A")
	d.Trigger("B")
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}

	d.Flush(context.Background())

	if d.Pending() != 0 {
		t.Errorf("pending after flush = %d, want 0", d.Pending())
	}
	if got := len(log.snapshot()); got != 2 {
		t.Errorf("flush wrote %d keys, want 2", got)
	}

	// The stopped timers must not fire a second write later.
	time.Sleep(50 * time.Millisecond)
	if got := len(log.snapshot()); got != 2 {
		t.Errorf("writes after flush settled = %d, want 2", got)
	}
}

func TestDebouncerStopAbandonsPending(t *testing.T) {
	log := &writeLog{}
	d := NewDebouncer(10*time.Millisecond, func(_ context.Context, key string) {
		log.add(key)
	})

	d.Trigger("A")
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := len(log.snapshot()); got != 0 {
		t.Errorf("writes after stop = %d, want 0", got)
	}

	// Triggers after Stop are rejected.
	d.Trigger("B")
	if d.Pending() != 0 {
		t.Errorf("pending after post-stop trigger = %d, want 0", d.Pending())
	}
}
