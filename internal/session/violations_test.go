package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type totalsSink struct {
	mu     sync.Mutex
	writes [][2]int
	err    error
}

func (s *totalsSink) persist(_ context.Context, tab, win int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, [2]int{tab, win})
	return nil
}

func (s *totalsSink) last() ([2]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return [2]int{}, 0
	}
	return s.writes[len(s.writes)-1], len(s.writes)
}

func TestViolationRecorderWritesTotalsNotDeltas(t *testing.T) {
	sink := &totalsSink{}
	r := NewViolationRecorder(time.Hour, 2, 1, sink.persist, zerolog.Nop())
	defer r.Stop()

	r.RecordTabSwitch()
	r.RecordTabSwitch()
	r.RecordWindowReopen()
	r.Flush(context.Background())

	last, n := sink.last()
	if n != 1 {
		t.Fatalf("persist called %d times, want 1 (bumps coalesce)", n)
	}
	if last != [2]int{4, 2} {
		t.Errorf("persisted totals = %v, want [4 2] (seeded 2,1 plus bumps)", last)
	}
}

func TestViolationRecorderSeedsResumedTotals(t *testing.T) {
	sink := &totalsSink{}
	r := NewViolationRecorder(time.Hour, 7, 3, sink.persist, zerolog.Nop())
	defer r.Stop()

	tab, win := r.Totals()
	if tab != 7 || win != 3 {
		t.Errorf("seeded totals = (%d, %d), want (7, 3)", tab, win)
	}
}

func TestViolationRecorderKeepsCountersOnWriteFailure(t *testing.T) {
	sink := &totalsSink{err: errors.New("db down")}
	r := NewViolationRecorder(time.Hour, 0, 0, sink.persist, zerolog.Nop())
	defer r.Stop()

	r.RecordTabSwitch()
	r.Flush(context.Background())

	// Memory stays authoritative; the next flush carries the full totals.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	r.RecordTabSwitch()
	r.Flush(context.Background())

	last, _ := sink.last()
	if last != [2]int{2, 0} {
		t.Errorf("totals after recovery = %v, want [2 0]", last)
	}
}
