package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// violationTotalsKey is the single debounce key: all counter bumps coalesce
// into one totals write.
const violationTotalsKey = "totals"

// ViolationRecorder aggregates integrity counters in memory and writes the
// current totals to the gateway after a debounce window. Writing totals
// instead of deltas keeps the counters correct under dropped or reordered
// writes. The counters are advisory audit data; they never terminate the
// session on their own.
type ViolationRecorder struct {
	mu           sync.Mutex
	tabSwitches  int
	windowCloses int

	deb     *Debouncer[string]
	persist func(ctx context.Context, tabSwitches, windowCloses int) error
	log     zerolog.Logger
}

// NewViolationRecorder seeds the recorder with the persisted totals of a
// resumed attempt so increments stay monotone across sessions.
func NewViolationRecorder(
	window time.Duration,
	tabSwitches, windowCloses int,
	persist func(ctx context.Context, tabSwitches, windowCloses int) error,
	log zerolog.Logger,
) *ViolationRecorder {
	r := &ViolationRecorder{
		tabSwitches:  tabSwitches,
		windowCloses: windowCloses,
		persist:      persist,
		log:          log.With().Str("component", "violation_recorder").Logger(),
	}
	r.deb = NewDebouncer(window, r.write)
	return r
}

// RecordTabSwitch bumps the tab-switch counter and schedules a totals write.
func (r *ViolationRecorder) RecordTabSwitch() {
	r.mu.Lock()
	r.tabSwitches++
	r.mu.Unlock()
	r.deb.Trigger(violationTotalsKey)
}

// RecordWindowReopen bumps the window-reopen counter and schedules a totals
// write. Called once per re-entry into an existing non-terminal attempt,
// never on first creation.
func (r *ViolationRecorder) RecordWindowReopen() {
	r.mu.Lock()
	r.windowCloses++
	r.mu.Unlock()
	r.deb.Trigger(violationTotalsKey)
}

// Totals returns the current in-memory counters.
func (r *ViolationRecorder) Totals() (tabSwitches, windowCloses int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tabSwitches, r.windowCloses
}

// Flush writes any pending totals immediately.
func (r *ViolationRecorder) Flush(ctx context.Context) {
	r.deb.Flush(ctx)
}

// Stop abandons any pending write.
func (r *ViolationRecorder) Stop() {
	r.deb.Stop()
}

func (r *ViolationRecorder) write(ctx context.Context, _ string) {
	tab, win := r.Totals()
	if err := r.persist(ctx, tab, win); err != nil {
		// Counters stay in memory; the next increment or flush retries.
		r.log.Warn().Err(err).
			Int("tab_switches", tab).
			Int("window_closes", win).
			Msg("Violation totals write failed")
	}
}
