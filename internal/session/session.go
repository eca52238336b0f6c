package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/model"
)

// State enumerates the session lifecycle. Transitions only move forward:
// UNINITIALIZED → ACTIVE → FINALIZING → TERMINAL.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateFinalizing
	StateTerminal
)

// String returns the wire name of a state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateFinalizing:
		return "FINALIZING"
	case StateTerminal:
		return "TERMINAL"
	default:
		return "UNINITIALIZED"
	}
}

// Domain errors surfaced to the transport layer.
var (
	// ErrAlreadySubmitted short-circuits re-entry into a finalized attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrNotActive rejects answer/violation input outside the ACTIVE state.
	ErrNotActive = errors.New("attempt is not active")
	// ErrFinalizeFailed wraps an exhausted finalize retry loop.
	ErrFinalizeFailed = errors.New("finalize attempt failed")
)

// Options tune the session's timers. Zero values pick production defaults;
// tests inject a fake clock and millisecond windows.
type Options struct {
	AutosaveWindow  time.Duration
	ViolationWindow time.Duration
	CountdownTick   time.Duration
	FinalizeRetries int
	RetryBackoff    time.Duration
	Clock           func() time.Time

	// OnFinalized, if set, is notified exactly once after the attempt goes
	// terminal. Used by the WebSocket layer to push the closing event.
	OnFinalized func(autoClosed bool)
}

func (o Options) withDefaults() Options {
	if o.AutosaveWindow <= 0 {
		o.AutosaveWindow = 300 * time.Millisecond
	}
	if o.ViolationWindow <= 0 {
		o.ViolationWindow = time.Second
	}
	if o.CountdownTick <= 0 {
		o.CountdownTick = time.Second
	}
	if o.FinalizeRetries < 0 {
		o.FinalizeRetries = 0
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Session drives one student's attempt at one rank paper: it creates or
// resumes the attempt, owns the countdown and the debounced write paths, and
// guarantees the attempt terminates exactly once.
//
// All timers are resources scoped to the session: acquired in Open, released
// exactly once when the session leaves the active states.
type Session struct {
	gw      Gateway
	log     zerolog.Logger
	opts    Options
	resumed bool

	mu      sync.Mutex
	state   State
	attempt *model.Attempt
	answers map[uuid.UUID]int
	uploads map[model.UploadType]string

	countdown  *Countdown
	answerDeb  *Debouncer[uuid.UUID]
	uploadDeb  *Debouncer[model.UploadType]
	violations *ViolationRecorder

	subMu  sync.Mutex
	subs   map[int]func(autoClosed bool)
	subSeq int

	releaseOnce sync.Once
}

// Subscribe registers a callback fired once when the session goes terminal,
// for transports that need to push the closing event. If the session is
// already terminal the callback fires immediately. The returned function
// detaches the subscription.
func (s *Session) Subscribe(fn func(autoClosed bool)) func() {
	s.mu.Lock()
	terminal := s.state == StateTerminal
	autoClosed := s.attempt.AutoClosed
	s.mu.Unlock()

	if terminal {
		fn(autoClosed)
		return func() {}
	}

	s.subMu.Lock()
	s.subSeq++
	id := s.subSeq
	if s.subs == nil {
		s.subs = make(map[int]func(bool))
	}
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notifySubscribers(autoClosed bool) {
	s.subMu.Lock()
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subs = nil
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(autoClosed)
	}
}

// Open creates or resumes the attempt for (student, paper) and brings the
// session to ACTIVE. A resumed attempt counts one window reopen; an attempt
// whose deadline already passed is finalized immediately with auto_closed.
//
// On a gateway failure during entry no session is left running: the caller
// gets the error and nothing was scheduled.
func Open(ctx context.Context, gw Gateway, log zerolog.Logger, studentID int, paperID uuid.UUID, timeLimit time.Duration, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	now := opts.Clock()

	attempt, err := gw.FindAttempt(ctx, studentID, paperID)
	if err != nil {
		return nil, fmt.Errorf("find attempt: %w", err)
	}

	resumed := attempt != nil
	if resumed {
		if attempt.Submitted() {
			return nil, ErrAlreadySubmitted
		}
	} else {
		attempt, err = gw.CreateAttempt(ctx, studentID, paperID, now, now.Add(timeLimit))
		if err != nil {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
	}

	answers := make(map[uuid.UUID]int)
	if resumed {
		answers, err = gw.LoadAnswers(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("load answers: %w", err)
		}
		if answers == nil {
			answers = make(map[uuid.UUID]int)
		}
	}

	s := &Session{
		gw:      gw,
		opts:    opts,
		resumed: resumed,
		state:   StateActive,
		attempt: attempt,
		answers: answers,
		uploads: make(map[model.UploadType]string),
		log: log.With().
			Str("component", "session").
			Str("attempt_id", attempt.ID.String()).
			Int("student_id", studentID).
			Logger(),
	}
	s.answerDeb = NewDebouncer(opts.AutosaveWindow, s.writeAnswer)
	s.uploadDeb = NewDebouncer(opts.AutosaveWindow, s.writeUpload)
	s.violations = NewViolationRecorder(
		opts.ViolationWindow,
		attempt.TabSwitchCount, attempt.WindowCloseCount,
		s.persistViolations,
		s.log,
	)

	if resumed {
		// Re-entering a live attempt means the window was closed or the page
		// reloaded since the last session.
		s.violations.RecordWindowReopen()
	}

	if attempt.Remaining(now) <= 0 {
		// Deadline passed before entry: straight to FINALIZING, no countdown.
		if err := s.finalize(ctx, true); err != nil {
			return s, err
		}
		return s, nil
	}

	s.countdown = NewCountdown(attempt.EndsAt, opts.CountdownTick, opts.Clock, s.expire)
	s.countdown.Start()

	s.log.Info().
		Bool("resumed", resumed).
		Time("ends_at", attempt.EndsAt).
		Msg("Session active")
	return s, nil
}

// Resumed reports whether Open picked up an existing attempt rather than
// creating one.
func (s *Session) Resumed() bool {
	return s.resumed
}

// Attempt returns the attempt this session drives.
func (s *Session) Attempt() *model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// RecordAnswer stores the selection in memory immediately (the UI reflects it
// at once) and schedules a durable write after the autosave window. Rapid
// re-selections within the window collapse into one write of the final value.
func (s *Session) RecordAnswer(questionID uuid.UUID, selectedOption int) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.answers[questionID] = selectedOption
	s.mu.Unlock()

	s.answerDeb.Trigger(questionID)
	return nil
}

// RecordUpload stores the document reference for an essay upload slot and
// schedules its durable write. Re-uploads overwrite the previous reference.
func (s *Session) RecordUpload(uploadType model.UploadType, documentRef string) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.uploads[uploadType] = documentRef
	s.mu.Unlock()

	s.uploadDeb.Trigger(uploadType)
	return nil
}

// RecordWindowReopen counts one window-reopen violation. Callers invoke this
// when a client re-attaches to an already-running session (page reload with
// the engine still live); resumption from storage is counted by Open itself.
func (s *Session) RecordWindowReopen() error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.mu.Unlock()

	s.violations.RecordWindowReopen()
	return nil
}

// RecordTabSwitch counts one tab-switch violation. The blocking overlay the
// client shows afterwards is a presentation concern, not a state transition.
func (s *Session) RecordTabSwitch() error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.mu.Unlock()

	s.violations.RecordTabSwitch()
	return nil
}

// Submit finalizes on the student's explicit request. A duplicate submit, or
// a submit racing the countdown expiry, is a silent no-op.
func (s *Session) Submit(ctx context.Context) error {
	return s.finalize(ctx, false)
}

// Status is the snapshot exposed to the UI layer.
type Status struct {
	State            State      `json:"state"`
	RemainingSeconds int        `json:"remaining_seconds"`
	AnsweredCount    int        `json:"answered_count"`
	IsSaving         bool       `json:"is_saving"`
	TabSwitchCount   int        `json:"tab_switch_count"`
	WindowCloseCount int        `json:"window_close_count"`
	AutoClosed       bool       `json:"auto_closed"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
}

// Status reports remaining time (deadline-anchored, clamped to zero),
// answered count, pending-save state and violation totals.
func (s *Session) Status() Status {
	// Attempt fields are read under the lock because finalize mutates
	// submitted_at and auto_closed concurrently with transport reads.
	s.mu.Lock()
	state := s.state
	answered := len(s.answers)
	remaining := s.attempt.Remaining(s.opts.Clock())
	autoClosed := s.attempt.AutoClosed
	submittedAt := s.attempt.SubmittedAt
	s.mu.Unlock()

	if state != StateActive {
		remaining = 0
	}

	tab, win := s.violations.Totals()

	return Status{
		State:            state,
		RemainingSeconds: int(remaining / time.Second),
		AnsweredCount:    answered,
		IsSaving:         s.answerDeb.Pending()+s.uploadDeb.Pending() > 0,
		TabSwitchCount:   tab,
		WindowCloseCount: win,
		AutoClosed:       autoClosed,
		SubmittedAt:      submittedAt,
	}
}

// Answers returns a copy of the in-memory selections, the source of truth
// for display even when a durable write failed.
func (s *Session) Answers() map[uuid.UUID]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]int, len(s.answers))
	for q, sel := range s.answers {
		out[q] = sel
	}
	return out
}

// Close releases the session's timers without finalizing, for transports
// that disconnect mid-attempt. Pending writes are flushed first so the last
// selection survives the disconnect. Safe after finalization.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()

	if active {
		s.answerDeb.Flush(ctx)
		s.uploadDeb.Flush(ctx)
		s.violations.Flush(ctx)
	}
	s.release()
}

// expire runs on the countdown goroutine when the deadline passes.
func (s *Session) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.finalize(ctx, true); err != nil {
		s.log.Error().Err(err).Msg("Auto-close failed")
	}
}

// finalize is the single path out of ACTIVE. The latch check and the
// FINALIZING transition happen under the lock with no blocking call in
// between, so racing triggers (explicit submit vs countdown expiry) collapse
// into exactly one finalization; the loser returns nil.
func (s *Session) finalize(ctx context.Context, autoClosed bool) error {
	s.mu.Lock()
	if s.state == StateFinalizing || s.state == StateTerminal {
		s.mu.Unlock()
		return nil
	}
	s.state = StateFinalizing
	attempt := s.attempt
	s.mu.Unlock()

	// Flush-before-finalize: every pending answer, upload and violation write
	// must be durable before submitted_at is set. This is the ordering rule
	// the whole component hangs on.
	s.answerDeb.Flush(ctx)
	s.uploadDeb.Flush(ctx)
	s.violations.Flush(ctx)

	submittedAt := s.opts.Clock()
	if autoClosed && submittedAt.After(attempt.EndsAt) {
		// Auto-close stamps the deadline, not the tick that noticed it.
		submittedAt = attempt.EndsAt
	}

	// The write is a conditional single-field set (submitted_at IS NULL), so
	// at-least-once retry is safe.
	var applied bool
	var lastErr error
	for try := 0; try <= s.opts.FinalizeRetries; try++ {
		if try > 0 && s.opts.RetryBackoff > 0 {
			time.Sleep(s.opts.RetryBackoff)
		}
		ok, err := s.gw.FinalizeAttempt(ctx, attempt.ID, submittedAt, autoClosed)
		if err == nil {
			applied = ok
			lastErr = nil
			break
		}
		lastErr = err
	}
	if lastErr != nil {
		// Stay in FINALIZING: the session never reverts to ACTIVE, and the
		// server-anchored deadline prevents any extension.
		s.log.Error().Err(lastErr).Msg("Finalize write failed after retries")
		return fmt.Errorf("%w: %v", ErrFinalizeFailed, lastErr)
	}

	if !applied {
		// The conditional write found submitted_at already set: the expiry
		// sweeper beat us, or an earlier retry landed but its response was
		// lost. The stored row wins; adopt its stamp so the terminal snapshot
		// matches storage.
		stored, err := s.gw.FindAttempt(ctx, attempt.StudentID, attempt.PaperID)
		if err == nil && stored != nil && stored.Submitted() {
			submittedAt = *stored.SubmittedAt
			autoClosed = stored.AutoClosed
		} else {
			s.log.Warn().Err(err).Msg("Finalize write lost the race and the re-read did not resolve it")
		}
	}

	s.mu.Lock()
	s.state = StateTerminal
	s.attempt.SubmittedAt = &submittedAt
	s.attempt.AutoClosed = autoClosed
	s.mu.Unlock()

	// Countdown and debounce timers die together, exactly once, so nothing
	// can write against the closed attempt.
	s.release()

	s.log.Info().
		Bool("auto_closed", autoClosed).
		Time("submitted_at", submittedAt).
		Msg("Attempt finalized")

	if s.opts.OnFinalized != nil {
		s.opts.OnFinalized(autoClosed)
	}
	s.notifySubscribers(autoClosed)
	return nil
}

// release stops the countdown and abandons pending debounce timers. Runs at
// most once regardless of how the session ends.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.countdown != nil {
			s.countdown.Stop()
		}
		s.answerDeb.Stop()
		s.uploadDeb.Stop()
		s.violations.Stop()
	})
}

// writeAnswer is the debounced durable write for one question.
func (s *Session) writeAnswer(ctx context.Context, questionID uuid.UUID) {
	s.mu.Lock()
	selected, ok := s.answers[questionID]
	attemptID := s.attempt.ID
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.gw.UpsertAnswer(ctx, attemptID, questionID, selected); err != nil {
		// Logged, not retried in a loop: memory stays the source of truth and
		// the next selection change or the finalize flush writes again.
		s.log.Warn().Err(err).
			Str("question_id", questionID.String()).
			Msg("Answer autosave failed")
	}
}

// writeUpload is the debounced durable write for one upload slot.
func (s *Session) writeUpload(ctx context.Context, uploadType model.UploadType) {
	s.mu.Lock()
	ref, ok := s.uploads[uploadType]
	attemptID := s.attempt.ID
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.gw.UpsertUpload(ctx, attemptID, uploadType, ref); err != nil {
		s.log.Warn().Err(err).
			Str("upload_type", string(uploadType)).
			Msg("Upload reference write failed")
	}
}

// persistViolations writes the counter totals for the violation recorder.
func (s *Session) persistViolations(ctx context.Context, tabSwitches, windowCloses int) error {
	s.mu.Lock()
	attemptID := s.attempt.ID
	s.mu.Unlock()
	return s.gw.UpdateViolations(ctx, attemptID, tabSwitches, windowCloses)
}
