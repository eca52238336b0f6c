package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/model"
)

// fakeGateway records every write in order so tests can assert both the
// values persisted and the sequencing around finalization.
type fakeGateway struct {
	mu      sync.Mutex
	attempt *model.Attempt
	stored  map[uuid.UUID]int

	calls         []string
	answerWrites  map[uuid.UUID]int
	uploadWrites  map[model.UploadType]string
	violations    [2]int
	finalizeErrs  int
	finalizeCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		stored:       make(map[uuid.UUID]int),
		answerWrites: make(map[uuid.UUID]int),
		uploadWrites: make(map[model.UploadType]string),
	}
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) FindAttempt(_ context.Context, _ int, _ uuid.UUID) (*model.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("find")
	if g.attempt == nil {
		return nil, nil
	}
	a := *g.attempt
	return &a, nil
}

func (g *fakeGateway) CreateAttempt(_ context.Context, studentID int, paperID uuid.UUID, startedAt, endsAt time.Time) (*model.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create")
	g.attempt = &model.Attempt{
		ID:        uuid.New(),
		PaperID:   paperID,
		StudentID: studentID,
		StartedAt: startedAt,
		EndsAt:    endsAt,
	}
	a := *g.attempt
	return &a, nil
}

func (g *fakeGateway) LoadAnswers(_ context.Context, _ uuid.UUID) (map[uuid.UUID]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("load_answers")
	out := make(map[uuid.UUID]int, len(g.stored))
	for q, sel := range g.stored {
		out[q] = sel
	}
	return out, nil
}

func (g *fakeGateway) UpsertAnswer(_ context.Context, _ uuid.UUID, questionID uuid.UUID, selectedOption int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("upsert_answer")
	g.answerWrites[questionID] = selectedOption
	return nil
}

func (g *fakeGateway) UpsertUpload(_ context.Context, _ uuid.UUID, uploadType model.UploadType, documentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("upsert_upload")
	g.uploadWrites[uploadType] = documentRef
	return nil
}

func (g *fakeGateway) UpdateViolations(_ context.Context, _ uuid.UUID, tabSwitches, windowCloses int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("update_violations")
	g.violations = [2]int{tabSwitches, windowCloses}
	return nil
}

func (g *fakeGateway) FinalizeAttempt(_ context.Context, _ uuid.UUID, submittedAt time.Time, autoClosed bool) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("finalize")
	g.finalizeCalls++
	if g.finalizeErrs > 0 {
		g.finalizeErrs--
		return false, errors.New("db down")
	}
	if g.attempt.SubmittedAt != nil {
		return false, nil
	}
	at := submittedAt
	g.attempt.SubmittedAt = &at
	g.attempt.AutoClosed = autoClosed
	return true, nil
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// testOpts uses hour-long windows so no timer fires on its own; tests drive
// all persistence through Submit and Close.
func testOpts(clock func() time.Time) Options {
	return Options{
		AutosaveWindow:  time.Hour,
		ViolationWindow: time.Hour,
		CountdownTick:   10 * time.Millisecond,
		Clock:           clock,
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestOpenCreatesFreshAttempt(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(context.Background())

	st := s.Status()
	if st.State != StateActive {
		t.Errorf("state = %v, want ACTIVE", st.State)
	}
	if s.Resumed() {
		t.Error("fresh attempt reported as resumed")
	}
	if st.WindowCloseCount != 0 {
		t.Errorf("window close count on fresh attempt = %d, want 0", st.WindowCloseCount)
	}
	if got := s.Attempt().EndsAt; !got.Equal(base.Add(time.Hour)) {
		t.Errorf("deadline = %v, want start + time limit", got)
	}
}

func TestOpenResumeLoadsAnswersAndCountsReopen(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()
	qid := uuid.New()

	gw.attempt = &model.Attempt{
		ID:               uuid.New(),
		StudentID:        7,
		PaperID:          uuid.New(),
		StartedAt:        base.Add(-10 * time.Minute),
		EndsAt:           base.Add(50 * time.Minute),
		TabSwitchCount:   2,
		WindowCloseCount: 1,
	}
	gw.stored[qid] = 3

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, gw.attempt.PaperID, time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(context.Background())

	if got := s.Answers()[qid]; got != 3 {
		t.Errorf("resumed answer = %d, want 3", got)
	}
	if !s.Resumed() {
		t.Error("resumed attempt not reported as resumed")
	}

	st := s.Status()
	if st.WindowCloseCount != 2 {
		t.Errorf("window close count after resume = %d, want 2 (persisted 1 + reopen)", st.WindowCloseCount)
	}
	if st.TabSwitchCount != 2 {
		t.Errorf("tab switch count after resume = %d, want 2 (unchanged)", st.TabSwitchCount)
	}
	if st.RemainingSeconds != int(50*time.Minute/time.Second) {
		t.Errorf("remaining = %ds, want 3000 (original deadline, no extension)", st.RemainingSeconds)
	}
}

func TestOpenSubmittedAttemptShortCircuits(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()
	submitted := base.Add(-time.Hour)

	gw.attempt = &model.Attempt{
		ID:          uuid.New(),
		EndsAt:      base.Add(-30 * time.Minute),
		SubmittedAt: &submitted,
	}

	_, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}

	for _, call := range gw.callLog() {
		if call == "create" || call == "finalize" {
			t.Errorf("unexpected %q call on already-submitted entry", call)
		}
	}
}

func TestOpenExpiredAttemptAutoClosesAtDeadline(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()
	deadline := base.Add(-5 * time.Minute)

	gw.attempt = &model.Attempt{
		ID:     uuid.New(),
		EndsAt: deadline,
	}

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	st := s.Status()
	if st.State != StateTerminal {
		t.Fatalf("state = %v, want TERMINAL", st.State)
	}
	if !st.AutoClosed {
		t.Error("auto_closed = false, want true")
	}
	if st.SubmittedAt == nil || !st.SubmittedAt.Equal(deadline) {
		t.Errorf("submitted_at = %v, want the deadline %v, not the entry time", st.SubmittedAt, deadline)
	}
	if st.RemainingSeconds != 0 {
		t.Errorf("remaining = %d, want 0", st.RemainingSeconds)
	}
}

func TestSubmitFlushesPendingWritesFirst(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()
	qid := uuid.New()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.RecordAnswer(qid, 4); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if err := s.RecordUpload(model.UploadTypeEssay, "doc-123"); err != nil {
		t.Fatalf("record upload: %v", err)
	}
	if err := s.RecordTabSwitch(); err != nil {
		t.Fatalf("record tab switch: %v", err)
	}

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Every buffered write must land before the finalize write.
	finalizeAt := -1
	for i, call := range gw.callLog() {
		if call == "finalize" {
			finalizeAt = i
			break
		}
	}
	if finalizeAt == -1 {
		t.Fatal("finalize never called")
	}
	seen := map[string]bool{}
	for _, call := range gw.callLog()[:finalizeAt] {
		seen[call] = true
	}
	for _, want := range []string{"upsert_answer", "upsert_upload", "update_violations"} {
		if !seen[want] {
			t.Errorf("%q not written before finalize", want)
		}
	}

	if gw.answerWrites[qid] != 4 {
		t.Errorf("persisted answer = %d, want 4", gw.answerWrites[qid])
	}
	if gw.uploadWrites[model.UploadTypeEssay] != "doc-123" {
		t.Errorf("persisted upload = %q, want doc-123", gw.uploadWrites[model.UploadTypeEssay])
	}
	if gw.violations != [2]int{1, 0} {
		t.Errorf("persisted violations = %v, want [1 0]", gw.violations)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if gw.finalizeCalls != 1 {
		t.Errorf("finalize called %d times, want 1", gw.finalizeCalls)
	}
}

func TestConcurrentSubmitsFinalizeOnce(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Submit(context.Background()); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	if gw.finalizeCalls != 1 {
		t.Errorf("finalize called %d times under racing submits, want 1", gw.finalizeCalls)
	}
}

func TestStatusDuringConcurrentFinalize(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Transports poll Status while the engine finalizes; both read and
	// mutate the attempt snapshot, so this runs clean under -race.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Status()
			}
		}
	}()

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	close(stop)
	wg.Wait()

	st := s.Status()
	if st.State != StateTerminal {
		t.Errorf("state = %v, want TERMINAL", st.State)
	}
	if st.SubmittedAt == nil {
		t.Error("submitted_at missing after finalize")
	}
}

func TestSubmitLostRaceAdoptsStoredRow(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// The expiry sweeper closed the row between entry and submit, so the
	// conditional finalize write finds submitted_at already set.
	sweeperStamp := base.Add(30 * time.Minute)
	gw.mu.Lock()
	gw.attempt.SubmittedAt = &sweeperStamp
	gw.attempt.AutoClosed = true
	gw.mu.Unlock()

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	st := s.Status()
	if st.State != StateTerminal {
		t.Fatalf("state = %v, want TERMINAL", st.State)
	}
	if !st.AutoClosed {
		t.Error("auto_closed = false, want the stored row's true")
	}
	if st.SubmittedAt == nil || !st.SubmittedAt.Equal(sweeperStamp) {
		t.Errorf("submitted_at = %v, want the stored row's stamp %v", st.SubmittedAt, sweeperStamp)
	}
}

func TestNoInputAfterTerminal(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.RecordAnswer(uuid.New(), 1); !errors.Is(err, ErrNotActive) {
		t.Errorf("RecordAnswer after terminal = %v, want ErrNotActive", err)
	}
	if err := s.RecordUpload(model.UploadTypeEssay, "doc"); !errors.Is(err, ErrNotActive) {
		t.Errorf("RecordUpload after terminal = %v, want ErrNotActive", err)
	}
	if err := s.RecordTabSwitch(); !errors.Is(err, ErrNotActive) {
		t.Errorf("RecordTabSwitch after terminal = %v, want ErrNotActive", err)
	}
	if err := s.RecordWindowReopen(); !errors.Is(err, ErrNotActive) {
		t.Errorf("RecordWindowReopen after terminal = %v, want ErrNotActive", err)
	}
}

func TestFinalizeRetriesTransientFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.finalizeErrs = 2
	base := time.Now()

	opts := testOpts(fixedClock(base))
	opts.FinalizeRetries = 3

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit with transient failures: %v", err)
	}
	if gw.finalizeCalls != 3 {
		t.Errorf("finalize called %d times, want 3 (two failures then success)", gw.finalizeCalls)
	}
	if s.Status().State != StateTerminal {
		t.Errorf("state = %v, want TERMINAL", s.Status().State)
	}
}

func TestFinalizeExhaustionStaysFinalizing(t *testing.T) {
	gw := newFakeGateway()
	gw.finalizeErrs = 100
	base := time.Now()

	opts := testOpts(fixedClock(base))
	opts.FinalizeRetries = 1

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = s.Submit(context.Background())
	if !errors.Is(err, ErrFinalizeFailed) {
		t.Fatalf("submit = %v, want ErrFinalizeFailed", err)
	}
	if gw.finalizeCalls != 2 {
		t.Errorf("finalize called %d times, want 2 (initial + 1 retry)", gw.finalizeCalls)
	}

	// The session never reverts to ACTIVE; further input stays rejected.
	if st := s.Status().State; st != StateFinalizing {
		t.Errorf("state = %v, want FINALIZING", st)
	}
	if err := s.RecordAnswer(uuid.New(), 1); !errors.Is(err, ErrNotActive) {
		t.Errorf("RecordAnswer while finalizing = %v, want ErrNotActive", err)
	}
}

func TestCountdownExpiryAutoCloses(t *testing.T) {
	gw := newFakeGateway()

	var finalized sync.WaitGroup
	finalized.Add(1)
	var gotAutoClosed bool

	opts := Options{
		AutosaveWindow:  time.Hour,
		ViolationWindow: time.Hour,
		CountdownTick:   10 * time.Millisecond,
		OnFinalized: func(autoClosed bool) {
			gotAutoClosed = autoClosed
			finalized.Done()
		},
	}

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), 40*time.Millisecond, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	done := make(chan struct{})
	go func() { finalized.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never finalized the attempt")
	}

	if !gotAutoClosed {
		t.Error("OnFinalized auto_closed = false, want true")
	}

	st := s.Status()
	if st.State != StateTerminal {
		t.Errorf("state = %v, want TERMINAL", st.State)
	}
	if st.SubmittedAt == nil || !st.SubmittedAt.Equal(s.Attempt().EndsAt) {
		t.Errorf("submitted_at = %v, want the deadline, not the tick that noticed it", st.SubmittedAt)
	}
	if gw.finalizeCalls != 1 {
		t.Errorf("finalize called %d times, want 1", gw.finalizeCalls)
	}
}

func TestSubscribeFiresOnFinalize(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var mu sync.Mutex
	fired := 0
	detached := 0

	s.Subscribe(func(bool) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	detach := s.Subscribe(func(bool) {
		mu.Lock()
		detached++
		mu.Unlock()
	})
	detach()

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("subscriber fired %d times, want 1", fired)
	}
	if detached != 0 {
		t.Errorf("detached subscriber fired %d times, want 0", detached)
	}

	// Subscribing after terminal fires immediately.
	immediate := 0
	s.Subscribe(func(bool) { immediate++ })
	if immediate != 1 {
		t.Errorf("post-terminal subscribe fired %d times, want 1", immediate)
	}
}

func TestCloseFlushesWithoutFinalizing(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()
	qid := uuid.New()

	s, err := Open(context.Background(), gw, zerolog.Nop(), 7, uuid.New(), time.Hour, testOpts(fixedClock(base)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.RecordAnswer(qid, 2); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	s.Close(context.Background())

	if gw.answerWrites[qid] != 2 {
		t.Errorf("answer not flushed on close: got %d, want 2", gw.answerWrites[qid])
	}
	if gw.finalizeCalls != 0 {
		t.Errorf("close finalized the attempt: %d finalize calls, want 0", gw.finalizeCalls)
	}
}
