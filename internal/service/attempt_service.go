package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/config"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/repository"
	"github.com/iobuilds/learn-lanka-sub000/internal/session"
)

// AttemptService owns the live session registry: one session engine per
// (student, paper) while the attempt runs on this server. Transports attach
// and detach; the engine keeps counting down either way.
type AttemptService struct {
	cfg          *config.Config
	attemptRepo  *repository.AttemptRepository
	answerRepo   *repository.AnswerRepository
	paperService *PaperService
	rdb          *redis.Client
	log          zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session.Session
}

type sessionKey struct {
	studentID int
	paperID   uuid.UUID
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	attemptRepo *repository.AttemptRepository,
	answerRepo *repository.AnswerRepository,
	paperService *PaperService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:          cfg,
		attemptRepo:  attemptRepo,
		answerRepo:   answerRepo,
		paperService: paperService,
		rdb:          rdb,
		log:          log.With().Str("component", "attempt_service").Logger(),
		sessions:     make(map[sessionKey]*session.Session),
	}
}

// ErrAlreadySubmitted is re-exported for transports.
var ErrAlreadySubmitted = session.ErrAlreadySubmitted

// Enter creates or resumes the student's session for a paper and returns the
// live engine. Re-entering while the engine is still running re-attaches to
// it (and counts a window reopen); otherwise the attempt is loaded or created
// through the engine's own open path.
func (s *AttemptService) Enter(ctx context.Context, studentID int, paperID uuid.UUID) (*session.Session, error) {
	key := sessionKey{studentID: studentID, paperID: paperID}

	s.mu.Lock()
	if live, ok := s.sessions[key]; ok {
		s.mu.Unlock()
		if err := live.RecordWindowReopen(); err != nil {
			// Engine went terminal between lookup and reattach.
			return nil, ErrAlreadySubmitted
		}
		attemptID := live.Attempt().ID
		s.EnqueueViolationEvent(ctx, attemptID, model.ViolationWindowReopen)
		s.publishMonitor(ctx, paperID, "reattached", attemptID, studentID)
		return live, nil
	}
	s.mu.Unlock()

	paper, err := s.paperService.GetByID(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	if err := s.paperService.CheckAvailability(paper, time.Now()); err != nil {
		return nil, err
	}

	opts := session.Options{
		AutosaveWindow:  s.cfg.AutosaveDebounce,
		ViolationWindow: s.cfg.ViolationDebounce,
		CountdownTick:   s.cfg.CountdownTick,
		FinalizeRetries: s.cfg.FinalizeRetries,
		RetryBackoff:    s.cfg.FinalizeRetryBackoff,
		OnFinalized: func(autoClosed bool) {
			s.evict(key)
			s.publishFinalized(paperID, studentID, autoClosed)
		},
	}

	sess, err := session.Open(ctx, s.gateway(), s.log, studentID, paperID, paper.Duration(), opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if winner, ok := s.sessions[key]; ok {
		// Two concurrent entries raced past the registry check. Keep the
		// winner's engine; close the loser without finalizing.
		s.mu.Unlock()
		sess.Close(ctx)
		return winner, nil
	}
	if sess.Status().State == session.StateActive {
		s.sessions[key] = sess
	}
	s.mu.Unlock()

	if sess.Resumed() {
		// The reopen the engine counted on resume lands on the audit trail too.
		s.EnqueueViolationEvent(ctx, sess.Attempt().ID, model.ViolationWindowReopen)
	}

	// Track the student's active paper for support tooling.
	_ = s.rdb.Set(ctx, config.CacheKey.StudentActivePaperKey(studentID), paperID.String(), paper.Duration()).Err()

	return sess, nil
}

// Live returns the running session for (student, paper), or nil.
func (s *AttemptService) Live(studentID int, paperID uuid.UUID) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey{studentID: studentID, paperID: paperID}]
}

// AttemptState is the snapshot served to a reconnecting client.
type AttemptState struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	State            string            `json:"state"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Answers          map[string]int    `json:"answers"`
	AnsweredCount    int               `json:"answered_count"`
	TabSwitchCount   int               `json:"tab_switch_count"`
	WindowCloseCount int               `json:"window_close_count"`
	AutoClosed       bool              `json:"auto_closed"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	Uploads          map[string]string `json:"uploads"`
}

// State reports the attempt's current state. A live engine answers from
// memory; otherwise the persisted attempt is the source of truth, with the
// remaining time recomputed from the stored deadline.
func (s *AttemptService) State(ctx context.Context, studentID int, paperID uuid.UUID) (*AttemptState, error) {
	if live := s.Live(studentID, paperID); live != nil {
		st := live.Status()
		return &AttemptState{
			AttemptID:        live.Attempt().ID,
			State:            st.State.String(),
			RemainingSeconds: st.RemainingSeconds,
			Answers:          stringKeyed(live.Answers()),
			AnsweredCount:    st.AnsweredCount,
			TabSwitchCount:   st.TabSwitchCount,
			WindowCloseCount: st.WindowCloseCount,
			AutoClosed:       st.AutoClosed,
			SubmittedAt:      st.SubmittedAt,
			Uploads:          map[string]string{},
		}, nil
	}

	attempt, err := s.attemptRepo.Find(ctx, studentID, paperID)
	if err != nil {
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	if attempt == nil {
		return nil, errors.New("no attempt for this paper")
	}

	answers, err := s.answerRepo.Load(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	uploads, err := s.answerRepo.ListUploads(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load uploads: %w", err)
	}

	state := session.StateActive.String()
	if attempt.Submitted() {
		state = session.StateTerminal.String()
	}

	uploadRefs := make(map[string]string, len(uploads))
	for _, u := range uploads {
		uploadRefs[string(u.UploadType)] = u.DocumentRef
	}

	return &AttemptState{
		AttemptID:        attempt.ID,
		State:            state,
		RemainingSeconds: int(attempt.Remaining(time.Now()) / time.Second),
		Answers:          stringKeyed(answers),
		AnsweredCount:    len(answers),
		TabSwitchCount:   attempt.TabSwitchCount,
		WindowCloseCount: attempt.WindowCloseCount,
		AutoClosed:       attempt.AutoClosed,
		SubmittedAt:      attempt.SubmittedAt,
		Uploads:          uploadRefs,
	}, nil
}

// EnqueueViolationEvent pushes one audit event onto the persistence queue.
// Best effort: the attempt counters carry the authoritative totals.
func (s *AttemptService) EnqueueViolationEvent(ctx context.Context, attemptID uuid.UUID, kind model.ViolationKind) {
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  attemptID.String(),
		"kind":        kind,
		"occurred_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.ViolationEventsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue violation event")
	}
}

// PublishAnswerSaved notifies paper monitors that a student answered.
func (s *AttemptService) PublishAnswerSaved(ctx context.Context, paperID uuid.UUID, attemptID uuid.UUID, studentID, answeredCount int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":           "answer_saved",
		"attempt_id":     attemptID.String(),
		"student_id":     studentID,
		"answered_count": answeredCount,
	})
	s.rdb.Publish(ctx, config.CacheKey.PaperMonitorChannel(paperID.String()), payload)
}

// PublishViolation notifies paper monitors of a violation.
func (s *AttemptService) PublishViolation(ctx context.Context, paperID uuid.UUID, attemptID uuid.UUID, studentID int, kind model.ViolationKind) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":       "violation",
		"attempt_id": attemptID.String(),
		"student_id": studentID,
		"kind":       kind,
	})
	s.rdb.Publish(ctx, config.CacheKey.PaperMonitorChannel(paperID.String()), payload)
}

// Shutdown flushes and releases every live session. Attempts stay open; the
// expiry sweeper or a later resume finishes them.
func (s *AttemptService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	live := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.sessions = make(map[sessionKey]*session.Session)
	s.mu.Unlock()

	for _, sess := range live {
		sess.Close(ctx)
	}
	if len(live) > 0 {
		s.log.Info().Int("sessions", len(live)).Msg("Live sessions flushed for shutdown")
	}
}

func (s *AttemptService) gateway() session.Gateway {
	return &attemptGateway{attemptRepo: s.attemptRepo, answerRepo: s.answerRepo}
}

func (s *AttemptService) evict(key sessionKey) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

func (s *AttemptService) publishFinalized(paperID uuid.UUID, studentID int, autoClosed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, _ := json.Marshal(map[string]interface{}{
		"type":        "finalized",
		"student_id":  studentID,
		"auto_closed": autoClosed,
	})
	s.rdb.Publish(ctx, config.CacheKey.PaperMonitorChannel(paperID.String()), payload)
	s.rdb.Del(ctx, config.CacheKey.StudentActivePaperKey(studentID))
}

func (s *AttemptService) publishMonitor(ctx context.Context, paperID uuid.UUID, event string, attemptID uuid.UUID, studentID int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":       event,
		"attempt_id": attemptID.String(),
		"student_id": studentID,
	})
	s.rdb.Publish(ctx, config.CacheKey.PaperMonitorChannel(paperID.String()), payload)
}

func stringKeyed(answers map[uuid.UUID]int) map[string]int {
	out := make(map[string]int, len(answers))
	for q, sel := range answers {
		out[q.String()] = sel
	}
	return out
}

// attemptGateway adapts the repositories to the session engine's surface.
type attemptGateway struct {
	attemptRepo *repository.AttemptRepository
	answerRepo  *repository.AnswerRepository
}

func (g *attemptGateway) FindAttempt(ctx context.Context, studentID int, paperID uuid.UUID) (*model.Attempt, error) {
	return g.attemptRepo.Find(ctx, studentID, paperID)
}

func (g *attemptGateway) CreateAttempt(ctx context.Context, studentID int, paperID uuid.UUID, startedAt, endsAt time.Time) (*model.Attempt, error) {
	return g.attemptRepo.Create(ctx, studentID, paperID, startedAt, endsAt)
}

func (g *attemptGateway) LoadAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	return g.answerRepo.Load(ctx, attemptID)
}

func (g *attemptGateway) UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selectedOption int) error {
	return g.answerRepo.Upsert(ctx, attemptID, questionID, selectedOption)
}

func (g *attemptGateway) UpsertUpload(ctx context.Context, attemptID uuid.UUID, uploadType model.UploadType, documentRef string) error {
	return g.answerRepo.UpsertUpload(ctx, attemptID, uploadType, documentRef)
}

func (g *attemptGateway) UpdateViolations(ctx context.Context, attemptID uuid.UUID, tabSwitches, windowCloses int) error {
	return g.attemptRepo.UpdateViolations(ctx, attemptID, tabSwitches, windowCloses)
}

func (g *attemptGateway) FinalizeAttempt(ctx context.Context, attemptID uuid.UUID, submittedAt time.Time, autoClosed bool) (bool, error) {
	return g.attemptRepo.Finalize(ctx, attemptID, submittedAt, autoClosed)
}
