package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
)

// Gateway is the persistence surface the session engine writes through.
// The engine is the sole writer of attempt integrity counters and the
// submission timestamp; answers and uploads go through the autosave path.
type Gateway interface {
	// FindAttempt returns the attempt for (student, paper), or nil if none exists.
	FindAttempt(ctx context.Context, studentID int, paperID uuid.UUID) (*model.Attempt, error)

	// CreateAttempt inserts a fresh attempt with a server-anchored deadline.
	CreateAttempt(ctx context.Context, studentID int, paperID uuid.UUID, startedAt, endsAt time.Time) (*model.Attempt, error)

	// LoadAnswers returns the persisted selections for an attempt, keyed by question.
	LoadAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error)

	// UpsertAnswer creates or replaces the selection for (attempt, question).
	UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selectedOption int) error

	// UpsertUpload creates or replaces the document reference for (attempt, upload type).
	UpsertUpload(ctx context.Context, attemptID uuid.UUID, uploadType model.UploadType, documentRef string) error

	// UpdateViolations writes the current counter totals (not deltas).
	UpdateViolations(ctx context.Context, attemptID uuid.UUID, tabSwitches, windowCloses int) error

	// FinalizeAttempt sets submitted_at, conditioned on it still being null.
	// Returns false when the attempt was already finalized by another writer.
	FinalizeAttempt(ctx context.Context, attemptID uuid.UUID, submittedAt time.Time, autoClosed bool) (bool, error)
}
