package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt represents a student's single attempt at a rank paper. The deadline
// is anchored server-side at creation; submitted_at is write-once and marks
// the attempt terminal.
type Attempt struct {
	ID               uuid.UUID  `json:"id"`
	PaperID          uuid.UUID  `json:"paper_id"`
	StudentID        int        `json:"student_id"`
	StartedAt        time.Time  `json:"started_at"`
	EndsAt           time.Time  `json:"ends_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	AutoClosed       bool       `json:"auto_closed"`
	TabSwitchCount   int        `json:"tab_switch_count"`
	WindowCloseCount int        `json:"window_close_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Submitted reports whether the attempt has been finalized.
func (a *Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// Remaining returns the time left until the deadline, clamped to zero.
func (a *Attempt) Remaining(now time.Time) time.Duration {
	rem := a.EndsAt.Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// AttemptAnswer is one persisted MCQ selection within an attempt.
type AttemptAnswer struct {
	ID             uuid.UUID `json:"id"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption int       `json:"selected_option"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UploadType enumerates the written-answer upload slots of a paper.
type UploadType string

const (
	UploadTypeEssay      UploadType = "ESSAY"
	UploadTypeShortEssay UploadType = "SHORT_ESSAY"
)

// AttemptUpload is a reference to an uploaded written-answer document.
// One row per (attempt, upload type); re-uploads replace the reference.
type AttemptUpload struct {
	ID          uuid.UUID  `json:"id"`
	AttemptID   uuid.UUID  `json:"attempt_id"`
	UploadType  UploadType `json:"upload_type"`
	DocumentRef string     `json:"document_ref"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ViolationKind enumerates auditable integrity events.
type ViolationKind string

const (
	ViolationTabSwitch    ViolationKind = "TAB_SWITCH"
	ViolationWindowReopen ViolationKind = "WINDOW_REOPEN"
)

// ViolationEvent is one audit-trail entry. Events are advisory evidence for
// staff review; the attempt's counters are the authoritative totals.
type ViolationEvent struct {
	ID         uuid.UUID     `json:"id"`
	AttemptID  uuid.UUID     `json:"attempt_id"`
	Kind       ViolationKind `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// SubmitAnswerRequest is the payload for recording an MCQ selection.
type SubmitAnswerRequest struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedOption int       `json:"selected_option" binding:"required,min=1,max=5"`
}

// SubmitUploadRequest is the payload for attaching an uploaded document.
type SubmitUploadRequest struct {
	UploadType  UploadType `json:"upload_type" binding:"required,oneof=ESSAY SHORT_ESSAY"`
	DocumentRef string     `json:"document_ref" binding:"required,min=1,max=512"`
}
