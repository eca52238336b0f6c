package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaperStatus enumerates the publication states of a rank paper.
type PaperStatus string

const (
	PaperStatusDraft     PaperStatus = "DRAFT"
	PaperStatusPublished PaperStatus = "PUBLISHED"
	PaperStatusClosed    PaperStatus = "CLOSED"
)

// RankPaper represents a timed assessment paper. Duration is per student,
// counted from the moment the student starts an attempt.
type RankPaper struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Subject         string      `json:"subject"`
	Medium          Medium      `json:"medium"`
	Grade           int         `json:"grade"`
	DurationMinutes int         `json:"duration_minutes"`
	QuestionCount   int         `json:"question_count"`
	OptionCount     int         `json:"option_count"`
	HasEssay        bool        `json:"has_essay"`
	HasShortEssay   bool        `json:"has_short_essay"`
	OpensAt         *time.Time  `json:"opens_at,omitempty"`
	ClosesAt        *time.Time  `json:"closes_at,omitempty"`
	Status          PaperStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Duration returns the paper's time limit.
func (p *RankPaper) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// PaperQuestion is one MCQ of a rank paper, including the key. Never sent
// to students as-is; the student view strips CorrectOption.
type PaperQuestion struct {
	ID            uuid.UUID       `json:"id"`
	PaperID       uuid.UUID       `json:"paper_id"`
	Number        int             `json:"number"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption int             `json:"correct_option"`
}

// PaperPayload is the Redis-cached paper content sent to students. It never
// carries correct answers.
type PaperPayload struct {
	PaperID         uuid.UUID            `json:"paper_id"`
	Title           string               `json:"title"`
	Medium          Medium               `json:"medium"`
	DurationMinutes int                  `json:"duration_minutes"`
	HasEssay        bool                 `json:"has_essay"`
	HasShortEssay   bool                 `json:"has_short_essay"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the key, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID       `json:"id"`
	Number       int             `json:"number"`
	QuestionText string          `json:"question_text"`
	Options      json.RawMessage `json:"options"`
}
