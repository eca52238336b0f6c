package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iobuilds/learn-lanka-sub000/internal/model"
)

// AnswerRepository handles the autosaved MCQ selections and uploaded-answer
// references of an attempt.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or replaces the selection for (attempt, question).
// Last write wins.
func (r *AnswerRepository) Upsert(ctx context.Context, attemptID, questionID uuid.UUID, selectedOption int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_option)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET selected_option = EXCLUDED.selected_option, updated_at = NOW()`,
		attemptID, questionID, selectedOption)
	return err
}

// Load returns the persisted selections of an attempt keyed by question.
func (r *AnswerRepository) Load(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option
		 FROM attempt_answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]int)
	for rows.Next() {
		var qid uuid.UUID
		var sel int
		if err := rows.Scan(&qid, &sel); err != nil {
			return nil, err
		}
		answers[qid] = sel
	}
	return answers, rows.Err()
}

// UpsertUpload creates or replaces the document reference for
// (attempt, upload type). A re-upload simply points at the new document.
func (r *AnswerRepository) UpsertUpload(ctx context.Context, attemptID uuid.UUID, uploadType model.UploadType, documentRef string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_uploads (attempt_id, upload_type, document_ref)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, upload_type)
		 DO UPDATE SET document_ref = EXCLUDED.document_ref, updated_at = NOW()`,
		attemptID, uploadType, documentRef)
	return err
}

// ListUploads returns the uploaded-answer references of an attempt.
func (r *AnswerRepository) ListUploads(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptUpload, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, upload_type, document_ref, created_at, updated_at
		 FROM attempt_uploads
		 WHERE attempt_id = $1
		 ORDER BY upload_type`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []model.AttemptUpload
	for rows.Next() {
		var u model.AttemptUpload
		if err := rows.Scan(&u.ID, &u.AttemptID, &u.UploadType, &u.DocumentRef, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
