package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iobuilds/learn-lanka-sub000/internal/model"
)

// AttemptRepository handles attempt data access. The session engine is the
// only writer of violation counters and submitted_at.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, paper_id, student_id, started_at, ends_at, submitted_at,
	        auto_closed, tab_switch_count, window_close_count, created_at, updated_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.PaperID, &a.StudentID, &a.StartedAt, &a.EndsAt, &a.SubmittedAt,
		&a.AutoClosed, &a.TabSwitchCount, &a.WindowCloseCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Find retrieves the attempt for a paper-student pair. Returns (nil, nil)
// when the student has not started the paper yet.
func (r *AttemptRepository) Find(ctx context.Context, studentID int, paperID uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE paper_id = $1 AND student_id = $2`, paperID, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a fresh attempt with the given deadline. A concurrent start
// of the same paper loses to the unique (paper_id, student_id) constraint and
// gets the existing row back.
func (r *AttemptRepository) Create(ctx context.Context, studentID int, paperID uuid.UUID, startedAt, endsAt time.Time) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO attempts (paper_id, student_id, started_at, ends_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (paper_id, student_id) DO NOTHING
		 RETURNING `+attemptColumns,
		paperID, studentID, startedAt, endsAt))
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race; the winner's row is the attempt.
		return r.Find(ctx, studentID, paperID)
	}
	return a, err
}

// UpdateViolations overwrites the violation counters with the given totals.
func (r *AttemptRepository) UpdateViolations(ctx context.Context, attemptID uuid.UUID, tabSwitches, windowCloses int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET tab_switch_count = $1, window_close_count = $2, updated_at = NOW()
		 WHERE id = $3`,
		tabSwitches, windowCloses, attemptID)
	return err
}

// Finalize sets submitted_at, conditioned on the attempt not being finalized
// already. Returns false when another writer got there first, which callers
// treat as success.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, submittedAt time.Time, autoClosed bool) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET submitted_at = $1, auto_closed = $2, updated_at = NOW()
		 WHERE id = $3 AND submitted_at IS NULL`,
		submittedAt, autoClosed, attemptID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SweepExpired finalizes every attempt whose deadline passed without a live
// session closing it (server restart, crashed connection). The deadline is
// stamped as the submission time. Returns the closed attempt IDs.
func (r *AttemptRepository) SweepExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE attempts
		 SET submitted_at = ends_at, auto_closed = TRUE, updated_at = NOW()
		 WHERE submitted_at IS NULL AND ends_at < $1
		 RETURNING id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByPaper retrieves every attempt at a paper joined with student identity
// and answered counts, for the staff monitoring view.
func (r *AttemptRepository) ListByPaper(ctx context.Context, paperID uuid.UUID) ([]model.AttemptOverview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, s.name, s.admission_no,
		        a.started_at, a.ends_at, a.submitted_at, a.auto_closed,
		        (SELECT COUNT(*) FROM attempt_answers aa WHERE aa.attempt_id = a.id),
		        a.tab_switch_count, a.window_close_count
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.paper_id = $1
		 ORDER BY s.name ASC`, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overviews []model.AttemptOverview
	for rows.Next() {
		var o model.AttemptOverview
		if err := rows.Scan(&o.AttemptID, &o.StudentID, &o.StudentName, &o.AdmissionNo,
			&o.StartedAt, &o.EndsAt, &o.SubmittedAt, &o.AutoClosed,
			&o.AnsweredCount, &o.TabSwitchCount, &o.WindowCloseCount); err != nil {
			return nil, err
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

// ListByStudent retrieves all attempts for a given student.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
