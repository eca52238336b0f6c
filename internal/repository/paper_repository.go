package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iobuilds/learn-lanka-sub000/internal/model"
)

// PaperRepository handles rank paper data access.
type PaperRepository struct {
	pool *pgxpool.Pool
}

// NewPaperRepository creates a new PaperRepository.
func NewPaperRepository(pool *pgxpool.Pool) *PaperRepository {
	return &PaperRepository{pool: pool}
}

const paperColumns = `id, title, subject, medium, grade, duration_minutes, question_count,
	        option_count, has_essay, has_short_essay, opens_at, closes_at,
	        status, created_at, updated_at`

// GetByID retrieves a paper by its UUID.
func (r *PaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RankPaper, error) {
	p := &model.RankPaper{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+paperColumns+` FROM rank_papers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Subject, &p.Medium, &p.Grade, &p.DurationMinutes, &p.QuestionCount,
		&p.OptionCount, &p.HasEssay, &p.HasShortEssay, &p.OpensAt, &p.ClosesAt,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPublishedForStudent returns the published papers a student can sit,
// filtered by the student's medium and grade.
func (r *PaperRepository) ListPublishedForStudent(ctx context.Context, medium model.Medium, grade int) ([]model.RankPaper, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paperColumns+`
		 FROM rank_papers
		 WHERE status = $1 AND medium = $2 AND grade = $3
		 ORDER BY created_at DESC`,
		model.PaperStatusPublished, medium, grade)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPapers(rows)
}

// ListPublished returns all published papers.
// Used for cache prewarming on application startup.
func (r *PaperRepository) ListPublished(ctx context.Context) ([]model.RankPaper, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paperColumns+`
		 FROM rank_papers
		 WHERE status = $1
		 ORDER BY created_at DESC`, model.PaperStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPapers(rows)
}

func collectPapers(rows pgx.Rows) ([]model.RankPaper, error) {
	var papers []model.RankPaper
	for rows.Next() {
		var p model.RankPaper
		if err := rows.Scan(&p.ID, &p.Title, &p.Subject, &p.Medium, &p.Grade, &p.DurationMinutes, &p.QuestionCount,
			&p.OptionCount, &p.HasEssay, &p.HasShortEssay, &p.OpensAt, &p.ClosesAt,
			&p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// GetQuestions returns a paper's questions in paper order, key included.
// Callers building student payloads must strip the key.
func (r *PaperRepository) GetQuestions(ctx context.Context, paperID uuid.UUID) ([]model.PaperQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, paper_id, number, question_text, options, correct_option
		 FROM paper_questions
		 WHERE paper_id = $1
		 ORDER BY number ASC`, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.PaperQuestion
	for rows.Next() {
		var q model.PaperQuestion
		if err := rows.Scan(&q.ID, &q.PaperID, &q.Number, &q.QuestionText, &q.Options, &q.CorrectOption); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
