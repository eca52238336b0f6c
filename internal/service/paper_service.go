package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/config"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/repository"
)

// Domain errors.
var (
	ErrPaperNotPublished = errors.New("paper is not published")
	ErrPaperNotOpen      = errors.New("paper is outside its availability window")
	ErrNoQuestions       = errors.New("paper has no questions")
)

// PaperService handles rank paper business logic and Redis payload caching.
// The cached payload is what students download when entering an attempt; it
// never contains the answer key.
type PaperService struct {
	paperRepo *repository.PaperRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewPaperService creates a new PaperService.
func NewPaperService(paperRepo *repository.PaperRepository, rdb *redis.Client, log zerolog.Logger) *PaperService {
	return &PaperService{
		paperRepo: paperRepo,
		rdb:       rdb,
		log:       log.With().Str("component", "paper_service").Logger(),
	}
}

// GetByID retrieves a paper by its UUID.
func (s *PaperService) GetByID(ctx context.Context, id uuid.UUID) (*model.RankPaper, error) {
	return s.paperRepo.GetByID(ctx, id)
}

// ListForStudent returns the published papers a student can sit.
func (s *PaperService) ListForStudent(ctx context.Context, medium model.Medium, grade int) ([]model.RankPaper, error) {
	papers, err := s.paperRepo.ListPublishedForStudent(ctx, medium, grade)
	if err != nil {
		return nil, err
	}
	if papers == nil {
		papers = []model.RankPaper{}
	}
	return papers, nil
}

// CheckAvailability verifies a paper can be entered right now: it must be
// published and, when scheduled, inside its open window. Attempts already in
// progress continue past closes_at; only new entries check the window.
func (s *PaperService) CheckAvailability(paper *model.RankPaper, now time.Time) error {
	if paper.Status != model.PaperStatusPublished {
		return ErrPaperNotPublished
	}
	if paper.OpensAt != nil && now.Before(*paper.OpensAt) {
		return ErrPaperNotOpen
	}
	if paper.ClosesAt != nil && now.After(*paper.ClosesAt) {
		return ErrPaperNotOpen
	}
	return nil
}

// WarmPaperCache loads a paper's student payload from PostgreSQL into Redis.
// Used on publish and by startup prewarming.
func (s *PaperService) WarmPaperCache(ctx context.Context, paper *model.RankPaper) error {
	questions, err := s.paperRepo.GetQuestions(ctx, paper.ID)
	if err != nil {
		return fmt.Errorf("get questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	// Build student-facing payload (without the answer key).
	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:           q.ID,
			Number:       q.Number,
			QuestionText: q.QuestionText,
			Options:      q.Options,
		}
	}

	payload := model.PaperPayload{
		PaperID:         paper.ID,
		Title:           paper.Title,
		Medium:          paper.Medium,
		DurationMinutes: paper.DurationMinutes,
		HasEssay:        paper.HasEssay,
		HasShortEssay:   paper.HasShortEssay,
		Questions:       studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.PaperPayloadKey(paper.ID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.PaperDurationKey(paper.ID.String()), paper.DurationMinutes, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("paper_id", paper.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published papers into Redis on application startup.
// This prevents any lazy-loading race conditions under thundering herd traffic.
func (s *PaperService) PrewarmAllCaches(ctx context.Context) error {
	papers, err := s.paperRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published papers: %w", err)
	}

	if len(papers) == 0 {
		s.log.Info().Msg("No published papers to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(papers)).Msg("Prewarming published papers...")

	warmed := 0
	for i := range papers {
		if err := s.WarmPaperCache(ctx, &papers[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("paper_id", papers[i].ID.String()).
				Msg("Failed to warm paper, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(papers)).
		Msg("Prewarming complete")
	return nil
}

// GetPaperPayload retrieves the cached student payload, falling back to the
// database (and re-warming) on a cache miss.
func (s *PaperService) GetPaperPayload(ctx context.Context, paperID uuid.UUID) (*model.PaperPayload, error) {
	key := config.CacheKey.PaperPayloadKey(paperID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get payload: %w", err)
		}
		// Cache miss: self-heal from PostgreSQL.
		paper, err := s.paperRepo.GetByID(ctx, paperID)
		if err != nil {
			return nil, fmt.Errorf("get paper: %w", err)
		}
		if paper.Status != model.PaperStatusPublished {
			return nil, ErrPaperNotPublished
		}
		if err := s.WarmPaperCache(ctx, paper); err != nil {
			return nil, err
		}
		data, err = s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("get payload after warm: %w", err)
		}
	}

	var payload model.PaperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}
