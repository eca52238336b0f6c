package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iobuilds/learn-lanka-sub000/internal/config"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/repository"
)

// MonitorService backs the staff live-monitoring view of a paper.
type MonitorService struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(attemptRepo *repository.AttemptRepository, rdb *redis.Client) *MonitorService {
	return &MonitorService{attemptRepo: attemptRepo, rdb: rdb}
}

// ListAttempts returns the full monitoring snapshot for a paper: every
// attempt with student identity, progress and violation counters.
func (s *MonitorService) ListAttempts(ctx context.Context, paperID uuid.UUID) ([]model.AttemptOverview, error) {
	overviews, err := s.attemptRepo.ListByPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if overviews == nil {
		overviews = []model.AttemptOverview{}
	}
	return overviews, nil
}

// Subscribe opens the live event feed for a paper. Callers must Close the
// returned PubSub when done.
func (s *MonitorService) Subscribe(ctx context.Context, paperID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.PaperMonitorChannel(paperID.String()))
}
