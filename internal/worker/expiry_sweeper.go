package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/repository"
)

// ExpirySweeper closes attempts whose deadline passed without a live session
// finalizing them. Live sessions auto-close themselves; this catches rows
// orphaned by a server restart or a crash mid-attempt.
type ExpirySweeper struct {
	attemptRepo *repository.AttemptRepository
	interval    time.Duration
	log         zerolog.Logger
}

func NewExpirySweeper(attemptRepo *repository.AttemptRepository, interval time.Duration, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		attemptRepo: attemptRepo,
		interval:    interval,
		log:         log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpirySweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep once at startup so attempts stranded by a restart close
	// immediately instead of waiting a full interval.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpirySweeper stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ids, err := w.attemptRepo.SweepExpired(sweepCtx, time.Now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Error().Err(err).Msg("Sweep query failed")
		return
	}

	if len(ids) > 0 {
		w.log.Info().Int("count", len(ids)).Msg("Auto-closed expired attempts")
		for _, id := range ids {
			w.log.Debug().Str("attempt_id", id.String()).Msg("Attempt closed by sweeper")
		}
	}
}
