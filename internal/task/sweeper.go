package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// SweeperConfig holds configuration for the sweeper
type SweeperConfig struct {
	// Interval defines how often to sweep
	Interval time.Duration

	// ProcessingDeadline defines how long a job can stay in Processing
	// before it is expired
	ProcessingDeadline time.Duration

	// Retention defines how long terminal jobs stay pollable
	Retention time.Duration
}

// DefaultSweeperConfig returns a SweeperConfig with reasonable defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:           30 * time.Second,
		ProcessingDeadline: 5*time.Minute + 30*time.Second,
		Retention:          time.Hour,
	}
}

// SweepResult reports what one sweep changed.
type SweepResult struct {
	Expired int
	Purged  int
}

// Sweeper periodically expires jobs stuck in Processing and purges terminal
// jobs past their retention.
type Sweeper struct {
	store  *Store
	config SweeperConfig
	logger *slog.Logger
}

// NewSweeper creates a Sweeper
func NewSweeper(store *Store, config SweeperConfig, logger *slog.Logger) *Sweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.ProcessingDeadline <= 0 {
		config.ProcessingDeadline = defaults.ProcessingDeadline
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	return &Sweeper{
		store:  store,
		config: config,
		logger: logger.With("component", "sweeper"),
	}
}

// Run sweeps on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	var result SweepResult

	for _, id := range s.store.StuckProcessing(s.config.ProcessingDeadline) {
		now := time.Now()
		_, err := s.store.Transition(ctx, id, domain.StatusProcessing, domain.StatusExpired,
			func(j *domain.Job) {
				j.Fail(domain.ErrorKindExpired, "request exceeded the processing deadline", false, now)
			})
		if err != nil {
			if !errors.Is(err, domain.ErrStaleTransition) {
				s.logger.Error("failed to expire stuck request", "request_id", id, "error", err)
			}
			continue
		}
		result.Expired++
		s.logger.Warn("expired stuck request",
			"request_id", id,
			"deadline", s.config.ProcessingDeadline)
	}

	result.Purged = s.store.Sweep(s.config.Retention)

	if result.Expired > 0 || result.Purged > 0 {
		s.logger.Info("sweep finished", "expired", result.Expired, "purged", result.Purged)
	}
	return result
}
