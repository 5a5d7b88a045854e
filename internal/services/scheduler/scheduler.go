// Package scheduler drives the periodic global snapshot refresh,
// independent of request traffic.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Refresher triggers a global refresh; the coordinator's own guard makes
// concurrent on-demand refreshes safe.
type Refresher func(ctx context.Context) error

// Scheduler invokes a refresh on a fixed interval until its context is
// cancelled.
type Scheduler struct {
	interval time.Duration
	refresh  Refresher
	logger   zerolog.Logger
}

// New creates a scheduler that calls refresh every interval.
func New(interval time.Duration, refresh Refresher, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		refresh:  refresh,
		logger:   logger.With().Str("service", "scheduler").Logger(),
	}
}

// Run blocks, firing the refresh on every tick, and returns when ctx is
// cancelled. A failed refresh is logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("global refresh scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("global refresh scheduler stopped")
			return
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled global refresh failed")
			}
		}
	}
}
