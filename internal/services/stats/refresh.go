// Package stats coordinates the statistics-refresh pipeline: serialized,
// retry-protected snapshot rebuilds and the time-boxed cache in front of
// them.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"scenereview/internal/apperrors"
	"scenereview/internal/models"
	"scenereview/internal/repository"
)

// GlobalScope is the refresh scope covering all scenes.
const GlobalScope = "global"

// Coordinator serializes snapshot refreshes per scope, retries transient
// storage failures with exponential backoff, and deduplicates refresh
// storms: a request arriving while a refresh for the same scope is in
// flight waits for that refresh and shares its result.
type Coordinator struct {
	store       repository.SnapshotRepository
	group       singleflight.Group
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      zerolog.Logger
}

// NewCoordinator creates a refresh coordinator. maxAttempts bounds the
// retry budget for transient failures; delays grow exponentially from
// baseDelay up to maxDelay.
func NewCoordinator(store repository.SnapshotRepository, maxAttempts int, baseDelay, maxDelay time.Duration, logger zerolog.Logger) *Coordinator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Coordinator{
		store:       store,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      logger.With().Str("service", "refresh").Logger(),
	}
}

// RefreshScene recomputes one scene's snapshot from current ledger state.
func (c *Coordinator) RefreshScene(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error) {
	scope := fmt.Sprintf("scene:%d", sceneID)
	v, err, _ := c.group.Do(scope, func() (interface{}, error) {
		return c.withRetry(ctx, scope, func(ctx context.Context) (interface{}, error) {
			return c.store.RebuildSceneSnapshot(ctx, sceneID)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SceneSnapshot), nil
}

// RefreshGlobal recomputes the composite global snapshot. Safe to invoke
// from the background scheduler concurrently with per-scene refreshes.
func (c *Coordinator) RefreshGlobal(ctx context.Context) (*models.GlobalSnapshot, error) {
	v, err, _ := c.group.Do(GlobalScope, func() (interface{}, error) {
		return c.withRetry(ctx, GlobalScope, func(ctx context.Context) (interface{}, error) {
			return c.store.RebuildGlobalSnapshot(ctx)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.GlobalSnapshot), nil
}

// withRetry runs fn, retrying transient storage errors with exponential
// backoff. Validation, consistency and not-found errors pass through
// untouched; everything else is reported as a refresh failure carrying
// the attempt count.
func (c *Coordinator) withRetry(ctx context.Context, scope string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	delay := c.baseDelay
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().Str("scope", scope).Int("attempt", attempt).Msg("refresh recovered")
			}
			return v, nil
		}
		lastErr = err

		if !apperrors.IsTransient(err) {
			// Schema and logic errors will not heal on retry.
			c.logger.Error().Err(err).Str("scope", scope).Msg("refresh failed")
			return nil, &apperrors.RefreshFailedError{Scope: scope, Attempts: attempt, Err: err}
		}

		if attempt == c.maxAttempts {
			break
		}

		c.logger.Warn().Err(err).Str("scope", scope).Int("attempt", attempt).Dur("backoff", delay).Msg("transient refresh failure, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	c.logger.Error().Err(lastErr).Str("scope", scope).Int("attempts", c.maxAttempts).Msg("refresh retry budget exhausted")
	return nil, &apperrors.RefreshFailedError{Scope: scope, Attempts: c.maxAttempts, Err: lastErr}
}
