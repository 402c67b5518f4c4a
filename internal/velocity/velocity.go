// Package velocity tracks per-user transaction rates over a sliding
// window and turns them into an advisory score.
package velocity

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Tracker counts transactions per user through the cache's atomic
// counters and normalizes the count against a configured threshold.
type Tracker struct {
	cache     domain.Cache
	repo      domain.Repository
	window    time.Duration
	threshold int64
	logger    *slog.Logger
}

// NewTracker creates a velocity tracker. The repository is an optional
// fallback counted from persisted transactions when the cache is
// unavailable; pass nil to skip the fallback.
func NewTracker(cache domain.Cache, repo domain.Repository, cfg domain.ScoringConfig, logger *slog.Logger) *Tracker {
	window := time.Duration(cfg.VelocityWindowSecs) * time.Second
	if window <= 0 {
		window = time.Hour
	}
	threshold := int64(cfg.VelocityThreshold)
	if threshold <= 0 {
		threshold = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		cache:     cache,
		repo:      repo,
		window:    window,
		threshold: threshold,
		logger:    logger,
	}
}

// Observe records one transaction for the user and returns the velocity
// score: count within the window divided by the threshold, capped at
// 1.0. The score is advisory; a cache outage degrades to the repository
// count and, failing that, to 0 rather than blocking the pipeline.
func (t *Tracker) Observe(ctx context.Context, userID string) float64 {
	count, err := t.cache.IncrementCounter(ctx, t.counterKey(userID), t.window)
	if err != nil {
		t.logger.Warn("velocity counter unavailable, falling back to repository",
			"user_id", userID,
			"error", err,
		)
		count = t.repoCount(ctx, userID) + 1
	}
	return t.score(count)
}

// Count returns the user's persisted transaction count in the current
// window without recording a new observation. Counter entries live
// behind the cache's atomic increment and are not individually
// readable, so this goes straight to the repository. Used by the
// profile endpoint.
func (t *Tracker) Count(ctx context.Context, userID string) int64 {
	return t.repoCount(ctx, userID)
}

// Window returns the configured sliding window.
func (t *Tracker) Window() time.Duration { return t.window }

func (t *Tracker) score(count int64) float64 {
	s := float64(count) / float64(t.threshold)
	if s > 1.0 {
		s = 1.0
	}
	if s < 0 {
		s = 0
	}
	return s
}

func (t *Tracker) repoCount(ctx context.Context, userID string) int64 {
	if t.repo == nil {
		return 0
	}
	count, err := t.repo.CountTransactionsByUser(ctx, userID, time.Now().Add(-t.window))
	if err != nil {
		t.logger.Warn("velocity repository fallback failed",
			"user_id", userID,
			"error", err,
		)
		return 0
	}
	return count
}

func (t *Tracker) counterKey(userID string) string {
	return "velocity:" + userID
}
