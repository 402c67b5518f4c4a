package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// fakeCache implements domain.Cache with an in-memory counter map and an
// optional injected failure.
type fakeCache struct {
	counters map[string]int64
	values   map[string][]byte
	failIncr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{counters: make(map[string]int64), values: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	if c, ok := f.counters[key]; ok {
		return []byte(fmt.Sprintf("%d", c)), nil
	}
	return nil, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.values[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	delete(f.values, key)
	delete(f.counters, key)
	return nil
}

func (f *fakeCache) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeCache) SetTransaction(ctx context.Context, txID string, tx *domain.Transaction, ttl time.Duration) error {
	return nil
}

func (f *fakeCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.failIncr != nil {
		return 0, f.failIncr
	}
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }
func (f *fakeCache) Close() error                   { return nil }

// countingRepo implements only the method the tracker's fallback uses.
type countingRepo struct {
	domain.Repository
	count int64
	err   error
}

func (r *countingRepo) CountTransactionsByUser(ctx context.Context, userID string, since time.Time) (int64, error) {
	return r.count, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestTracker(cache domain.Cache, repo domain.Repository) *Tracker {
	cfg := domain.ScoringConfig{VelocityWindowSecs: 3600, VelocityThreshold: 10}
	return NewTracker(cache, repo, cfg, discardLogger())
}

func TestObserveScoresAgainstThreshold(t *testing.T) {
	tracker := newTestTracker(newFakeCache(), nil)
	ctx := context.Background()

	if s := tracker.Observe(ctx, "user-1"); s != 0.1 {
		t.Errorf("first observation: expected 0.1, got %v", s)
	}
	for i := 0; i < 4; i++ {
		tracker.Observe(ctx, "user-1")
	}
	if s := tracker.Observe(ctx, "user-1"); s != 0.6 {
		t.Errorf("sixth observation: expected 0.6, got %v", s)
	}
}

func TestObserveCapsAtOne(t *testing.T) {
	tracker := newTestTracker(newFakeCache(), nil)
	ctx := context.Background()

	var last float64
	for i := 0; i < 25; i++ {
		last = tracker.Observe(ctx, "burst-user")
	}
	if last != 1.0 {
		t.Errorf("expected score capped at 1.0, got %v", last)
	}
}

func TestUsersHaveIndependentCounters(t *testing.T) {
	tracker := newTestTracker(newFakeCache(), nil)
	ctx := context.Background()

	tracker.Observe(ctx, "alice")
	tracker.Observe(ctx, "alice")
	if s := tracker.Observe(ctx, "bob"); s != 0.1 {
		t.Errorf("bob's first observation: expected 0.1, got %v", s)
	}
}

func TestCacheFailureFallsBackToRepository(t *testing.T) {
	cache := newFakeCache()
	cache.failIncr = errors.New("redis down")
	repo := &countingRepo{count: 4}

	tracker := newTestTracker(cache, repo)

	// Repository reports 4 persisted in the window; the current one makes 5.
	if s := tracker.Observe(context.Background(), "user-1"); s != 0.5 {
		t.Errorf("expected fallback score 0.5, got %v", s)
	}
}

func TestTotalFailureDegradesToMinimalScore(t *testing.T) {
	cache := newFakeCache()
	cache.failIncr = errors.New("redis down")
	repo := &countingRepo{err: errors.New("db down")}

	tracker := newTestTracker(cache, repo)

	// Both backends down: only the current transaction is counted.
	if s := tracker.Observe(context.Background(), "user-1"); s != 0.1 {
		t.Errorf("expected degraded score 0.1, got %v", s)
	}
}

func TestCountReadsRepository(t *testing.T) {
	ctx := context.Background()

	tracker := newTestTracker(newFakeCache(), &countingRepo{count: 7})
	if c := tracker.Count(ctx, "user-1"); c != 7 {
		t.Errorf("expected repository count 7, got %d", c)
	}

	noRepo := newTestTracker(newFakeCache(), nil)
	if c := noRepo.Count(ctx, "user-1"); c != 0 {
		t.Errorf("expected 0 without a repository, got %d", c)
	}
}

func TestDefaultsApplied(t *testing.T) {
	tracker := NewTracker(newFakeCache(), nil, domain.ScoringConfig{}, nil)
	if tracker.Window() != time.Hour {
		t.Errorf("expected default 1h window, got %v", tracker.Window())
	}
	if tracker.threshold != 20 {
		t.Errorf("expected default threshold 20, got %d", tracker.threshold)
	}
}
