// Package stats maintains per-user spending baselines.
package stats

import (
	"math"
	"sync"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Tracker keeps a bounded FIFO window of transaction amounts per user and
// derives mean/stdDev baselines from it. Updates to the same user are
// serialized on a per-user lock; different users never contend beyond the
// map lookup.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*userState

	historySize   int
	defaultMean   float64
	defaultStdDev float64
}

type userState struct {
	mu      sync.Mutex
	history []float64
	mean    float64
	stdDev  float64
}

// NewTracker creates a tracker with the given scoring configuration.
func NewTracker(cfg domain.ScoringConfig) *Tracker {
	size := cfg.HistorySize
	if size <= 0 {
		size = 50
	}
	return &Tracker{
		users:         make(map[string]*userState),
		historySize:   size,
		defaultMean:   cfg.DefaultMean,
		defaultStdDev: cfg.DefaultStdDev,
	}
}

// Record appends an amount to the user's history, evicting the oldest
// entry when the window is full, and recomputes the baseline over the
// current window. Returns the updated profile.
func (t *Tracker) Record(userID string, amount float64) domain.UserProfile {
	u := t.getOrCreate(userID)

	u.mu.Lock()
	defer u.mu.Unlock()

	u.history = append(u.history, amount)
	if len(u.history) > t.historySize {
		u.history = u.history[len(u.history)-t.historySize:]
	}
	u.mean, u.stdDev = computeStats(u.history)

	return domain.UserProfile{
		History: append([]float64(nil), u.history...),
		Mean:    u.mean,
		StdDev:  u.stdDev,
	}
}

// Profile returns the user's current baseline. An unseen user gets the
// configured default baseline, not an error.
func (t *Tracker) Profile(userID string) domain.UserProfile {
	t.mu.RLock()
	u, ok := t.users[userID]
	t.mu.RUnlock()

	if !ok {
		return domain.UserProfile{
			History: nil,
			Mean:    t.defaultMean,
			StdDev:  t.defaultStdDev,
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	return domain.UserProfile{
		History: append([]float64(nil), u.history...),
		Mean:    u.mean,
		StdDev:  u.stdDev,
	}
}

// UserCount returns the number of tracked users.
func (t *Tracker) UserCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

func (t *Tracker) getOrCreate(userID string) *userState {
	t.mu.RLock()
	u, ok := t.users[userID]
	t.mu.RUnlock()
	if ok {
		return u
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok = t.users[userID]; ok {
		return u
	}
	u = &userState{}
	t.users[userID] = u
	return u
}

// computeStats derives mean and population standard deviation (divide by N)
// over the window. Empty windows yield {0, 0}; a window of identical values
// yields stdDev 0.
func computeStats(history []float64) (mean, stdDev float64) {
	if len(history) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range history {
		sum += v
	}
	mean = sum / float64(len(history))

	var variance float64
	for _, v := range history {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(history))

	return mean, math.Sqrt(variance)
}
