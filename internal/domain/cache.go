package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Backed by a local LRU (community) or Redis (pro), optionally two-phase.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetTransaction retrieves a cached scored transaction.
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// SetTransaction caches a scored transaction for hot reads.
	SetTransaction(ctx context.Context, txID string, tx *Transaction, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for per-user velocity windows.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
