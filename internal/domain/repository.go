package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, txID string, status Status) error
	AttachAnalysis(ctx context.Context, txID string, result *AnalysisResult) error
	CountTransactionsByUser(ctx context.Context, userID string, since time.Time) (int64, error)

	// Knowledge base persistence
	SaveFraudCase(ctx context.Context, c *FraudCase) error
	ListFraudCases(ctx context.Context) ([]*FraudCase, error)

	// Advisory flag rules
	SaveFlagRule(ctx context.Context, rule *FlagRule) error
	ListFlagRules(ctx context.Context) ([]*FlagRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
