// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a scored transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}

	flagReasons, _ := json.Marshal(tx.FlagReasons)

	var analysis []byte
	if tx.Analysis != nil {
		analysis, _ = json.Marshal(tx.Analysis)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, timestamp, amount, merchant, merchant_id,
			narrative, location, ip, z_score, velocity_score,
			signature_score, matched_case_id, risk_level, status,
			flag_reasons, analysis, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Timestamp, tx.Amount,
		tx.Merchant, tx.MerchantID, tx.Narrative,
		tx.Location, tx.IP,
		tx.ZScore, tx.VelocityScore,
		tx.SignatureMatchScore, tx.MatchedCaseID,
		string(tx.RiskLevel), string(tx.Status),
		string(flagReasons), nullableString(analysis), tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, timestamp, amount, merchant, merchant_id,
			   narrative, location, ip, z_score, velocity_score,
			   signature_score, matched_case_id, risk_level, status,
			   flag_reasons, analysis, created_at
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return tx, err
}

// ListRecentTransactions retrieves the most recently ingested transactions.
func (r *SQLRepository) ListRecentTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, timestamp, amount, merchant, merchant_id,
			   narrative, location, ip, z_score, velocity_score,
			   signature_score, matched_case_id, risk_level, status,
			   flag_reasons, analysis, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// UpdateTransactionStatus sets the lifecycle status of a transaction.
// Scores and risk level are immutable once written; status is the only
// column the feedback loop touches.
func (r *SQLRepository) UpdateTransactionStatus(ctx context.Context, txID string, status domain.Status) error {
	query := `UPDATE transactions SET status = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), txID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// AttachAnalysis stores the deep-analysis result on a transaction.
func (r *SQLRepository) AttachAnalysis(ctx context.Context, txID string, result *domain.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("%w: analysis result is required", domain.ErrInvalidInput)
	}

	analysis, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query := `UPDATE transactions SET analysis = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, r.rebind(query), string(analysis), txID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// CountTransactionsByUser counts a user's transactions since a point in
// time. Backs the velocity fallback when the cache is unavailable.
func (r *SQLRepository) CountTransactionsByUser(ctx context.Context, userID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since).Scan(&count)
	return count, err
}

// SaveFraudCase persists a confirmed fraud case.
func (r *SQLRepository) SaveFraudCase(ctx context.Context, c *domain.FraudCase) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: fraud case id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO fraud_cases (
			id, merchant, narrative, case_type, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.Merchant, c.Narrative, c.Type, c.Notes, c.CreatedAt,
	)
	return err
}

// ListFraudCases retrieves all fraud cases in insertion order. Used to
// warm the in-memory knowledge base at startup.
func (r *SQLRepository) ListFraudCases(ctx context.Context) ([]*domain.FraudCase, error) {
	query := `
		SELECT id, merchant, narrative, case_type, notes, created_at
		FROM fraud_cases
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.FraudCase
	for rows.Next() {
		var c domain.FraudCase
		if err := rows.Scan(&c.ID, &c.Merchant, &c.Narrative, &c.Type, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		cases = append(cases, &c)
	}

	return cases, rows.Err()
}

// SaveFlagRule upserts an advisory flag rule.
func (r *SQLRepository) SaveFlagRule(ctx context.Context, rule *domain.FlagRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: flag rule id is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO flag_rules (
			id, name, description, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.Reason,
		enabled, createdAt, now,
	)
	return err
}

// ListFlagRules retrieves all flag rules, enabled and disabled.
func (r *SQLRepository) ListFlagRules(ctx context.Context) ([]*domain.FlagRule, error) {
	query := `
		SELECT id, name, description, expression, reason, enabled, created_at, updated_at
		FROM flag_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FlagRule
	for rows.Next() {
		var rule domain.FlagRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&rule.Reason, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var riskLevel, status, flagReasons string
	var matchedCaseID, analysis sql.NullString

	err := s.Scan(
		&tx.ID, &tx.UserID, &tx.Timestamp, &tx.Amount,
		&tx.Merchant, &tx.MerchantID, &tx.Narrative,
		&tx.Location, &tx.IP,
		&tx.ZScore, &tx.VelocityScore,
		&tx.SignatureMatchScore, &matchedCaseID,
		&riskLevel, &status,
		&flagReasons, &analysis, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.MatchedCaseID = matchedCaseID.String
	tx.RiskLevel = domain.RiskLevel(riskLevel)
	tx.Status = domain.Status(status)

	if flagReasons != "" {
		json.Unmarshal([]byte(flagReasons), &tx.FlagReasons)
	}
	if analysis.Valid && analysis.String != "" {
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(analysis.String), &result); err == nil {
			tx.Analysis = &result
		}
	}

	return &tx, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
