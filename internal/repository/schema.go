package repository

// Schema definitions for the FraudLens database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    merchant TEXT NOT NULL,
    merchant_id TEXT,
    narrative TEXT,
    location TEXT,
    ip TEXT,
    z_score REAL NOT NULL,
    velocity_score REAL NOT NULL,
    signature_score REAL NOT NULL,
    matched_case_id TEXT,
    risk_level TEXT NOT NULL,
    status TEXT NOT NULL,
    flag_reasons TEXT,
    analysis TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

const schemaFraudCases = `
CREATE TABLE IF NOT EXISTS fraud_cases (
    id TEXT PRIMARY KEY,
    merchant TEXT NOT NULL,
    narrative TEXT NOT NULL,
    case_type TEXT NOT NULL,
    notes TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_cases_merchant ON fraud_cases(merchant);
CREATE INDEX IF NOT EXISTS idx_fraud_cases_created ON fraud_cases(created_at);
`

const schemaFlagRules = `
CREATE TABLE IF NOT EXISTS flag_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flag_rules_enabled ON flag_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaFraudCases,
		schemaFlagRules,
	}
}
