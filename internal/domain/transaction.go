// Package domain defines the core interfaces and types for FraudLens.
package domain

import (
	"time"
)

// RiskLevel classifies how suspicious a transaction is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels from least to most severe.
// Unknown levels rank below LOW.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// Status is the lifecycle state of a scored transaction.
type Status string

const (
	StatusPending   Status = "PENDING"   // awaiting analyst decision
	StatusAnalyzing Status = "ANALYZING" // deep analysis in flight
	StatusBlocked   Status = "BLOCKED"   // terminal: analyst blocked
	StatusAllowed   Status = "ALLOWED"   // terminal: allowed (initially or by analyst)
	StatusFlagged   Status = "FLAGGED"   // low risk but an advisory flag rule fired
)

// Verdict is an analyst decision on a pending transaction.
type Verdict string

const (
	VerdictBlock Verdict = "BLOCK"
	VerdictAllow Verdict = "ALLOW"
)

// RawTransaction is an incoming transaction record from the producer,
// before any scoring has been applied.
type RawTransaction struct {
	ID         string    `json:"id,omitempty"` // generated when empty
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	Amount     float64   `json:"amount"`
	Merchant   string    `json:"merchant"`
	MerchantID string    `json:"merchantId"`
	Narrative  string    `json:"narrative"`
	Location   string    `json:"location,omitempty"`
	IP         string    `json:"ip,omitempty"`
}

// Transaction is a scored transaction. ZScore, VelocityScore,
// SignatureMatchScore and RiskLevel are computed exactly once at scoring
// time and never change afterwards; Status is mutated by the feedback loop
// and Analysis is attached by the external analyst when it completes.
type Transaction struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp"`
	Amount     float64   `json:"amount"`
	Merchant   string    `json:"merchant"`
	MerchantID string    `json:"merchantId"`
	Narrative  string    `json:"narrative"`
	Location   string    `json:"location,omitempty"`
	IP         string    `json:"ip,omitempty"`

	// Fast behavioral features
	ZScore        float64 `json:"zScore"`
	VelocityScore float64 `json:"velocityScore"`

	// Signature features
	SignatureMatchScore float64 `json:"signatureMatchScore"`
	MatchedCaseID       string  `json:"matchedCaseId,omitempty"`

	RiskLevel RiskLevel `json:"riskLevel"`
	Status    Status    `json:"status"`

	// Advisory annotations; never inputs to RiskLevel.
	FlagReasons []string        `json:"flagReasons,omitempty"`
	Analysis    *AnalysisResult `json:"analysis,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// AnalysisResult is the structured verdict returned by the external
// deep-analysis collaborator. It is attached to a transaction for audit
// and never feeds back into scoring or classification.
type AnalysisResult struct {
	IsLikelyFraud     bool     `json:"isLikelyFraud"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	RecommendedAction string   `json:"recommendedAction"` // BLOCK, ALLOW or HOLD
	KeyRiskFactors    []string `json:"keyRiskFactors"`
}
