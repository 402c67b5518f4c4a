package domain

import "time"

// FlagRule is an advisory CEL rule evaluated after classification.
// A fired rule can turn an otherwise-ALLOWED low-risk transaction into
// FLAGGED and contributes a human-readable reason, but it never alters
// the risk level itself.
type FlagRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over the scored transaction that
	// must evaluate to bool. Available variables: amount, z_score,
	// signature_score, velocity_score, merchant, narrative, risk_level.
	Expression string `json:"expression"`

	// Reason is attached to the transaction when the rule fires.
	Reason string `json:"reason"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// FlagResult records a fired flag rule.
type FlagResult struct {
	RuleID string `json:"ruleId"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
