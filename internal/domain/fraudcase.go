package domain

import "time"

// FraudCase is a known fraud signature in the knowledge base.
// Immutable once created; identity is the ID.
type FraudCase struct {
	ID        string `json:"id"`
	Narrative string `json:"narrative"`
	Merchant  string `json:"merchant"`
	Type      string `json:"type"`

	// Notes carries the analyst annotation captured when the case was
	// created by a block verdict. Audit only: matching runs over
	// merchant + narrative and never sees this field.
	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// SignatureText is the text fingerprint used for similarity matching.
func (c *FraudCase) SignatureText() string {
	return c.Merchant + " " + c.Narrative
}

// CaseTypeConfirmed tags cases created by the feedback loop from an
// analyst block verdict.
const CaseTypeConfirmed = "CONFIRMED_FRAUD"
