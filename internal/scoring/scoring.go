// Package scoring provides the behavioral score and the risk policy that
// merges the behavioral and signature signals into a risk tier.
package scoring

import (
	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Classification thresholds. A transaction is CRITICAL when either signal
// clears the critical bar, MEDIUM when either clears the medium bar, LOW
// otherwise. Evaluated most-severe first.
const (
	ZScoreCritical    = 5.0
	ZScoreMedium      = 3.0
	SignatureCritical = 0.8
	SignatureMedium   = 0.6
)

// ZScore returns how many standard deviations amount lies from the
// profile's mean. A flat baseline (stdDev 0) yields 0: no anomaly signal
// can be computed, which is neutral, not exceptional.
func ZScore(amount float64, profile domain.UserProfile) float64 {
	if profile.StdDev == 0 {
		return 0
	}
	return (amount - profile.Mean) / profile.StdDev
}

// Classify maps the two scoring signals to a risk tier. Pure and total:
// every (zScore, signatureScore) pair maps to exactly one tier, and the
// result is monotonic in both inputs.
func Classify(zScore, signatureScore float64) domain.RiskLevel {
	if zScore > ZScoreCritical || signatureScore > SignatureCritical {
		return domain.RiskCritical
	}
	if zScore > ZScoreMedium || signatureScore > SignatureMedium {
		return domain.RiskMedium
	}
	return domain.RiskLow
}

// InitialStatus derives the starting lifecycle state from the risk tier:
// low-risk transactions are allowed immediately, everything else waits for
// an analyst or automated decision.
func InitialStatus(level domain.RiskLevel) domain.Status {
	if level == domain.RiskLow {
		return domain.StatusAllowed
	}
	return domain.StatusPending
}
