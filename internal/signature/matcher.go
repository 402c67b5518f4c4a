// Package signature matches transaction text fingerprints against the
// fraud case knowledge base.
package signature

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

const (
	// MerchantBoost is added to a case's score when the transaction's
	// merchant string exactly equals the case's merchant string. Applied
	// before taking the max across cases and before the clamp, so two
	// low-overlap narratives with the same merchant can still clear the
	// critical threshold. Intentional: exact merchant reuse is itself a
	// strong signal.
	MerchantBoost = 0.4

	// MaxScore caps the reported score. A perfect 1.0 is never reported,
	// leaving room for manual override semantics downstream.
	MaxScore = 0.99
)

// Similarity computes a similarity score between two raw signature texts.
// Pluggable so an embedding-based cosine + lexical blend can substitute
// for the default token-overlap ratio without touching the classifier or
// the feedback loop.
type Similarity func(a, b string) float64

// Result is the outcome of a knowledge base match.
type Result struct {
	// Score is the best similarity found, in [0, MaxScore].
	Score float64

	// Case is the best-matching fraud case, nil when nothing scored
	// above zero.
	Case *domain.FraudCase
}

// Matcher scores transaction signatures against fraud cases.
type Matcher struct {
	similarity Similarity
}

// NewMatcher creates a matcher with the default token-overlap similarity.
func NewMatcher() *Matcher {
	return &Matcher{similarity: TokenOverlap}
}

// NewMatcherWith creates a matcher with a custom similarity function.
func NewMatcherWith(sim Similarity) *Matcher {
	return &Matcher{similarity: sim}
}

// Match scores the transaction's merchant+narrative fingerprint against
// every case and returns the best match. Ties keep the first-encountered
// maximum, and cases scoring zero never match. An empty knowledge base
// yields {0, nil}.
func (m *Matcher) Match(merchant, narrative string, cases []*domain.FraudCase) Result {
	txText := merchant + " " + narrative

	var best Result
	for _, c := range cases {
		score := m.similarity(txText, c.SignatureText())

		// Exact merchant equality on the raw strings, a lexical proxy
		// for an exact merchant-id hit.
		if merchant == c.Merchant {
			score += MerchantBoost
		}

		if score > best.Score {
			best.Score = score
			best.Case = c
		}
	}

	if best.Score > MaxScore {
		best.Score = MaxScore
	}
	return best
}

var punctuation = regexp.MustCompile(`[^\w\s]+`)

// TokenOverlap is the default similarity: lowercase both texts, strip
// punctuation, split on whitespace into token sets, then
// |intersection| / max(|a|, |b|). Not true Jaccard - the denominator is
// the larger set, not the union - and that ratio must be preserved for
// score compatibility. Two empty token sets score 0.
func TokenOverlap(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}

	var intersection int
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}

	return float64(intersection) / float64(denom)
}

func tokenize(text string) map[string]struct{} {
	cleaned := punctuation.ReplaceAllString(strings.ToLower(text), "")
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		tokens[tok] = struct{}{}
	}
	return tokens
}
