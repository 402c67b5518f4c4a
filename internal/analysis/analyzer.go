// Package analysis provides deep-analysis backends for scored transactions.
//
// The production backend is an external generative-AI service reached over
// HTTP. A local heuristic backend is included for the community tier and for
// tests. Both produce advisory results only; a failed analysis never changes
// a transaction's scores or status.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// HTTPAnalyzer calls an external analysis service.
type HTTPAnalyzer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPAnalyzer creates an analyzer backed by an HTTP endpoint.
func NewHTTPAnalyzer(endpoint string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPAnalyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// analyzeRequest is the wire format sent to the analysis service.
type analyzeRequest struct {
	Transaction   *domain.Transaction `json:"transaction"`
	KnowledgeBase []*domain.FraudCase `json:"knowledgeBase"`
}

// Analyze posts the transaction and knowledge base snapshot to the service.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, tx *domain.Transaction, knowledgeBase []*domain.FraudCase) (*domain.AnalysisResult, error) {
	body, err := json.Marshal(analyzeRequest{
		Transaction:   tx,
		KnowledgeBase: knowledgeBase,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service returned status %d", resp.StatusCode)
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	return &result, nil
}

// Heuristic returns a local analyzer that reasons from the computed scores.
// It stands in for the external service in the community tier.
func Heuristic() domain.AnalyzerFunc {
	return func(ctx context.Context, tx *domain.Transaction, knowledgeBase []*domain.FraudCase) (*domain.AnalysisResult, error) {
		result := &domain.AnalysisResult{
			RecommendedAction: "ALLOW",
		}

		if tx.ZScore > 5 {
			result.KeyRiskFactors = append(result.KeyRiskFactors,
				fmt.Sprintf("amount is %.1f standard deviations above the user's baseline", tx.ZScore))
		} else if tx.ZScore > 3 {
			result.KeyRiskFactors = append(result.KeyRiskFactors,
				fmt.Sprintf("amount deviates from the user's baseline (z=%.1f)", tx.ZScore))
		}

		if tx.SignatureMatchScore > 0.8 {
			result.KeyRiskFactors = append(result.KeyRiskFactors,
				fmt.Sprintf("narrative closely matches known fraud case %s", tx.MatchedCaseID))
		} else if tx.SignatureMatchScore > 0.6 {
			result.KeyRiskFactors = append(result.KeyRiskFactors,
				fmt.Sprintf("narrative partially matches known fraud case %s", tx.MatchedCaseID))
		}

		if tx.VelocityScore >= 1.0 {
			result.KeyRiskFactors = append(result.KeyRiskFactors,
				"transaction velocity exceeds the configured window threshold")
		}

		switch {
		case tx.ZScore > 5 || tx.SignatureMatchScore > 0.8:
			result.IsLikelyFraud = true
			result.Confidence = 0.9
			result.RecommendedAction = "BLOCK"
		case tx.ZScore > 3 || tx.SignatureMatchScore > 0.6:
			result.IsLikelyFraud = true
			result.Confidence = 0.6
			result.RecommendedAction = "HOLD"
		default:
			result.Confidence = 0.8
		}

		if len(result.KeyRiskFactors) == 0 {
			result.Reasoning = "No significant risk factors detected."
		} else {
			result.Reasoning = fmt.Sprintf("Detected %d risk factor(s): behavioral and signature signals reviewed against %d known cases.",
				len(result.KeyRiskFactors), len(knowledgeBase))
		}

		return result, nil
	}
}
