package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestHTTPAnalyzer(t *testing.T) {
	t.Run("SuccessfulAnalysis", func(t *testing.T) {
		var gotReq analyzeRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			json.NewEncoder(w).Encode(domain.AnalysisResult{
				IsLikelyFraud:     true,
				Confidence:        0.95,
				Reasoning:         "matches a confirmed mule pattern",
				RecommendedAction: "BLOCK",
				KeyRiskFactors:    []string{"signature match"},
			})
		}))
		defer server.Close()

		analyzer := NewHTTPAnalyzer(server.URL, 5*time.Second)
		tx := &domain.Transaction{ID: "tx-1", UserID: "user-1", Amount: 900}
		kb := []*domain.FraudCase{{ID: "case-1", Merchant: "Medi-Global"}}

		result, err := analyzer.Analyze(context.Background(), tx, kb)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		if !result.IsLikelyFraud || result.RecommendedAction != "BLOCK" {
			t.Errorf("unexpected result: %+v", result)
		}
		if gotReq.Transaction == nil || gotReq.Transaction.ID != "tx-1" {
			t.Error("expected transaction in request payload")
		}
		if len(gotReq.KnowledgeBase) != 1 {
			t.Errorf("expected 1 knowledge case in payload, got %d", len(gotReq.KnowledgeBase))
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		analyzer := NewHTTPAnalyzer(server.URL, 5*time.Second)
		_, err := analyzer.Analyze(context.Background(), &domain.Transaction{ID: "tx-1"}, nil)
		if err == nil {
			t.Error("expected error for 502 response")
		}
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		analyzer := NewHTTPAnalyzer(server.URL, 5*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := analyzer.Analyze(ctx, &domain.Transaction{ID: "tx-1"}, nil)
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestHeuristic(t *testing.T) {
	analyzer := Heuristic()
	ctx := context.Background()

	t.Run("CriticalBehavioral", func(t *testing.T) {
		result, err := analyzer.Analyze(ctx, &domain.Transaction{ZScore: 7.2}, nil)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if !result.IsLikelyFraud || result.RecommendedAction != "BLOCK" {
			t.Errorf("expected BLOCK recommendation, got %+v", result)
		}
		if len(result.KeyRiskFactors) == 0 {
			t.Error("expected risk factors for extreme z-score")
		}
	})

	t.Run("MediumSignature", func(t *testing.T) {
		result, err := analyzer.Analyze(ctx, &domain.Transaction{
			SignatureMatchScore: 0.65,
			MatchedCaseID:       "case-9",
		}, nil)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if result.RecommendedAction != "HOLD" {
			t.Errorf("expected HOLD, got %s", result.RecommendedAction)
		}
	})

	t.Run("Benign", func(t *testing.T) {
		result, err := analyzer.Analyze(ctx, &domain.Transaction{ZScore: 0.3}, nil)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if result.IsLikelyFraud {
			t.Error("expected benign result")
		}
		if result.RecommendedAction != "ALLOW" {
			t.Errorf("expected ALLOW, got %s", result.RecommendedAction)
		}
	})
}
