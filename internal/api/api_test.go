package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/cache"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/flags"
	"github.com/opensource-finance/fraudlens/internal/knowledge"
	"github.com/opensource-finance/fraudlens/internal/pipeline"
	"github.com/opensource-finance/fraudlens/internal/repository"
	"github.com/opensource-finance/fraudlens/internal/signature"
	"github.com/opensource-finance/fraudlens/internal/stats"
	"github.com/opensource-finance/fraudlens/internal/velocity"
)

// createTestServer wires a full community-tier stack on a temp SQLite file.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "fraudlens-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	flagEngine, err := flags.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create flag engine: %v", err)
	}

	scoringCfg := domain.ScoringConfig{
		HistorySize:        50,
		VelocityWindowSecs: 3600,
		VelocityThreshold:  20,
	}
	lru := cache.NewLRUCache(1000)
	logger := slog.New(slog.DiscardHandler)

	service := pipeline.NewService(pipeline.Options{
		Repository: repo,
		Cache:      lru,
		EventBus:   eventBus,
		Tracker:    stats.NewTracker(scoringCfg),
		Velocity:   velocity.NewTracker(lru, repo, scoringCfg, logger),
		Matcher:    signature.NewMatcher(),
		Knowledge:  knowledge.NewBase(),
		Flags:      flagEngine,
		Logger:     logger,
	})

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, service, repo, lru, eventBus, flagEngine, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestScoreTransactionEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
			UserID:    "user-1",
			Amount:    42.5,
			Merchant:  "Starbucks",
			Narrative: "morning coffee",
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Transaction == nil || resp.Transaction.ID == "" {
			t.Fatal("expected scored transaction with id")
		}
		if resp.Transaction.RiskLevel != domain.RiskLow || resp.Transaction.Status != domain.StatusAllowed {
			t.Errorf("expected LOW/ALLOWED, got %s/%s", resp.Transaction.RiskLevel, resp.Transaction.Status)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString("not-json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
			UserID: "user-1",
			Amount: -10,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingUser", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{Amount: 10})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestGetTransactionEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
		UserID: "user-1", Amount: 10, Merchant: "m", Narrative: "n",
	})
	var resp ScoreResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	t.Run("Found", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/transactions/"+resp.Transaction.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var tx domain.Transaction
		if err := json.Unmarshal(rr.Body.Bytes(), &tx); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if tx.ID != resp.Transaction.ID {
			t.Errorf("expected %s, got %s", resp.Transaction.ID, tx.ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/transactions/missing", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/transactions?limit=10", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var body struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body.Count != 1 {
			t.Errorf("expected 1 transaction, got %d", body.Count)
		}
	})

	t.Run("ListBadLimit", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/transactions?limit=-3", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestVerdictEndpoint(t *testing.T) {
	server := createTestServer(t)

	// Seed a case so a matching transaction comes out PENDING.
	rr := doJSON(t, server, http.MethodPost, "/knowledge", domain.FraudCase{
		Merchant:  "Medi-Global",
		Narrative: "Urgent transfer for medical supplies",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to seed case: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
		UserID:    "user-1",
		Amount:    500,
		Merchant:  "Medi-Global",
		Narrative: "Urgent transfer for medical supplies",
	})
	var scored ScoreResponse
	json.Unmarshal(rr.Body.Bytes(), &scored)
	if scored.Transaction.Status != domain.StatusPending {
		t.Fatalf("test setup expected PENDING, got %s", scored.Transaction.Status)
	}

	t.Run("Block", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions/"+scored.Transaction.ID+"/verdict", VerdictRequest{
			Verdict: domain.VerdictBlock,
			Notes:   "confirmed with cardholder",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var tx domain.Transaction
		json.Unmarshal(rr.Body.Bytes(), &tx)
		if tx.Status != domain.StatusBlocked {
			t.Errorf("expected BLOCKED, got %s", tx.Status)
		}

		// The block seeded a second knowledge base case.
		list := doJSON(t, server, http.MethodGet, "/knowledge", nil)
		var body struct {
			Count int `json:"count"`
		}
		json.Unmarshal(list.Body.Bytes(), &body)
		if body.Count != 2 {
			t.Errorf("expected 2 cases after block, got %d", body.Count)
		}
	})

	t.Run("UnknownVerdict", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions/"+scored.Transaction.ID+"/verdict", VerdictRequest{
			Verdict: domain.Verdict("MAYBE"),
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("MissingTransaction", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions/nope/verdict", VerdictRequest{
			Verdict: domain.VerdictAllow,
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestProfileEndpoint(t *testing.T) {
	server := createTestServer(t)

	doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
		UserID: "alice", Amount: 10, Merchant: "m", Narrative: "n",
	})
	doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
		UserID: "alice", Amount: 20, Merchant: "m", Narrative: "n",
	})

	rr := doJSON(t, server, http.MethodGet, "/profiles/alice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		UserID  string             `json:"userId"`
		Profile domain.UserProfile `json:"profile"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body.UserID != "alice" || len(body.Profile.History) != 2 || body.Profile.Mean != 15 {
		t.Errorf("unexpected profile: %+v", body)
	}
}

func TestFlagRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Create", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/flags", domain.FlagRule{
			ID:         "flag-crypto",
			Name:       "Crypto merchant",
			Expression: `merchant.contains("Crypto")`,
			Reason:     "Crypto exchange merchant",
			Enabled:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/flags", domain.FlagRule{
			ID:         "broken",
			Name:       "Broken",
			Expression: "((( nope",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/flags", domain.FlagRule{ID: "x"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/flags", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", body.Count)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/flags/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var body struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body.Count != 1 {
			t.Errorf("expected 1 rule after reload, got %d", body.Count)
		}
	})

	t.Run("FlagAffectsScoring", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/transactions", domain.RawTransaction{
			UserID:    "user-1",
			Amount:    5,
			Merchant:  "Unknown Crypto Ex",
			Narrative: "top-up",
		})
		var resp ScoreResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Transaction.Status != domain.StatusFlagged {
			t.Errorf("expected FLAGGED, got %s", resp.Transaction.Status)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", body["status"])
	}

	rr = doJSON(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
