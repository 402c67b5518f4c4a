package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/flags"
	"github.com/opensource-finance/fraudlens/internal/pipeline"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service    *pipeline.Service
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	flagEngine *flags.Engine
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(service *pipeline.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, flagEngine *flags.Engine, version string) *Handler {
	return &Handler{
		service:    service,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		flagEngine: flagEngine,
		version:    version,
	}
}

// ScoreResponse is the response for POST /transactions.
type ScoreResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// ScoreTransaction handles POST /transactions: runs the full scoring
// pipeline synchronously and returns the scored transaction.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var raw domain.RawTransaction
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx, err := h.service.ScoreTransaction(ctx, raw)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) || errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("scoring failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	resp := ScoreResponse{Transaction: tx}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), txID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get transaction", "id", txID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListTransactions returns the most recently scored transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be between 1 and 500",
			})
			return
		}
		limit = parsed
	}

	transactions, err := h.repo.ListRecentTransactions(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// VerdictRequest is the request body for POST /transactions/{id}/verdict.
type VerdictRequest struct {
	Verdict domain.Verdict `json:"verdict"`
	Notes   string         `json:"notes,omitempty"`
}

// RecordVerdict applies an analyst decision to a transaction.
func (h *Handler) RecordVerdict(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	var req VerdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx, err := h.service.RecordVerdict(r.Context(), txID, req.Verdict, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
		case errors.Is(err, domain.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		default:
			slog.Error("failed to record verdict", "id", txID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to record verdict",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListKnowledge returns the knowledge base contents.
func (h *Handler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	cases := h.service.KnowledgeBase().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// ImportKnowledge seeds the knowledge base with an external case.
func (h *Handler) ImportKnowledge(w http.ResponseWriter, r *http.Request) {
	var c domain.FraudCase
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	created, err := h.service.ImportCase(r.Context(), &c)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to import case", "error", err)
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetProfile returns a user's spending baseline and velocity count.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id is required",
		})
		return
	}

	profile, velocityCount := h.service.UserProfile(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":        userID,
		"profile":       profile,
		"velocityCount": velocityCount,
	})
}

// ListFlagRules returns the flag rules currently loaded in the engine.
func (h *Handler) ListFlagRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.flagEngine.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateFlagRule validates, loads and persists a flag rule.
func (h *Handler) CreateFlagRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.FlagRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	// Validate the CEL expression by attempting to load
	if rule.Enabled {
		if err := h.flagEngine.LoadRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	} else if err := h.flagEngine.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveFlagRule(ctx, &rule); err != nil {
		slog.Error("failed to save flag rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save flag rule",
		})
		return
	}

	slog.Info("flag rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadFlagRules reloads all flag rules from the database into the engine.
func (h *Handler) ReloadFlagRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListFlagRules(ctx)
	if err != nil {
		slog.Error("failed to list flag rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load flag rules from database",
		})
		return
	}

	if err := h.flagEngine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload flag rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload flag rules: " + err.Error(),
		})
		return
	}

	slog.Info("flag rules reloaded from database", "count", h.flagEngine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "flag rules reloaded successfully",
		"count":   h.flagEngine.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
