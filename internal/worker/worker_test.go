package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/cache"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/knowledge"
	"github.com/opensource-finance/fraudlens/internal/pipeline"
	"github.com/opensource-finance/fraudlens/internal/repository"
	"github.com/opensource-finance/fraudlens/internal/signature"
	"github.com/opensource-finance/fraudlens/internal/stats"
	"github.com/opensource-finance/fraudlens/internal/velocity"
)

func newTestService(t *testing.T, eventBus domain.EventBus) *pipeline.Service {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "fraudlens-worker-*.db")
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

	scoringCfg := domain.ScoringConfig{
		HistorySize:        50,
		VelocityWindowSecs: 3600,
		VelocityThreshold:  20,
	}
	lru := cache.NewLRUCache(1000)
	logger := slog.New(slog.DiscardHandler)

	return pipeline.NewService(pipeline.Options{
		Repository: repo,
		Cache:      lru,
		EventBus:   eventBus,
		Tracker:    stats.NewTracker(scoringCfg),
		Velocity:   velocity.NewTracker(lru, repo, scoringCfg, logger),
		Matcher:    signature.NewMatcher(),
		Knowledge:  knowledge.NewBase(),
		Logger:     logger,
	})
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	service := newTestService(t, eventBus)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, service)

		if err := w.Start(Config{WorkerCount: 2}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicTransactionIngested {
			t.Errorf("unexpected topics: %v", stats.Topics)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessTransaction", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		w.Start(Config{WorkerCount: 2})
		defer w.Stop()

		var scoredReceived atomic.Bool
		var scoredPayload atomic.Pointer[[]byte]

		eventBus.Subscribe(context.Background(), domain.TopicTransactionScored, func(ctx context.Context, msg *domain.Message) error {
			payload := msg.Payload
			scoredPayload.Store(&payload)
			scoredReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		raw := domain.RawTransaction{
			UserID:    "user-async",
			Amount:    25.0,
			Merchant:  "Local Grocery",
			Narrative: "weekly shop",
		}
		payload, _ := json.Marshal(raw)
		if err := eventBus.Publish(context.Background(), domain.TopicTransactionIngested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(200 * time.Millisecond)

		if !scoredReceived.Load() {
			t.Fatal("expected scored event to be published")
		}

		var tx domain.Transaction
		if err := json.Unmarshal(*scoredPayload.Load(), &tx); err != nil {
			t.Fatalf("failed to parse scored event: %v", err)
		}
		if tx.UserID != "user-async" {
			t.Errorf("expected userID 'user-async', got '%s'", tx.UserID)
		}
		if tx.RiskLevel != domain.RiskLow {
			t.Errorf("expected LOW risk for baseline transaction, got %s", tx.RiskLevel)
		}
	})

	t.Run("MalformedPayloadIgnored", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		w.Start(Config{WorkerCount: 1})
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		eventBus.Publish(context.Background(), domain.TopicTransactionIngested, []byte("not-json"))

		// The worker logs and drops the message without crashing.
		time.Sleep(100 * time.Millisecond)

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected worker to stay subscribed, got %d subscriptions", stats.SubscriptionCount)
		}
	})
}
