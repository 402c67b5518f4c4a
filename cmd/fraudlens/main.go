// FraudLens - Transaction fraud scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudlens/internal/analysis"
	"github.com/opensource-finance/fraudlens/internal/api"
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
	"github.com/opensource-finance/fraudlens/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FRAUDLENS_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting fraudlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FRAUDLENS_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize the behavioral baseline tracker and velocity tracker
	tracker := stats.NewTracker(cfg.Scoring)
	velocityTracker := velocity.NewTracker(cacheImpl, repo, cfg.Scoring, logger)

	// Initialize the knowledge base, warmed from persisted fraud cases
	kb := knowledge.NewBase()
	if err := warmKnowledgeBase(ctx, repo, kb); err != nil {
		slog.Error("failed to warm knowledge base", "error", err)
		os.Exit(1)
	}
	slog.Info("knowledge base initialized", "cases", kb.Size())

	// Initialize the advisory flag engine
	flagEngine, err := flags.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize flag engine", "error", err)
		os.Exit(1)
	}

	// Load flag rules from database (no hardcoded defaults - configure via API)
	if err := loadFlagRulesFromDatabase(ctx, repo, flagEngine); err != nil {
		slog.Error("failed to load flag rules", "error", err)
		os.Exit(1)
	}
	slog.Info("flag engine initialized", "rules_count", flagEngine.RulesCount())

	// Select the deep-analysis backend
	var analyzer domain.Analyzer
	if endpoint := os.Getenv("FRAUDLENS_ANALYZER_URL"); endpoint != "" {
		analyzer = analysis.NewHTTPAnalyzer(endpoint, 20*time.Second)
		slog.Info("analyzer initialized", "backend", "http", "endpoint", endpoint)
	} else {
		analyzer = analysis.Heuristic()
		slog.Info("analyzer initialized", "backend", "heuristic")
	}

	// Initialize the scoring pipeline
	service := pipeline.NewService(pipeline.Options{
		Repository: repo,
		Cache:      cacheImpl,
		EventBus:   busImpl,
		Tracker:    tracker,
		Velocity:   velocityTracker,
		Matcher:    signature.NewMatcher(),
		Knowledge:  kb,
		Flags:      flagEngine,
		Analyzer:   analyzer,
		Logger:     logger,
	})
	slog.Info("scoring pipeline initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("FRAUDLENS_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)

		if err := asyncWorker.Start(worker.Config{WorkerCount: 5}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, repo, cacheImpl, busImpl, flagEngine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudlens is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudlens shutdown complete")
}

// warmKnowledgeBase loads persisted fraud cases into the in-memory base.
func warmKnowledgeBase(ctx context.Context, repo domain.Repository, kb *knowledge.Base) error {
	cases, err := repo.ListFraudCases(ctx)
	if err != nil {
		slog.Warn("failed to list fraud cases from database", "error", err)
		return nil // Start with an empty base - cases can be imported via API
	}

	if len(cases) > 0 {
		loaded := kb.Load(cases)
		slog.Info("loaded fraud cases from database", "count", loaded)
		return nil
	}

	slog.Info("no fraud cases in database - seed via POST /knowledge")
	return nil
}

// loadFlagRulesFromDatabase loads flag rules from the database into the engine.
// All rules must be configured via POST /flags API - no hardcoded defaults.
func loadFlagRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *flags.Engine) error {
	dbRules, err := repo.ListFlagRules(ctx)
	if err != nil {
		slog.Warn("failed to list flag rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading flag rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no flag rules in database - configure via POST /flags API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              🔍 FRAUDLENS                 ║")
	fmt.Println("  ║     Transaction Fraud Scoring Engine      ║")
	fmt.Println("  ║      Every transaction, in focus.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions              - Score a transaction")
	fmt.Println("    GET  /transactions              - List recent transactions")
	fmt.Println("    GET  /transactions/{id}         - Get transaction by ID")
	fmt.Println("    POST /transactions/{id}/verdict - Record an analyst verdict")
	fmt.Println("    GET  /knowledge                 - List known fraud cases")
	fmt.Println("    POST /knowledge                 - Import a fraud case")
	fmt.Println("    GET  /profiles/{userId}         - Get a user's baseline")
	fmt.Println("    GET  /flags                     - List advisory flag rules")
	fmt.Println("    POST /flags                     - Create a flag rule")
	fmt.Println("    POST /flags/reload              - Hot-reload flag rules")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
