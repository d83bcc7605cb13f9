// Kestrel - MEV risk scoring for pending transactions.
// Copyright (c) 2025 opensource-web3
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-web3/kestrel/internal/api"
	"github.com/opensource-web3/kestrel/internal/bus"
	"github.com/opensource-web3/kestrel/internal/cache"
	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/pipeline"
	"github.com/opensource-web3/kestrel/internal/repository"
	"github.com/opensource-web3/kestrel/internal/rules"
	"github.com/opensource-web3/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Tier selection via environment
	switch os.Getenv("KESTREL_TIER") {
	case "pro":
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	case "enterprise":
		cfg = domain.EnterpriseConfig()
		slog.Info("running in Enterprise tier mode")
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

	// Initialize the protection override engine
	overrides, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize override engine", "error", err)
		os.Exit(1)
	}
	if err := loadOverridesFromDatabase(ctx, repo, overrides); err != nil {
		slog.Error("failed to load override rules", "error", err)
		os.Exit(1)
	}
	slog.Info("override engine initialized", "rules_count", overrides.Count())

	// Initialize the scoring engine and load the newest trained model.
	// Without an artifact the server still starts; scoring returns 503
	// until one is trained and loaded via POST /model/reload.
	engine := pipeline.NewEngine(cfg.Scoring, logger)
	if err := loadModelFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load model artifact", "error", err)
		os.Exit(1)
	}

	// Initialize async Worker (Pro and Enterprise tiers)
	var asyncWorker *worker.Worker
	if cfg.Tier != domain.TierCommunity || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine, overrides)

		// Chains to consume, comma-separated (empty = the global dev stream)
		var chainIDs []string
		if envChains := os.Getenv("KESTREL_CHAINS"); envChains != "" {
			for _, c := range strings.Split(envChains, ",") {
				if c = strings.TrimSpace(c); c != "" {
					chainIDs = append(chainIDs, c)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{ChainIDs: chainIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "chain_count", len(chainIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, overrides, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", engine.Ready(),
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

	slog.Info("kestrel shutdown complete")
}

// loadOverridesFromDatabase seeds the builtin rules on first boot, then loads
// every stored rule into the engine. Operators manage the set afterwards via
// the /overrides API.
func loadOverridesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	for _, rule := range rules.BuiltinRules() {
		_, err := repo.GetOverride(ctx, "", rule.ID)
		if errors.Is(err, repository.ErrNotFound) {
			if err := repo.SaveOverride(ctx, "", rule); err != nil {
				return fmt.Errorf("seed builtin rule %s: %w", rule.ID, err)
			}
			slog.Info("seeded builtin override rule", "id", rule.ID)
		} else if err != nil {
			return err
		}
	}

	// An empty chain filter lists every rule, global and chain-scoped
	stored, err := repo.ListOverrides(ctx, "")
	if err != nil {
		slog.Warn("failed to list override rules, using builtins", "error", err)
		return engine.LoadAll(rules.BuiltinRules())
	}
	return engine.LoadAll(stored)
}

// loadModelFromDatabase loads the newest stored artifact into the scoring
// engine. A missing artifact is not fatal.
func loadModelFromDatabase(ctx context.Context, repo domain.Repository, engine *pipeline.Engine) error {
	art, err := repo.LatestArtifact(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Warn("no model artifact in database - train one with kestrel-train, then POST /model/reload")
		return nil
	}
	if err != nil {
		return err
	}

	if err := engine.Load(art); err != nil {
		return err
	}
	slog.Info("model loaded", "version", art.Version, "created_at", art.CreatedAt)
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║        MEV Risk Scoring Engine            ║")
	fmt.Println("  ║    Spot the attack before the block.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score             - Score a pending transaction")
	fmt.Println("    POST /score/batch       - Score a batch of transactions")
	fmt.Println("    GET  /assessments/{id}  - Get assessment by ID")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /model             - Active model metadata")
	fmt.Println("    POST /model/reload      - Load the newest trained model")
	fmt.Println("    GET  /stats             - Chain scoring statistics")
	fmt.Println("    GET  /overrides         - List protection override rules")
	fmt.Println("    POST /overrides         - Create an override rule")
	fmt.Println("    DELETE /overrides/{id}  - Disable an override rule")
	fmt.Println("    POST /overrides/reload  - Hot-reload rules from database")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
