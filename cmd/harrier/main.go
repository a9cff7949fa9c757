// Harrier - Credit risk scoring from the bank statement up.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/velocity"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"blend_mode", cfg.Scoring.BlendMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo, cacheImpl)

	policies, err := policy.NewEngine(cfg.Scoring.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}
	defer policies.Close()

	scoringEngine, err := engine.New(cfg.Scoring, engine.Options{
		Policies: policies,
		Velocity: velocitySvc.ApplicationCount,
	})
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}

	p := pipeline.New(scoringEngine, repo, cacheImpl, busImpl, cfg.Cache.AssessmentTTL)

	// Policies are configured via POST /policies; a failed load starts with none.
	if n, err := p.ReloadPolicies(ctx); err != nil {
		slog.Warn("failed to load policies from database", "error", err)
	} else if n == 0 {
		slog.Info("no policies in database - configure via POST /policies API")
	} else {
		slog.Info("policy engine initialized", "policies_count", n)
	}

	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, p)

		var tenantIDs []string
		for _, id := range strings.Split(os.Getenv("HARRIER_TENANTS"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				tenantIDs = append(tenantIDs, id)
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	srv := api.NewServer(cfg.Server, p, repo, busImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop consuming before the server so queued requests are not half-served.
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

	slog.Info("harrier shutdown complete")
}

// loadConfig starts from the tier defaults and applies HARRIER_* overrides.
func loadConfig() (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
	}

	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("HARRIER_PORT must be a valid port, got %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("HARRIER_OUTLIER_CEILING"); v != "" {
		ceiling, err := decimal.NewFromString(v)
		if err != nil || !ceiling.IsPositive() {
			return nil, fmt.Errorf("HARRIER_OUTLIER_CEILING must be a positive amount, got %q", v)
		}
		cfg.Scoring.OutlierCeiling = ceiling
	}
	return cfg, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  HARRIER - credit risk scoring engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /assess                        - Score an application")
	fmt.Println("    POST   /assess/async                  - Queue an application for the worker")
	fmt.Println("    GET    /assessments/{id}              - Get assessment by ID")
	fmt.Println("    GET    /applicants/{id}/assessments   - Applicant history")
	fmt.Println("    GET    /tiers                         - Risk tier catalogue")
	fmt.Println("    GET    /sections                      - Section signal registry")
	fmt.Println("    GET    /policies                      - List loaded policies")
	fmt.Println("    POST   /policies                      - Create a policy")
	fmt.Println("    DELETE /policies/{id}                 - Disable a policy")
	fmt.Println("    POST   /policies/reload               - Hot-reload policies from database")
	fmt.Println("    GET    /health                        - Health check")
	fmt.Println()
}
