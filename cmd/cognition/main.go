// Cognition engine server — ingests telemetry, runs reasoning cycles,
// and serves the cycle, audit, and query API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/coglab/cognition-engine/pkg/agents"
	baselineagent "github.com/coglab/cognition-engine/pkg/agents/baseline"
	"github.com/coglab/cognition-engine/pkg/agents/causal"
	"github.com/coglab/cognition-engine/pkg/agents/code"
	"github.com/coglab/cognition-engine/pkg/agents/compliance"
	"github.com/coglab/cognition-engine/pkg/agents/forecast"
	"github.com/coglab/cognition-engine/pkg/agents/resource"
	"github.com/coglab/cognition-engine/pkg/agents/workflow"
	"github.com/coglab/cognition-engine/pkg/api"
	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/coordinator"
	"github.com/coglab/cognition-engine/pkg/database"
	"github.com/coglab/cognition-engine/pkg/events"
	"github.com/coglab/cognition-engine/pkg/ingestion"
	"github.com/coglab/cognition-engine/pkg/masking"
	"github.com/coglab/cognition-engine/pkg/query"
	"github.com/coglab/cognition-engine/pkg/scoring"
	"github.com/coglab/cognition-engine/pkg/store"
)

// baselineSnapshotInterval bounds how much baseline learning a crash can
// lose.
const baselineSnapshotInterval = 5 * time.Minute

// artifactReplayDepth is how many sealed cycles are re-registered at boot
// so prior-cycle artifact evidence keeps resolving.
const artifactReplayDepth = 50

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Info("no .env file loaded; continuing with process environment", "path", envPath)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// Store backing: PostgreSQL by default, in-memory when explicitly
	// requested (demos, local runs without a database).
	var (
		st       store.Store
		dbClient *database.Client
	)
	if getEnv("STORE_BACKEND", "postgres") == "memory" {
		st = store.NewMemory()
		slog.Warn("running on the in-memory store; nothing survives a restart")
	} else {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("failed to load database config", "error", err)
			os.Exit(1)
		}
		dbConfig = dbConfig.ApplyPoolOverrides(
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime)

		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("error closing database client", "error", err)
			}
		}()

		if err := database.CreateGINIndexes(ctx, dbClient.DB().DB); err != nil {
			slog.Warn("failed to create metadata indexes; continuing", "error", err)
		}

		pg, err := store.NewPostgres(ctx, dbClient)
		if err != nil {
			slog.Error("failed to build observation store", "error", err)
			os.Exit(1)
		}
		st = pg
	}

	// Recovery: release idempotency reservations whose append never
	// landed, before ingestion accepts traffic.
	released, err := st.Sweep(ctx)
	if err != nil {
		slog.Error("idempotency recovery sweep failed", "error", err)
		os.Exit(1)
	}
	if released > 0 {
		slog.Info("released orphaned idempotency reservations", "count", released)
	}

	board := blackboard.New(st, st)
	if err := board.LoadArtifacts(ctx, artifactReplayDepth); err != nil {
		slog.Error("failed to replay sealed-cycle artifacts", "error", err)
		os.Exit(1)
	}

	masker := masking.New()
	pipeline := ingestion.New(cfg, st, st, st, masker)

	baseline := baselineagent.New(cfg.Baseline)
	profiles, err := st.LoadBaselines(ctx)
	if err != nil {
		slog.Error("failed to load baseline snapshots", "error", err)
		os.Exit(1)
	}
	baseline.Restore(profiles)

	phase1 := []agents.Agent{
		workflow.New(),
		resource.New(cfg.Resource),
		compliance.New(cfg.Policies),
		baseline,
		code.New(),
	}

	connManager := events.NewConnectionManager()
	publisher := events.NewPublisher(connManager)

	coord := coordinator.New(
		cfg,
		st,
		board,
		phase1,
		forecast.New(),
		causal.New(cfg.Phase.CausalWindowSeconds),
		scoring.NewSeverityEngine(),
		scoring.NewRecommendationEngine(cfg),
		scoring.NewRiskIndexTracker(cfg.RiskWeights),
		publisher,
	)

	if cfg.Phase.TickInterval > 0 {
		scheduler := coordinator.NewScheduler(coord, cfg.Phase.TickInterval)
		if err := scheduler.Start(ctx); err != nil {
			slog.Error("failed to start cycle scheduler", "error", err)
			os.Exit(1)
		}
		defer scheduler.Stop()
	}

	// Periodic baseline snapshots, plus one on shutdown.
	snapshotDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(baselineSnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := st.SaveBaselines(ctx, baseline.Snapshot()); err != nil {
					slog.Error("failed to persist baseline snapshot", "error", err)
				}
			case <-snapshotDone:
				return
			}
		}
	}()

	queryEngine := query.New(st)
	server := api.NewServer(cfg, dbClient, pipeline, coord, board, queryEngine, connManager)

	addr := ":" + getEnv("HTTP_PORT", cfg.HTTP.Port)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down")

	close(snapshotDone)
	if err := st.SaveBaselines(ctx, baseline.Snapshot()); err != nil {
		slog.Error("failed to persist final baseline snapshot", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
}
