package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/syncbridge/syncbridge/internal/adapter/entitycache"
	sbhttp "github.com/syncbridge/syncbridge/internal/adapter/http"
	sbnats "github.com/syncbridge/syncbridge/internal/adapter/nats"
	"github.com/syncbridge/syncbridge/internal/adapter/otel"
	"github.com/syncbridge/syncbridge/internal/adapter/postgres"
	"github.com/syncbridge/syncbridge/internal/adapter/tracker"
	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/logger"
	"github.com/syncbridge/syncbridge/internal/port/database"
	"github.com/syncbridge/syncbridge/internal/port/reconciler"
	"github.com/syncbridge/syncbridge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"workers", cfg.Engine.Workers,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// The engine and ingest always see the uncached store: a stale cached
	// status on the worker path makes claims fail and delays reconciliation.
	// Only the HTTP read surface goes through the cache.
	var store database.Store = postgres.NewStore(pool)
	readStore := store
	if cfg.Cache.Enabled {
		cached, err := entitycache.New(store, cfg.Cache.MaxCostBytes, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("entity cache: %w", err)
		}
		defer cached.Close()
		readStore = cached
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.InitMeter(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// --- Strategies ---

	registry := reconciler.NewRegistry()
	trackerClient := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.Token)
	trackerClient.SetConcurrencyLimit(cfg.Tracker.MaxConcurrent)
	tracker.Register(registry, trackerClient)

	var resolver entity.Resolver
	if cfg.Engine.Resolver == "last_writer_wins" {
		resolver = entity.LastWriterWins()
	}

	// --- Engine ---

	engine := service.NewEngineService(store, registry, resolver, cfg.Engine)

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	engine.SetMetrics(metrics)
	if err := otel.RegisterQueueDepth(engine.QueueDepth); err != nil {
		return fmt.Errorf("queue depth gauge: %w", err)
	}

	ingest := service.NewIngestService(store, engine, cfg.Engine)

	if cfg.NATS.Enabled {
		queue, err := sbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		engine.SetEvents(queue)

		cancelChanges, err := ingest.StartChangeSubscriber(ctx, queue)
		if err != nil {
			return fmt.Errorf("change subscriber: %w", err)
		}
		defer cancelChanges()
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Stop()

	// --- HTTP ---

	handlers := &sbhttp.Handlers{
		Engine: engine,
		Ingest: ingest,
		Store:  readStore,
	}

	r := chi.NewRouter()
	r.Use(sbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sbhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(engine))

	sbhttp.MountRoutes(r, handlers, cfg.Webhook)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports service health and current queue depth.
func healthHandler(engine *service.EngineService) http.HandlerFunc {
	type healthStatus struct {
		Status     string `json:"status"`
		QueueDepth int    `json:"queue_depth"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:     "ok",
			QueueDepth: engine.QueueDepth(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
