// Package main provides the handover API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/aggregator"
	"github.com/praxisgate/go-handover/internal/api/handlers"
	"github.com/praxisgate/go-handover/internal/api/middleware"
	"github.com/praxisgate/go-handover/internal/cache"
	"github.com/praxisgate/go-handover/internal/config"
	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/exchange"
	"github.com/praxisgate/go-handover/internal/llm"
	"github.com/praxisgate/go-handover/internal/observability/metrics"
	"github.com/praxisgate/go-handover/internal/observability/tracing"
	"github.com/praxisgate/go-handover/internal/prompt"
	"github.com/praxisgate/go-handover/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (no-op without an OTLP endpoint).
	tracerProvider, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "handover-api",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
	})
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer tracerProvider.Shutdown(context.Background())
	}

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	m := metrics.New()

	// Assemble the generation pipeline.
	repo := patient.NewRepository(pool, logger)
	agg := aggregator.New(repo, aggregator.DefaultConfig(), m, logger)
	formatter := prompt.NewFormatter(prompt.DefaultTables())
	summaryCache := cache.New(logger)

	model := llm.NewClient(llm.Config{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
	}, m, logger)
	if !model.Configured() {
		logger.Warn("OPENAI_API_KEY not set, summaries will be error-shaped")
	}

	orchestrator, err := service.New(service.Deps{
		Store:      repo,
		Aggregator: agg,
		Formatter:  formatter,
		Model:      model,
		Cache:      summaryCache,
		Pool:       pool,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("orchestrator init failed", zap.Error(err))
	}
	defer orchestrator.Close()

	// Exchange-file watching.
	current := exchange.NewCurrentStore()
	inbox := exchange.NewFileInbox(pool, logger)
	fileHandler := exchange.NewHandler(current, inbox, orchestrator, pool, m, logger)

	if err := os.MkdirAll(cfg.WatchFolder, 0o755); err != nil {
		logger.Fatal("cannot create watch folder", zap.Error(err))
	}
	watcherCfg := exchange.DefaultWatcherConfig(cfg.WatchFolder)
	watcherCfg.FileName = cfg.WatchFile
	watcher, err := exchange.NewWatcher(watcherCfg, fileHandler, logger)
	if err != nil {
		logger.Fatal("watcher init failed", zap.Error(err))
	}
	watcher.Start(ctx)

	// Warm the cache once startup settles.
	if cfg.WarmUpOnStart {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.WarmUpDelay):
				orchestrator.WarmUp(ctx)
			}
		}()
	}

	// Initialize handlers
	summaryHandler := handlers.NewSummaryHandler(orchestrator, logger)
	exchangeHandler := handlers.NewExchangeHandler(current, orchestrator, cfg.WatchFolder, cfg.WatchFile, logger)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("handover-api"))

	// Health check (no auth)
	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	// API routes (with auth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Mount("/patients", summaryHandler.Routes())
		r.Mount("/current-patient", exchangeHandler.Routes())
		r.Post("/simulator/exchange-file", exchangeHandler.Simulate)
		r.Delete("/cache", exchangeHandler.ClearCache)
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls run inline on regenerate
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting handover API",
		zap.String("port", cfg.Port),
		zap.String("watch_folder", cfg.WatchFolder))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	<-watcher.Done()
	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"handover-api","version":"1.0.0"}`)
}
