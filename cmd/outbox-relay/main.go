// Package main provides the outbox relay service entry point. It
// drains the transactional outbox into the Redpanda event streams and
// periodically parks poison entries on the dead-letter topic.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/config"
	"github.com/praxisgate/go-handover/internal/infrastructure/postgres"
	"github.com/praxisgate/go-handover/internal/infrastructure/redpanda"
	"github.com/praxisgate/go-handover/internal/observability/metrics"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	logger.Info("connected to database")

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	// Make sure the event topics exist before publishing into them.
	if admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger); err == nil {
		if err := admin.EnsureTopics(context.Background()); err != nil {
			logger.Warn("topic creation failed", zap.Error(err))
		}
		admin.Close()
	} else {
		logger.Warn("admin client unavailable", zap.Error(err))
	}

	m := metrics.New()
	outbox := postgres.NewOutbox(pool, producer, postgres.DefaultOutboxConfig(), m, logger)
	outbox.Start()
	logger.Info("outbox relay started")

	// Housekeeping: park poison entries and trim old processed rows.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if moved, err := outbox.MoveToDeadLetter(ctx, redpanda.TopicDeadLetter); err == nil && moved > 0 {
					logger.Warn("entries parked on dead letter", zap.Int64("count", moved))
				}
				if _, err := outbox.CleanupProcessed(ctx, 7*24*time.Hour); err != nil {
					logger.Warn("outbox cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	outbox.Stop()
	logger.Info("outbox relay stopped")
}
