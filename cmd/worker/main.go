package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omarcastero/receiptscan-backend/internal/extraction"
	extractionconsumer "github.com/omarcastero/receiptscan-backend/internal/extraction/consumer"
	"github.com/omarcastero/receiptscan-backend/internal/filecleanup"
	"github.com/omarcastero/receiptscan-backend/internal/ledger"
	"github.com/omarcastero/receiptscan-backend/internal/receipts"
	"github.com/omarcastero/receiptscan-backend/pkg/config"
	"github.com/omarcastero/receiptscan-backend/pkg/db"
	"github.com/omarcastero/receiptscan-backend/pkg/gemini"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/metrics"
	"github.com/omarcastero/receiptscan-backend/pkg/migrate"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/idempotency"
	"github.com/omarcastero/receiptscan-backend/pkg/pubsub"
	"github.com/omarcastero/receiptscan-backend/pkg/redis"
	"github.com/omarcastero/receiptscan-backend/pkg/storage/gcs"
)

const eventDedupeTTL = 24 * time.Hour

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer gcsClient.Close()

	geminiClient, err := gemini.NewClient(cfg.Gemini)
	requireResource(ctx, logg, "gemini", err)

	receiptRepo := receipts.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "ledger service", err)

	extractionStats := metrics.NewExtractionMetrics(prometheus.DefaultRegisterer)
	extractionService, err := extraction.NewService(
		receiptRepo,
		gcsClient,
		geminiClient,
		ledgerService,
		logg,
		extractionStats,
		cfg.GCS.BucketName,
		cfg.Gemini.MaxAttempts,
		cfg.Gemini.RequestTimeout,
	)
	requireResource(ctx, logg, "extraction service", err)

	dedupe, err := idempotency.NewManager(redisClient, eventDedupeTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	extractionWorker, err := extractionconsumer.NewConsumer(
		extractionService,
		dedupe,
		pubsubClient.ReceiptsSubscription(),
		logg,
	)
	requireResource(ctx, logg, "extraction consumer", err)

	cleanupWorker, err := filecleanup.NewConsumer(
		gcsClient,
		pubsubClient.FileCleanupSubscription(),
		logg,
		cfg.GCS.BucketName,
	)
	requireResource(ctx, logg, "file cleanup consumer", err)

	service, err := NewService(ServiceParams{
		Config:              cfg,
		Logger:              logg,
		DB:                  dbClient,
		Redis:               redisClient,
		PubSub:              pubsubClient,
		GCS:                 gcsClient,
		ExtractionConsumer:  extractionWorker,
		FileCleanupConsumer: cleanupWorker,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(runCtx, "starting extraction worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
