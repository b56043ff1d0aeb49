// Command indexer is the engine's process entry point: it wires the
// catalog store, ingestion pipeline, library sync processor, duplicate
// detector, job service, and scheduler together and runs until signalled.
// There is no HTTP server here; the operations in spec.md §6 are exposed by
// whatever transport embeds internal/services.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/config"
	"github.com/maukemana/library-indexer/internal/duplicate"
	"github.com/maukemana/library-indexer/internal/ingestion"
	"github.com/maukemana/library-indexer/internal/jobs"
	"github.com/maukemana/library-indexer/internal/jobs/builtin"
	"github.com/maukemana/library-indexer/internal/librarysync"
	"github.com/maukemana/library-indexer/internal/logger"
	"github.com/maukemana/library-indexer/internal/mediabackend"
	"github.com/maukemana/library-indexer/internal/observability"
	"github.com/maukemana/library-indexer/internal/scheduler"
)

func main() {
	env := getEnv("NODE_ENV", "development")
	logger.Init("library-indexer", env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "library-indexer")
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry", "error", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				slog.Error("error shutting down OpenTelemetry", "error", err)
			}
		}()
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	store, err := catalog.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to catalog database: %v", err)
	}
	defer store.Close()
	slog.Info("connected to catalog database")

	if err := os.MkdirAll(cfg.ThumbnailRootPath, 0o755); err != nil {
		log.Fatalf("failed to create thumbnail root %q: %v", cfg.ThumbnailRootPath, err)
	}

	backend := mediabackend.New()

	pipeline := ingestion.New(store, cfg.IngestionChannelCapacity, cfg.IngestionBatchSize)
	defer pipeline.Close()

	syncProcessor := librarysync.New(store, pipeline, backend, cfg.ScannerParallelism)
	detector := duplicate.New(store, cfg.HammingThreshold)

	jobService := jobs.NewService(store, cfg.JobProgressReportInterval())
	jobService.Register(builtin.NewLibrarySyncJob(store, syncProcessor))
	jobService.Register(builtin.NewMetadataJob(store, backend, cfg.MetadataParallelism))
	jobService.Register(builtin.NewThumbnailJob(store, backend, cfg.ThumbnailRootPath, cfg.ThumbnailParallelism))
	jobService.Register(builtin.NewPerceptualHashJob(store, backend, cfg.SimilarityParallelism))
	jobService.Register(builtin.NewThumbnailCleanupJob(store, cfg.ThumbnailRootPath))
	jobService.Register(builtin.NewDuplicateDetectionJob(detector))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := jobService.RecoverFromRestart(ctx); err != nil {
		slog.Error("failed to recover job executions after restart", "error", err)
	}

	sched := scheduler.New(store, jobService)
	if err := sched.SeedDefaults(ctx); err != nil {
		slog.Error("failed to seed default schedules", "error", err)
	}

	go sched.Run(ctx)

	slog.Info("indexer running",
		"scanner_parallelism", cfg.ScannerParallelism,
		"thumbnail_root", cfg.ThumbnailRootPath,
		"hamming_threshold", cfg.HammingThreshold,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := pipeline.Flush(shutdownCtx); err != nil {
		slog.Error("pipeline flush during shutdown failed", "error", err)
	}

	slog.Info("shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
