package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// Config holds every tunable named in the engine's environment surface.
type Config struct {
	DatabaseURL string

	ScannerParallelism int

	ThumbnailParallelism  int
	MetadataParallelism   int
	SimilarityParallelism int

	JobProgressReportIntervalMs int

	IngestionBatchSize       int
	IngestionChannelCapacity int

	ThumbnailRootPath string

	HammingThreshold int
}

// Load reads the engine configuration from the environment, applying the
// defaults from spec.md §6.
func Load() Config {
	cpus := runtime.NumCPU()

	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		ScannerParallelism: getEnvInt("SCANNER_PARALLELISM", cpus),

		ThumbnailParallelism:  getEnvInt("PROCESSING_THUMBNAIL_PARALLELISM", cpus),
		MetadataParallelism:   getEnvInt("PROCESSING_METADATA_PARALLELISM", cpus),
		SimilarityParallelism: getEnvInt("PROCESSING_SIMILARITY_PARALLELISM", cpus),

		JobProgressReportIntervalMs: getEnvInt("PROCESSING_JOB_PROGRESS_REPORT_INTERVAL_MS", 250),

		IngestionBatchSize:       maxInt(getEnvInt("INGESTION_BATCH_SIZE", 50), 1),
		IngestionChannelCapacity: maxInt(getEnvInt("INGESTION_CHANNEL_CAPACITY", 500), 10),

		ThumbnailRootPath: getEnvString("STORAGE_THUMBNAIL_PATH", "./data/thumbnails"),

		HammingThreshold: getEnvInt("PERCEPTUAL_SIMILARITY_HAMMING_THRESHOLD", 31),
	}
}

// JobProgressReportInterval is the coalescing interval for JobReporter updates.
func (c Config) JobProgressReportInterval() time.Duration {
	return time.Duration(c.JobProgressReportIntervalMs) * time.Millisecond
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid integer for %s=%q, using default %d", key, raw, defaultValue)
		return defaultValue
	}
	return parsed
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
