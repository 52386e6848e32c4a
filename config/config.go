package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Auth
	AdminAPIKey string // seeded when RUN_SEED=true

	// Logging
	LogLevel  string // default: info
	LogFormat string // "json" or "console", default: json

	// Observability
	OTELExporterType     string  // "stdout", "otlp" or "none"
	OTELExporterEndpoint string  // default: "localhost:4317"
	OTELSampleRatio      float64 // fraction of root traces kept, default: 1

	// Rate Limiting
	WriteRateLimitPerMinute int64 // writes per API key per minute, default: 60

	// Startup
	RunMigrations bool
	RunSeed       bool
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		AdminAPIKey:          os.Getenv("ADMIN_API_KEY"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		RunMigrations:        os.Getenv("RUN_MIGRATIONS") == "true",
		RunSeed:              os.Getenv("RUN_SEED") == "true",
	}

	// Rate Limiting Default
	limitStr := getEnv("WRITE_RATE_LIMIT_PER_MINUTE", "60")
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("WRITE_RATE_LIMIT_PER_MINUTE must be positive, got %d", limit)
	}
	cfg.WriteRateLimitPerMinute = limit

	ratioStr := getEnv("OTEL_TRACES_SAMPLE_RATIO", "1")
	ratio, err := strconv.ParseFloat(ratioStr, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLE_RATIO %q: must be between 0 and 1", ratioStr)
	}
	cfg.OTELSampleRatio = ratio

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	switch cfg.OTELExporterType {
	case "stdout", "otlp", "none":
	default:
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_TYPE %q", cfg.OTELExporterType)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
