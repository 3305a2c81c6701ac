package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment with an
// optional .env file for local development.
type Config struct {
	Environment string
	Port        string
	LogLevel    slog.Level

	// Database
	DatabaseURL string

	// Redis (optional; caching degrades gracefully when empty)
	RedisURL string

	// Kafka brokers for the event publisher (optional; falls back to the
	// in-process gochannel publisher when empty)
	KafkaBrokers []string

	// JWT verification for the identity-provider boundary
	JWTSecret string

	// Cron expression for the expired-attempt sweep; empty disables it
	SweepSchedule string
	SweepBatch    int
}

func LoadConfig() (*Config, error) {
	// Ignore missing .env; production passes real env vars
	_ = godotenv.Load()

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Port:          getEnv("PORT", "8080"),
		LogLevel:      parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),
		SweepBatch:    getEnvInt("SWEEP_BATCH", 100),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
