// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Feature store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Feature store
	StoreBackend string // "postgres", "sqlite" or "memory"
	DatabaseURL  string // PostgreSQL connection string
	DBSchema     string // optional PostgreSQL schema qualifier
	SQLitePath   string // path to the SQLite database file
	StoreTimeout time.Duration

	// Model artifacts
	ModelsDir string

	// Scoring
	ScoreConcurrency int

	// Security
	RateLimitRPS int
	AdminSecret  string // guards the admin API

	// Tracing
	OTLPEndpoint string // OTLP gRPC collector address (optional)
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultStoreBackend     = BackendPostgres
	DefaultSQLitePath       = "data/cris.db"
	DefaultModelsDir        = "models"
	DefaultScoreConcurrency = 8
	DefaultStoreTimeout     = 10 * time.Second
	DefaultRateLimit        = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		StoreBackend:     getEnv("STORE_BACKEND", DefaultStoreBackend),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBSchema:         os.Getenv("DB_SCHEMA"), // Optional, falls back to search path
		SQLitePath:       getEnv("SQLITE_PATH", DefaultSQLitePath),
		StoreTimeout:     getEnvSeconds("STORE_TIMEOUT_SECONDS", DefaultStoreTimeout),
		ModelsDir:        getEnv("MODELS_DIR", DefaultModelsDir),
		ScoreConcurrency: int(getEnvInt64("SCORE_CONCURRENCY", DefaultScoreConcurrency)),
		RateLimitRPS:     int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND is sqlite")
		}
	case BackendMemory:
		// No external store to configure.
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres, sqlite or memory, got %q", c.StoreBackend)
	}

	if c.ModelsDir == "" {
		return fmt.Errorf("MODELS_DIR must not be empty")
	}
	if c.ScoreConcurrency < 1 {
		return fmt.Errorf("SCORE_CONCURRENCY must be at least 1")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}
