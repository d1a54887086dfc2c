package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Valid deployment stages.
const (
	StageProd  = "prod"
	StageDev   = "dev"
	StageLocal = "local"
)

// Store driver names accepted in STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the runtime configuration for the API service.
type Config struct {
	Stage      string
	ListenAddr string

	// Storage
	StoreDriver string
	DatabaseURL string // postgres DSN, required when StoreDriver == postgres
	SQLitePath  string

	// Artifact blob storage
	ArtifactDir string

	// Outbound email (optional; invoice sending is disabled when empty)
	ResendAPIKey string
	EmailFrom    string
	EmailName    string

	// Rate limiting
	RateLimitPerSecond int
	RateLimitBurst     int
}

// Load reads configuration from the environment. A .env file is honored for
// local development, matching the rest of the deploy tooling.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// Missing .env is fine; anything else is a real problem.
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Stage:              getEnv("STAGE", StageLocal),
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		StoreDriver:        getEnv("STORE_DRIVER", DriverSQLite),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "data.db"),
		ArtifactDir:        getEnv("ARTIFACT_DIR", "uploads"),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		EmailFrom:          getEnv("EMAIL_FROM", "billing@invoply.io"),
		EmailName:          getEnv("EMAIL_FROM_NAME", "Invoply Billing"),
		RateLimitPerSecond: getEnvInt("RATE_LIMIT_RPS", 50),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 100),
	}

	if !IsValidStage(cfg.Stage) {
		return nil, fmt.Errorf("invalid STAGE %q: must be one of %s, %s, %s",
			cfg.Stage, StageProd, StageDev, StageLocal)
	}

	switch cfg.StoreDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// IsValidStage reports whether stage names a known deployment stage.
func IsValidStage(stage string) bool {
	return stage == StageProd || stage == StageDev || stage == StageLocal
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
