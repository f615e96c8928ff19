package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config carries all environment-driven settings for the server and the
// ingestion jobs.
type Config struct {
	ServerPort string

	// Shared secret for admin-only endpoints.
	AdminToken string

	// Root directory of the durable blob store for raw ingestion artifacts.
	BlobRoot string

	// Bulk feed (tcgplayer-style) endpoints.
	TCGplayerBaseURL string

	// Cron expression for the scheduled ingestion run; empty disables it.
	IngestionCron string
}

// Load reads .env (when present) and builds the configuration from the
// environment.
func Load() *Config {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		BlobRoot:         getEnv("BLOB_ROOT", "./data/ingest"),
		TCGplayerBaseURL: getEnv("TCGPLAYER_BASE_URL", "https://tcgcsv.com/tcgplayer/68"),
		IngestionCron:    getEnv("INGESTION_CRON", "0 3 * * *"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
