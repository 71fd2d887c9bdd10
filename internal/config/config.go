// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the sqlite databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Quote source (batched HTTP quotes)
	QuoteAPIBaseURL string
	QuoteAPIKey     string

	// Fund NAV provider
	NAVBaseURL string

	// Realtime price stream
	StreamURL   string
	StreamToken string

	// Snapshot capture cron expression (with seconds field)
	SnapshotSchedule string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings for the snapshot database.
type BackupConfig struct {
	Enabled   bool
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Schedule  string
	Keep      int // number of backups to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             getEnvAsInt("PORT", 8080),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		QuoteAPIBaseURL:  getEnv("QUOTE_API_BASE_URL", "https://yh-finance.p.rapidapi.com"),
		QuoteAPIKey:      getEnv("QUOTE_API_KEY", ""),
		NAVBaseURL:       getEnv("NAV_API_BASE_URL", "https://api.mfapi.in"),
		StreamURL:        getEnv("STREAM_URL", ""),
		StreamToken:      getEnv("STREAM_ACCESS_TOKEN", ""),
		SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "0 30 18 * * MON-FRI"),
		Backup:           loadBackupConfig(),
	}

	return cfg, nil
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:   getEnvAsBool("BACKUP_ENABLED", false),
		Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
		AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
		Region:    getEnv("BACKUP_S3_REGION", "auto"),
		Schedule:  getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
		Keep:      getEnvAsInt("BACKUP_KEEP", 7),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
