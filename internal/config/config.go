package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DatabasePath    string
	LogDirectory    string
	BackupDirectory string

	// Statistics cache
	CacheTTL      time.Duration
	CacheCapacity int

	// Refresh coordinator
	RefreshMaxAttempts    int
	RefreshBaseDelay      time.Duration
	RefreshMaxDelay       time.Duration
	GlobalRefreshInterval time.Duration

	// Ledger
	StatementTimeout time.Duration
	LockWaitTimeout  time.Duration

	// Review
	MinConfidence float64

	Debug bool
}

func Load() *Config {
	// Optional .env file for local development.
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnvAsInt("PORT", 8080),
		DatabasePath:          getEnv("DATABASE_PATH", filepath.Join(".", "data", "scenereview.db")),
		LogDirectory:          getEnv("LOG_DIR", filepath.Join(".", "logs")),
		BackupDirectory:       getEnv("BACKUP_DIR", filepath.Join(".", "backups")),
		CacheTTL:              getEnvAsDuration("CACHE_TTL", 30*time.Second),
		CacheCapacity:         getEnvAsInt("CACHE_CAPACITY", 128),
		RefreshMaxAttempts:    getEnvAsInt("REFRESH_MAX_ATTEMPTS", 3),
		RefreshBaseDelay:      getEnvAsDuration("REFRESH_BASE_DELAY", 4*time.Second),
		RefreshMaxDelay:       getEnvAsDuration("REFRESH_MAX_DELAY", 10*time.Second),
		GlobalRefreshInterval: getEnvAsDuration("GLOBAL_REFRESH_INTERVAL", time.Hour),
		StatementTimeout:      getEnvAsDuration("STATEMENT_TIMEOUT", 10*time.Second),
		LockWaitTimeout:       getEnvAsDuration("LOCK_WAIT_TIMEOUT", 5*time.Second),
		MinConfidence:         getEnvAsFloat("MIN_CONFIDENCE", 0.5),
		Debug:                 getEnvAsBool("DEBUG", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
