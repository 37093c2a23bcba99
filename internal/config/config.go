package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/convoscope/backend/internal/logger"
)

// Config holds all runtime settings. Values come from the environment
// (loaded from .env by main); every setting has a default suitable for
// running locally.
type Config struct {
	Port      string
	DBDriver  string // "sqlite" or "postgres"
	DBPath    string // sqlite file path
	UploadDir string

	MaxUploadBytes    int64
	MaxConcurrentJobs int
	JobQueueSize      int
	JobTimeout        time.Duration
	CacheMaxBytes     int64

	// SecretKey keys the per-archive entity-token derivation. Re-running an
	// analysis is only byte-identical while the secret is unchanged.
	SecretKey string

	ClassifyBatchSize int
	TrendWindow       int
	TrendDelta        float64
}

// Load reads configuration from the environment.
func Load() *Config {
	cfg := &Config{
		Port:              envString("PORT", "8080"),
		DBDriver:          envString("DB_DRIVER", "sqlite"),
		DBPath:            envString("DB_PATH", "convoscope.db"),
		UploadDir:         envString("UPLOAD_DIR", ".uploads"),
		MaxUploadBytes:    envInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
		MaxConcurrentJobs: envInt("MAX_CONCURRENT_JOBS", 2),
		JobQueueSize:      envInt("JOB_QUEUE_SIZE", 100),
		JobTimeout:        envDuration("JOB_TIMEOUT", 10*time.Minute),
		CacheMaxBytes:     envInt64("CACHE_MAX_BYTES", 1024*1024*1024),
		SecretKey:         os.Getenv("SECRET_KEY"),
		ClassifyBatchSize: envInt("CLASSIFY_BATCH_SIZE", 50),
		TrendWindow:       envInt("TREND_WINDOW", 7),
		TrendDelta:        envFloat("TREND_DELTA", 0.25),
	}

	if cfg.SecretKey == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Fatal("Failed to generate secret key", map[string]interface{}{"error": err.Error()})
		}
		cfg.SecretKey = hex.EncodeToString(buf)
		logger.Warn("SECRET_KEY not set, generated an ephemeral one; entity tokens will not be stable across restarts", nil)
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logger.Warn("Invalid integer in environment, using default", map[string]interface{}{"key": key, "value": v})
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		logger.Warn("Invalid integer in environment, using default", map[string]interface{}{"key": key, "value": v})
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		logger.Warn("Invalid float in environment, using default", map[string]interface{}{"key": key, "value": v})
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logger.Warn("Invalid duration in environment, using default", map[string]interface{}{"key": key, "value": v})
	}
	return fallback
}
