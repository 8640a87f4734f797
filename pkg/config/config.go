// Package config provides environment-based configuration for the server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the deployment pipeline server.
type Config struct {
	// Server configuration
	APIHost string
	APIPort int

	// DatabaseDSN enables the PostgreSQL-backed deployment history when
	// set. Empty means in-memory history only.
	DatabaseDSN string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Pipeline configuration
	Pipeline PipelineConfig

	// Logging
	LogLevel string
	LogJSON  bool
}

// PipelineConfig holds pipeline-specific configuration.
type PipelineConfig struct {
	// HealthProbeInterval is the pause between health probe attempts.
	HealthProbeInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	// Ignore a missing .env file; it is optional.
	_ = godotenv.Load()

	cfg := &Config{
		APIHost:         getEnv("API_HOST", "127.0.0.1"),
		APIPort:         getIntEnv("API_PORT", 8400),
		DatabaseDSN:     getEnv("DATABASE_URL", ""),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Pipeline: PipelineConfig{
			HealthProbeInterval: getDurationEnv("HEALTH_PROBE_INTERVAL", 2*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getBoolEnv("LOG_JSON", false),
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
