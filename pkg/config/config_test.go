package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"API_HOST", "API_PORT", "DATABASE_URL", "SHUTDOWN_TIMEOUT",
		"HEALTH_PROBE_INTERVAL", "LOG_LEVEL", "LOG_JSON",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIHost != "127.0.0.1" {
		t.Errorf("expected loopback host, got %s", cfg.APIHost)
	}
	if cfg.APIPort != 8400 {
		t.Errorf("expected port 8400, got %d", cfg.APIPort)
	}
	if cfg.DatabaseDSN != "" {
		t.Errorf("expected in-memory history by default, got %q", cfg.DatabaseDSN)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected 30s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.Pipeline.HealthProbeInterval != 2*time.Second {
		t.Errorf("expected 2s probe interval, got %s", cfg.Pipeline.HealthProbeInterval)
	}
	if cfg.LogLevel != "info" || cfg.LogJSON {
		t.Errorf("expected info text logging, got %s json=%v", cfg.LogLevel, cfg.LogJSON)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_HOST", "0.0.0.0")
	t.Setenv("API_PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://localhost/automaker")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("HEALTH_PROBE_INTERVAL", "500ms")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIHost != "0.0.0.0" || cfg.APIPort != 9000 {
		t.Errorf("expected overridden listen address, got %s:%d", cfg.APIHost, cfg.APIPort)
	}
	if cfg.DatabaseDSN != "postgres://localhost/automaker" {
		t.Errorf("expected DSN from environment, got %q", cfg.DatabaseDSN)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("expected 5s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.Pipeline.HealthProbeInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms probe interval, got %s", cfg.Pipeline.HealthProbeInterval)
	}
	if cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Errorf("expected debug json logging, got %s json=%v", cfg.LogLevel, cfg.LogJSON)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("API_PORT", "not-a-port")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	t.Setenv("LOG_JSON", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIPort != 8400 {
		t.Errorf("expected default port for invalid value, got %d", cfg.APIPort)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default timeout for invalid value, got %s", cfg.ShutdownTimeout)
	}
	if cfg.LogJSON {
		t.Error("expected default LOG_JSON for invalid value")
	}
}
