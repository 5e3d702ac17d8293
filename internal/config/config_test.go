package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.RetryMaxRetries != 5 {
		t.Errorf("RetryMaxRetries = %d, want 5", cfg.RetryMaxRetries)
	}
	if cfg.RetryInitialDelay != time.Second {
		t.Errorf("RetryInitialDelay = %v, want 1s", cfg.RetryInitialDelay)
	}
	if cfg.RetryMaxDelay != time.Hour {
		t.Errorf("RetryMaxDelay = %v, want 1h", cfg.RetryMaxDelay)
	}
	if cfg.RetryMultiplier != 2.0 {
		t.Errorf("RetryMultiplier = %v, want 2.0", cfg.RetryMultiplier)
	}
	if cfg.RetryJitter != 0.1 {
		t.Errorf("RetryJitter = %v, want 0.1", cfg.RetryJitter)
	}
	if cfg.AttemptRetentionDays != 30 {
		t.Errorf("AttemptRetentionDays = %d, want 30", cfg.AttemptRetentionDays)
	}
	if cfg.KafkaTopic != "delivery.events" {
		t.Errorf("KafkaTopic = %q, want delivery.events", cfg.KafkaTopic)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":9090")
	t.Setenv("RELAY_LOG_LEVEL", "debug")
	t.Setenv("RELAY_RETRY_MAX_RETRIES", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.RetryMaxRetries != 8 {
		t.Errorf("RetryMaxRetries = %d, want 8", cfg.RetryMaxRetries)
	}
}

func TestDefaultRetryPolicy_FromRetryKnobs(t *testing.T) {
	t.Setenv("RELAY_RETRY_MAX_RETRIES", "3")
	t.Setenv("RELAY_RETRY_INITIAL_DELAY", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p := cfg.DefaultRetryPolicy()
	if !p.Enabled {
		t.Error("Enabled should be true")
	}
	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.InitialDelay != 2*time.Second {
		t.Errorf("InitialDelay = %v, want 2s", p.InitialDelay)
	}
	if p.MaxDelay != time.Hour {
		t.Errorf("MaxDelay = %v, want 1h", p.MaxDelay)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default policy should validate, got %v", err)
	}
}
