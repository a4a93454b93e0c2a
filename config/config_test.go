package config_test

import (
	"testing"
	"time"

	"github.com/ebbing-ai/memorybank/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	if cfg.Retention.DecayRate != 0.9 {
		t.Fatalf("DecayRate = %v, want 0.9", cfg.Retention.DecayRate)
	}
	if cfg.Retention.ForgettingThreshold != 0.1 {
		t.Fatalf("ForgettingThreshold = %v, want 0.1", cfg.Retention.ForgettingThreshold)
	}
	if cfg.Retention.DefaultTopK != 3 {
		t.Fatalf("DefaultTopK = %d, want 3", cfg.Retention.DefaultTopK)
	}
	if cfg.Retention.SweepInterval != 24*time.Hour {
		t.Fatalf("SweepInterval = %v, want 24h", cfg.Retention.SweepInterval)
	}
	if cfg.Server.ListenAddr() != "0.0.0.0:8000" {
		t.Fatalf("ListenAddr = %q", cfg.Server.ListenAddr())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DECAY_RATE", "0.5")
	t.Setenv("FORGETTING_THRESHOLD", "0.2")
	t.Setenv("DEFAULT_TOP_K", "7")
	t.Setenv("FORGETTING_INTERVAL_HOURS", "1.5")
	t.Setenv("EMBEDDING_PROVIDER", "mock")
	t.Setenv("EMBEDDING_DIMENSIONS", "64")
	t.Setenv("PORT", "9001")
	t.Setenv("API_KEY", "sekrit")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Retention.DecayRate != 0.5 {
		t.Fatalf("DecayRate = %v, want 0.5", cfg.Retention.DecayRate)
	}
	if cfg.Retention.ForgettingThreshold != 0.2 {
		t.Fatalf("ForgettingThreshold = %v, want 0.2", cfg.Retention.ForgettingThreshold)
	}
	if cfg.Retention.DefaultTopK != 7 {
		t.Fatalf("DefaultTopK = %d, want 7", cfg.Retention.DefaultTopK)
	}
	if cfg.Retention.SweepInterval != 90*time.Minute {
		t.Fatalf("SweepInterval = %v, want 1.5h", cfg.Retention.SweepInterval)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 64 {
		t.Fatalf("Embedding = %+v", cfg.Embedding)
	}
	if cfg.Server.Port != 9001 || cfg.Server.APIKey != "sekrit" {
		t.Fatalf("Server = %+v", cfg.Server)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DECAY_RATE", "1.5")
	if _, err := config.Load(); err == nil {
		t.Fatal("DECAY_RATE above 1 should be rejected")
	}

	t.Setenv("DECAY_RATE", "0.9")
	t.Setenv("DEFAULT_TOP_K", "0")
	if _, err := config.Load(); err == nil {
		t.Fatal("DEFAULT_TOP_K of 0 should be rejected")
	}
}
