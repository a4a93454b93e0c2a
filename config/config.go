// Package config loads the process-wide configuration once at startup.
//
// All settings come from the environment (a .env file is honored when
// present). The resulting Config is passed by reference to every
// component and never mutated after Load returns; changing retention
// parameters requires a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all memorybank configuration.
type Config struct {
	Retention Retention
	Embedding Embedding
	LLM       LLM
	Server    Server
}

// Retention controls the forgetting-curve model. Read at startup,
// immutable for the process lifetime.
type Retention struct {
	// DecayRate is the multiplicative importance decay applied per
	// elapsed sweep interval (0 < rate < 1).
	DecayRate float64

	// ForgettingThreshold is the importance below which a record is
	// deleted by the sweep.
	ForgettingThreshold float64

	// AccessBoost is added to importance on every retrieval.
	AccessBoost float64

	// ImportanceCap bounds importance growth from repeated retrievals.
	ImportanceCap float64

	// DefaultTopK is the result count used when a caller passes none.
	DefaultTopK int

	// BaseStrength is the Ebbinghaus base memory strength. A record
	// untouched for one BaseStrength decays to 1/e of its retention.
	BaseStrength time.Duration

	// SweepInterval is the cadence of the decay sweep.
	SweepInterval time.Duration

	// MaintenanceInterval is the cadence of the maintenance sweep
	// (decay plus store-wide consistency checks).
	MaintenanceInterval time.Duration
}

// Embedding selects and configures the embedding provider.
type Embedding struct {
	Provider      string // "openai", "mock", or "onnx"
	Model         string
	Dimensions    int
	OpenAIKey     string
	ModelPath     string // onnx only
	TokenizerPath string // onnx only
	CacheEnabled  bool
}

// LLM selects and configures the text-generation provider for /chat.
type LLM struct {
	Provider     string // "claude" or "openai"
	Model        string
	AnthropicKey string
	OpenAIKey    string
	MaxTokens    int64
}

// Server configures the HTTP surface.
type Server struct {
	Bind   string
	Port   int
	APIKey string // empty disables auth
}

// ListenAddr returns the bind:port address string.
func (s Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// Default returns the configuration used when no environment overrides
// are present.
func Default() *Config {
	return &Config{
		Retention: Retention{
			DecayRate:           0.9,
			ForgettingThreshold: 0.1,
			AccessBoost:         0.1,
			ImportanceCap:       2.0,
			DefaultTopK:         3,
			BaseStrength:        24 * time.Hour,
			SweepInterval:       24 * time.Hour,
			MaintenanceInterval: 168 * time.Hour,
		},
		Embedding: Embedding{
			Provider:     "openai",
			Model:        "text-embedding-ada-002",
			Dimensions:   1536,
			CacheEnabled: true,
		},
		LLM: LLM{
			Provider:  "claude",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1000,
		},
		Server: Server{
			Bind: "0.0.0.0",
			Port: 8000,
		},
	}
}

// Load builds a Config from the environment, falling back to defaults.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	var err error
	if err = loadRetention(&cfg.Retention); err != nil {
		return nil, err
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 {
			return nil, fmt.Errorf("invalid EMBEDDING_DIMENSIONS %q", v)
		}
		cfg.Embedding.Dimensions = n
	}
	cfg.Embedding.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("ONNX_MODEL_PATH"); v != "" {
		cfg.Embedding.ModelPath = v
	}
	if v := os.Getenv("ONNX_TOKENIZER_PATH"); v != "" {
		cfg.Embedding.TokenizerPath = v
	}
	if v := os.Getenv("EMBEDDING_CACHE"); v != "" {
		cfg.Embedding.CacheEnabled = v != "false" && v != "0"
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	cfg.LLM.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")

	if v := os.Getenv("BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("PORT"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Server.Port = n
	}
	cfg.Server.APIKey = os.Getenv("API_KEY")

	return cfg, nil
}

func loadRetention(r *Retention) error {
	if err := envFloat("DECAY_RATE", &r.DecayRate); err != nil {
		return err
	}
	if r.DecayRate <= 0 || r.DecayRate >= 1 {
		return fmt.Errorf("DECAY_RATE must be in (0, 1), got %v", r.DecayRate)
	}
	if err := envFloat("FORGETTING_THRESHOLD", &r.ForgettingThreshold); err != nil {
		return err
	}
	if err := envFloat("ACCESS_BOOST", &r.AccessBoost); err != nil {
		return err
	}
	if err := envFloat("IMPORTANCE_CAP", &r.ImportanceCap); err != nil {
		return err
	}
	if v := os.Getenv("DEFAULT_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid DEFAULT_TOP_K %q", v)
		}
		r.DefaultTopK = n
	}
	if err := envHours("BASE_STRENGTH_HOURS", &r.BaseStrength); err != nil {
		return err
	}
	if err := envHours("FORGETTING_INTERVAL_HOURS", &r.SweepInterval); err != nil {
		return err
	}
	if err := envHours("MAINTENANCE_INTERVAL_HOURS", &r.MaintenanceInterval); err != nil {
		return err
	}
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*dst = f
	return nil
}

func envHours(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*dst = time.Duration(f * float64(time.Hour))
	return nil
}
