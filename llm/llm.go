// Package llm provides the text-generation side of the service: thin
// provider clients plus the memory-augmented chat loop that retrieves
// context before generating and stores the exchange after.
package llm

import (
	"context"
	"fmt"

	"github.com/ebbing-ai/memorybank/config"
)

// Client generates a completion for one prompt. Implementations are
// stateless; conversation memory lives in the memory engine, not here.
type Client interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Info() Info
}

// Info identifies the provider and model behind a Client.
type Info struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.LLM) (Client, error) {
	switch cfg.Provider {
	case "claude", "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("llm provider %q requires ANTHROPIC_API_KEY", cfg.Provider)
		}
		return newAnthropic(cfg), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("llm provider %q requires OPENAI_API_KEY", cfg.Provider)
		}
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
