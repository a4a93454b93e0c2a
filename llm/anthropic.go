package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ebbing-ai/memorybank/config"
)

// anthropicClient wraps the Anthropic Messages API.
type anthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func newAnthropic(cfg config.LLM) *anthropicClient {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &anthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.AnthropicKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: maxTokens,
	}
}

func (c *anthropicClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic api: response contained no text")
	}
	return sb.String(), nil
}

func (c *anthropicClient) Info() Info {
	return Info{Provider: "claude", Model: string(c.model)}
}
