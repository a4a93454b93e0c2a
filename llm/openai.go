package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ebbing-ai/memorybank/config"
)

// openaiClient wraps the OpenAI Chat Completions API.
type openaiClient struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func newOpenAI(cfg config.LLM) *openaiClient {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &openaiClient{
		client:    openai.NewClient(option.WithAPIKey(cfg.OpenAIKey)),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

func (c *openaiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api: response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openaiClient) Info() Info {
	return Info{Provider: "openai", Model: c.model}
}
