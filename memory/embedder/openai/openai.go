// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// defaultDimensions is the native output size of text-embedding-3-small.
const defaultDimensions = 1536

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey overrides OPENAI_API_KEY.
	APIKey string

	// Model is the embedding model name (default: DefaultModel).
	Model string

	// Dimensions requests a reduced output size. Zero means the
	// model's native size.
	Dimensions int
}

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
	reduced    bool
}

// New creates an OpenAI embedder.
func New(cfg Config) *Embedder {
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	dimensions := cfg.Dimensions
	reduced := dimensions > 0
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}

	return &Embedder{
		client:     openai.NewClient(clientOpts...),
		model:      model,
		dimensions: dimensions,
		reduced:    reduced,
	}
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.reduced {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}

	raw := resp.Data[0].Embedding
	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
