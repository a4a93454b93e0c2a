// Package cached wraps an embedder with a ristretto cache so repeated
// texts (hot queries, chat follow-ups) skip the model call. Embeddings
// are deterministic per text, which makes them ideal cache values.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// embedder is the minimal surface this decorator needs.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Embedder memoizes Embed results keyed by text. Cost accounting uses
// the vector's byte size, so MaxBytes bounds actual memory, not entry
// count.
type Embedder struct {
	inner embedder
	cache *ristretto.Cache
}

// Config tunes the cache.
type Config struct {
	// MaxBytes bounds cached vector memory (default: 64 MiB).
	MaxBytes int64
}

// New wraps inner with a cache.
func New(inner embedder, cfg Config) (*Embedder, error) {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	// Ristretto wants ~10x counters per expected entry; estimate
	// entries from the vector size at the configured byte budget.
	vecBytes := int64(inner.Dimensions()) * 4
	if vecBytes <= 0 {
		vecBytes = 4
	}
	counters := maxBytes / vecBytes * 10
	if counters < 1000 {
		counters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, calling the inner embedder
// on a miss. Returned slices are copies; callers may mutate them.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if val, ok := e.cache.Get(text); ok {
		if vec, ok := val.([]float32); ok {
			out := make([]float32, len(vec))
			copy(out, vec)
			return out, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	e.cache.Set(text, stored, int64(len(stored))*4)

	return vec, nil
}

// Dimensions returns the inner embedder's size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied. Tests use it to
// make Set visible before asserting a hit.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases cache resources.
func (e *Embedder) Close() {
	e.cache.Close()
}
