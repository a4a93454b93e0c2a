package memory

import (
	"context"
	"time"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local, offline), openai
// (API-based). The cached decorator wraps any of them.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Candidate is one similarity-query result from the index, carrying
// the index's native similarity score alongside the record.
type Candidate struct {
	Record     *Record
	Similarity float64
}

// VectorIndex is the persistence backend: a key -> (vector, document,
// metadata) store with a nearest-neighbor query primitive. It is the
// single source of truth for record state. Implementations must hand
// out record copies; callers mutate only via Upsert.
type VectorIndex interface {
	// Upsert atomically writes the full record (insert or replace).
	Upsert(ctx context.Context, rec *Record) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes the record, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Query returns up to k candidates ordered by descending native
	// similarity, restricted to records whose metadata matches every
	// key in filter.
	Query(ctx context.Context, embedding []float32, k int, filter Metadata) ([]Candidate, error)

	// All pages through every record. Pass an empty cursor to start;
	// a returned empty cursor means the enumeration is complete.
	All(ctx context.Context, cursor string, limit int) ([]*Record, string, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// ScoredRecord is one retrieval result. Record reflects the post-boost
// state committed by the retrieval that produced it.
type ScoredRecord struct {
	Record *Record

	// Score is the composite ranking score: native similarity
	// weighted by the record's retention at query time.
	Score float64

	// Similarity is the index's native similarity, kept separate so
	// callers can see how much retention reweighted the ranking.
	Similarity float64
}

// Stats is a point-in-time aggregate view of the store.
type Stats struct {
	TotalRecords   int       `json:"total_memories"`
	MeanImportance float64   `json:"avg_importance"`
	MinImportance  float64   `json:"min_importance"`
	MaxImportance  float64   `json:"max_importance"`
	OldestMemory   time.Time `json:"oldest_memory"`
	NewestMemory   time.Time `json:"newest_memory"`
}
