// Package chromem implements memory.VectorIndex on top of chromem-go,
// a pure Go, embedded vector database (the Go counterpart of the
// ChromaDB this system's data model comes from).
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ebbing-ai/memorybank/memory"
)

// Index is a single-writer, single-process vector index. chromem-go
// answers similarity queries; a mutex-guarded record table alongside
// the collection carries the authoritative retention state, since
// chromem v0.7 exposes no document enumeration or point lookup.
type Index struct {
	col        *chromem.Collection
	dimensions int

	mu      sync.RWMutex
	records map[string]*memory.Record
}

// New creates an in-memory index for vectors of the given dimension.
func New(collection string, dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Index{
		col:        col,
		dimensions: dimensions,
		records:    make(map[string]*memory.Record),
	}, nil
}

// Upsert writes the full record, replacing any previous version with
// the same id. The record and its flattened metadata land together, so
// a reader never sees a vector without its retention state.
func (x *Index) Upsert(ctx context.Context, rec *memory.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id must not be empty")
	}
	if len(rec.Embedding) != x.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(rec.Embedding), x.dimensions)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// chromem has no update; replace by delete + add.
	if _, exists := x.records[rec.ID]; exists {
		if err := x.col.Delete(ctx, nil, nil, rec.ID); err != nil {
			return fmt.Errorf("replace document: %w", err)
		}
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  flatten(rec),
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	x.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record, or memory.ErrNotFound.
func (x *Index) Get(ctx context.Context, id string) (*memory.Record, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, ok := x.records[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return rec.Clone(), nil
}

// Delete removes the record, or returns memory.ErrNotFound.
func (x *Index) Delete(ctx context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.records[id]; !ok {
		return memory.ErrNotFound
	}
	if err := x.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	delete(x.records, id)
	return nil
}

// Query returns up to k candidates by descending cosine similarity,
// restricted to records matching the metadata filter. chromem errors
// when asked for more results than matching documents exist, so k is
// clamped to the filtered count first.
func (x *Index) Query(ctx context.Context, embedding []float32, k int, filter memory.Metadata) ([]memory.Candidate, error) {
	if len(embedding) != x.dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, index expects %d", len(embedding), x.dimensions)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	x.mu.RLock()
	matching := 0
	for _, rec := range x.records {
		if rec.Metadata.Matches(filter) {
			matching++
		}
	}
	x.mu.RUnlock()

	if matching == 0 {
		return nil, nil
	}
	if k > matching {
		k = matching
	}

	var where map[string]string
	if len(filter) > 0 {
		where = map[string]string(filter)
	}

	results, err := x.col.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	candidates := make([]memory.Candidate, 0, len(results))
	for _, res := range results {
		rec, ok := x.records[res.ID]
		if !ok {
			// Deleted between the similarity query and this lookup.
			continue
		}
		candidates = append(candidates, memory.Candidate{
			Record:     rec.Clone(),
			Similarity: float64(res.Similarity),
		})
	}
	return candidates, nil
}

// All pages through every record in id order. The cursor is the last
// id of the previous page; an empty returned cursor ends the walk.
// Records deleted mid-walk are simply not returned.
func (x *Index) All(ctx context.Context, cursor string, limit int) ([]*memory.Record, string, error) {
	if limit < 1 {
		return nil, "", fmt.Errorf("limit must be >= 1, got %d", limit)
	}

	x.mu.RLock()
	ids := make([]string, 0, len(x.records))
	for id := range x.records {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[len(ids)-1]
	}

	page := make([]*memory.Record, 0, len(ids))
	for _, id := range ids {
		page = append(page, x.records[id].Clone())
	}
	x.mu.RUnlock()

	return page, next, nil
}

// Count returns the number of stored records.
func (x *Index) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records), nil
}

// flatten serializes retention state into chromem's string metadata,
// alongside the user metadata, the same way the original data model
// kept importance and access bookkeeping in ChromaDB metadata.
func flatten(rec *memory.Record) map[string]string {
	md := make(map[string]string, len(rec.Metadata)+5)
	for k, v := range rec.Metadata {
		md[k] = v
	}
	md["timestamp"] = rec.CreatedAt.Format(time.RFC3339Nano)
	md["last_accessed"] = rec.LastAccessedAt.Format(time.RFC3339Nano)
	md["decayed_at"] = rec.DecayedAt.Format(time.RFC3339Nano)
	md["importance"] = strconv.FormatFloat(rec.Importance, 'f', -1, 64)
	md["access_count"] = strconv.Itoa(rec.AccessCount)
	return md
}
