package memory_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ebbing-ai/memorybank/config"
	"github.com/ebbing-ai/memorybank/memory"
)

// fakeIndex is a plain map-backed VectorIndex ranking by dot product.
// It gives tests exact control over similarity.
type fakeIndex struct {
	mu   sync.Mutex
	recs map[string]*memory.Record
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{recs: make(map[string]*memory.Record)}
}

func (f *fakeIndex) Upsert(ctx context.Context, rec *memory.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[rec.ID] = rec.Clone()
	return nil
}

func (f *fakeIndex) Get(ctx context.Context, id string) (*memory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[id]; !ok {
		return memory.ErrNotFound
	}
	delete(f.recs, id)
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, k int, filter memory.Metadata) ([]memory.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var candidates []memory.Candidate
	for _, rec := range f.recs {
		if !rec.Metadata.Matches(filter) {
			continue
		}
		var dot float64
		for i := range embedding {
			dot += float64(embedding[i]) * float64(rec.Embedding[i])
		}
		candidates = append(candidates, memory.Candidate{Record: rec.Clone(), Similarity: dot})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Record.ID < candidates[j].Record.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (f *fakeIndex) All(ctx context.Context, cursor string, limit int) ([]*memory.Record, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for id := range f.recs {
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
		page = append(page, f.recs[id].Clone())
	}
	return page, next, nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs), nil
}

// vecEmbedder maps known texts to fixed vectors so tests can dictate
// similarity. Unknown texts get a unit vector on a hash-picked axis.
type vecEmbedder struct {
	dims int
	vecs map[string][]float32
}

func newVecEmbedder(dims int) *vecEmbedder {
	return &vecEmbedder{dims: dims, vecs: make(map[string][]float32)}
}

func (e *vecEmbedder) set(text string, vec []float32) {
	e.vecs[text] = vec
}

func (e *vecEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.vecs[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	vec := make([]float32, e.dims)
	vec[len(text)%e.dims] = 1
	return vec, nil
}

func (e *vecEmbedder) Dimensions() int { return e.dims }

func testRetention() *config.Retention {
	return &config.Retention{
		DecayRate:           0.9,
		ForgettingThreshold: 0.2,
		AccessBoost:         0.1,
		ImportanceCap:       2.0,
		DefaultTopK:         3,
		BaseStrength:        24 * time.Hour,
		SweepInterval:       time.Hour,
		MaintenanceInterval: 24 * time.Hour,
	}
}

func newTestEngine() (*memory.Engine, *fakeIndex, *vecEmbedder) {
	index := newFakeIndex()
	embedder := newVecEmbedder(4)
	return memory.NewEngine(index, embedder, testRetention()), index, embedder
}

// seed writes a record straight into the index, bypassing Store, so
// tests can craft retention state.
func seed(t *testing.T, index *fakeIndex, rec *memory.Record) {
	t.Helper()
	if rec.Embedding == nil {
		rec.Embedding = []float32{1, 0, 0, 0}
	}
	if err := index.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
}

func TestStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	engine, _, embedder := newTestEngine()

	embedder.set("alpha", []float32{1, 0, 0, 0})
	embedder.set("beta", []float32{0, 1, 0, 0})
	embedder.set("tell me about alpha", []float32{1, 0, 0, 0})

	if _, err := engine.Store(ctx, "alpha", nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if _, err := engine.Store(ctx, "beta", nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	results, err := engine.Retrieve(ctx, "tell me about alpha", 2, nil)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Got %d results, want 2", len(results))
	}
	if results[0].Record.Content != "alpha" {
		t.Fatalf("Top result is %q, want alpha", results[0].Record.Content)
	}
	if results[0].Similarity < 0.99 {
		t.Fatalf("Top similarity = %v, want ~1", results[0].Similarity)
	}
	// Fresh record, importance 1.0, dt ~0: composite score ~ similarity.
	if results[0].Score < 0.98 {
		t.Fatalf("Top score = %v, want ~1", results[0].Score)
	}
}

func TestRetrieveAppliesAccessBoost(t *testing.T) {
	ctx := context.Background()
	engine, index, embedder := newTestEngine()
	embedder.set("fact", []float32{1, 0, 0, 0})

	id, err := engine.Store(ctx, "fact", nil)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	results, err := engine.Retrieve(ctx, "fact", 1, nil)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Got %d results, want 1", len(results))
	}

	got := results[0].Record
	if math.Abs(got.Importance-1.1) > 1e-9 {
		t.Fatalf("Returned importance = %v, want 1.1", got.Importance)
	}
	if got.AccessCount != 1 {
		t.Fatalf("Returned access count = %d, want 1", got.AccessCount)
	}

	// The boost must be committed, not just reflected in the response.
	committed, err := index.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read committed record: %v", err)
	}
	if math.Abs(committed.Importance-1.1) > 1e-9 || committed.AccessCount != 1 {
		t.Fatalf("Committed state importance=%v count=%d, want 1.1/1", committed.Importance, committed.AccessCount)
	}
}

func TestRetrieveBoostRespectsCap(t *testing.T) {
	ctx := context.Background()
	engine, index, embedder := newTestEngine()
	embedder.set("hot", []float32{1, 0, 0, 0})

	now := time.Now()
	seed(t, index, &memory.Record{
		ID:             "hot-id",
		Content:        "hot",
		Embedding:      []float32{1, 0, 0, 0},
		CreatedAt:      now,
		LastAccessedAt: now,
		DecayedAt:      now,
		Importance:     1.95,
	})

	results, err := engine.Retrieve(ctx, "hot", 1, nil)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if got := results[0].Record.Importance; math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("Boosted importance = %v, want cap 2.0", got)
	}
}

func TestRetrieveRanksByRetentionNotJustSimilarity(t *testing.T) {
	ctx := context.Background()
	engine, index, embedder := newTestEngine()
	embedder.set("query", []float32{1, 0, 0, 0})

	now := time.Now()
	// Slightly more similar, but stale and nearly forgotten.
	seed(t, index, &memory.Record{
		ID:             "stale",
		Content:        "stale",
		Embedding:      []float32{1, 0, 0, 0},
		CreatedAt:      now.Add(-30 * 24 * time.Hour),
		LastAccessedAt: now.Add(-30 * 24 * time.Hour),
		DecayedAt:      now,
		Importance:     0.25,
	})
	// Less similar, but fresh and important.
	seed(t, index, &memory.Record{
		ID:             "fresh",
		Content:        "fresh",
		Embedding:      []float32{0.9, 0.436, 0, 0},
		CreatedAt:      now,
		LastAccessedAt: now,
		DecayedAt:      now,
		Importance:     1.0,
	})

	results, err := engine.Retrieve(ctx, "query", 2, nil)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if results[0].Record.Content != "fresh" {
		t.Fatalf("Top result is %q, want fresh (retention should outweigh raw similarity)", results[0].Record.Content)
	}
}

func TestRetrieveDefaultTopK(t *testing.T) {
	ctx := context.Background()
	engine, _, embedder := newTestEngine()
	embedder.set("q", []float32{1, 0, 0, 0})

	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("memory %d", i)
		embedder.set(content, []float32{1, 0, 0, 0})
		if _, err := engine.Store(ctx, content, nil); err != nil {
			t.Fatalf("Failed to store: %v", err)
		}
	}

	results, err := engine.Retrieve(ctx, "q", 0, nil)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Got %d results with top_k=0, want default 3", len(results))
	}
}

func TestRetrieveNegativeTopK(t *testing.T) {
	engine, _, _ := newTestEngine()

	_, err := engine.Retrieve(context.Background(), "q", -1, nil)
	var ve *memory.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Got %v, want ValidationError", err)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	engine, _, _ := newTestEngine()

	results, err := engine.Retrieve(context.Background(), "anything", 5, nil)
	if err != nil {
		t.Fatalf("Empty store retrieval failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Got %d results from empty store, want 0", len(results))
	}
}

func TestRetrieveMetadataFilter(t *testing.T) {
	ctx := context.Background()
	engine, _, embedder := newTestEngine()
	for _, text := range []string{"apple", "hammer", "q"} {
		embedder.set(text, []float32{1, 0, 0, 0})
	}

	if _, err := engine.Store(ctx, "apple", memory.Metadata{"type": "fruit"}); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if _, err := engine.Store(ctx, "hammer", memory.Metadata{"type": "tool"}); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	results, err := engine.Retrieve(ctx, "q", 5, memory.Metadata{"type": "fruit"})
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Record.Content != "apple" {
		t.Fatalf("Filter returned %d results, want only apple", len(results))
	}

	// Filters may not touch reserved keys.
	_, err = engine.Retrieve(ctx, "q", 5, memory.Metadata{"importance": "1"})
	var ve *memory.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Reserved filter key: got %v, want ValidationError", err)
	}
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine()

	var ve *memory.ValidationError
	if _, err := engine.Store(ctx, "   ", nil); !errors.As(err, &ve) {
		t.Fatalf("Blank content: got %v, want ValidationError", err)
	}
	if _, err := engine.Store(ctx, "ok", memory.Metadata{"importance": "9"}); !errors.As(err, &ve) {
		t.Fatalf("Reserved metadata key: got %v, want ValidationError", err)
	}
}

func TestForgetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _, embedder := newTestEngine()
	embedder.set("gone", []float32{1, 0, 0, 0})

	id, err := engine.Store(ctx, "gone", nil)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	if err := engine.Forget(ctx, id); err != nil {
		t.Fatalf("Failed to forget: %v", err)
	}
	if err := engine.Forget(ctx, id); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("Second forget: got %v, want ErrNotFound", err)
	}
}

func TestEmbedderDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	engine, _, embedder := newTestEngine()
	// Wrong length for the store's 4 dimensions.
	embedder.set("broken", []float32{1, 0})

	_, err := engine.Store(ctx, "broken", nil)
	var ee *memory.EmbeddingError
	if !errors.As(err, &ee) || !ee.Mismatch {
		t.Fatalf("Got %v, want EmbeddingError with Mismatch", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	engine, index, _ := newTestEngine()

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalRecords != 0 {
		t.Fatalf("Empty store reports %d records", stats.TotalRecords)
	}

	now := time.Now()
	seed(t, index, &memory.Record{ID: "a", Content: "a", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now, DecayedAt: now, Importance: 0.5})
	seed(t, index, &memory.Record{ID: "b", Content: "b", CreatedAt: now, LastAccessedAt: now, DecayedAt: now, Importance: 1.5})

	stats, err = engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalRecords != 2 {
		t.Fatalf("TotalRecords = %d, want 2", stats.TotalRecords)
	}
	if math.Abs(stats.MeanImportance-1.0) > 1e-9 {
		t.Fatalf("MeanImportance = %v, want 1.0", stats.MeanImportance)
	}
	if stats.MinImportance != 0.5 || stats.MaxImportance != 1.5 {
		t.Fatalf("Min/Max importance = %v/%v, want 0.5/1.5", stats.MinImportance, stats.MaxImportance)
	}
	if !stats.OldestMemory.Before(stats.NewestMemory) {
		t.Fatalf("Oldest %v should precede newest %v", stats.OldestMemory, stats.NewestMemory)
	}
}

func TestForgettingSchedule(t *testing.T) {
	ctx := context.Background()
	engine, index, _ := newTestEngine()

	now := time.Now()
	seed(t, index, &memory.Record{ID: "risky", Content: "risky", CreatedAt: now, LastAccessedAt: now, DecayedAt: now, Importance: 0.3})
	seed(t, index, &memory.Record{ID: "safe", Content: "safe", CreatedAt: now, LastAccessedAt: now, DecayedAt: now, Importance: 1.8})

	schedule, err := engine.ForgettingSchedule(ctx)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	if len(schedule) != 2 {
		t.Fatalf("Got %d predictions, want 2", len(schedule))
	}
	if schedule[0].ID != "risky" {
		t.Fatalf("Most at-risk memory should sort first, got %q", schedule[0].ID)
	}
	for _, key := range []string{"day_1", "day_7", "day_30"} {
		if _, ok := schedule[0].Predictions[key]; !ok {
			t.Fatalf("Prediction %s missing", key)
		}
	}
	p := schedule[0].Predictions
	if !(p["day_1"] > p["day_7"] && p["day_7"] > p["day_30"]) {
		t.Fatalf("Predictions should decrease over time: %v", p)
	}
}

func TestConcurrentRetrievalsCountEveryAccess(t *testing.T) {
	ctx := context.Background()
	engine, index, embedder := newTestEngine()
	embedder.set("shared", []float32{1, 0, 0, 0})

	id, err := engine.Store(ctx, "shared", nil)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Retrieve(ctx, "shared", 1, nil); err != nil {
				t.Errorf("Retrieve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := index.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	if rec.AccessCount != n {
		t.Fatalf("AccessCount = %d after %d concurrent retrievals, want %d", rec.AccessCount, n, n)
	}
}
