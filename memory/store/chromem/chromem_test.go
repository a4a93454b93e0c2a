package chromem_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ebbing-ai/memorybank/memory"
	"github.com/ebbing-ai/memorybank/memory/store/chromem"
)

func newIndex(t *testing.T) *chromem.Index {
	t.Helper()
	index, err := chromem.New("test", 3)
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	return index
}

func record(id string, vec []float32, md memory.Metadata) *memory.Record {
	now := time.Now()
	return &memory.Record{
		ID:             id,
		Content:        "content of " + id,
		Embedding:      vec,
		CreatedAt:      now,
		LastAccessedAt: now,
		DecayedAt:      now,
		Importance:     1.0,
		Metadata:       md,
	}
}

func TestUpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)

	rec := record("a", []float32{1, 0, 0}, memory.Metadata{"type": "note"})
	rec.Importance = 0.75
	rec.AccessCount = 3

	if err := index.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	got, err := index.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got.Content != rec.Content || got.Importance != 0.75 || got.AccessCount != 3 {
		t.Fatalf("Got %+v, want stored state back", got)
	}
	if got.Metadata["type"] != "note" {
		t.Fatalf("Metadata lost: %v", got.Metadata)
	}

	// Returned record is a copy, not a window into the index.
	got.Importance = 99
	again, _ := index.Get(ctx, "a")
	if again.Importance != 0.75 {
		t.Fatal("Mutating a returned record leaked into the index")
	}

	if err := index.Delete(ctx, "a"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := index.Get(ctx, "a"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("Got %v after delete, want ErrNotFound", err)
	}
	if err := index.Delete(ctx, "a"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("Second delete: got %v, want ErrNotFound", err)
	}
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)

	rec := record("a", []float32{1, 0, 0}, nil)
	if err := index.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	rec.Importance = 0.5
	rec.AccessCount = 1
	if err := index.Upsert(ctx, rec); err != nil {
		t.Fatalf("Failed to re-upsert: %v", err)
	}

	got, err := index.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got.Importance != 0.5 || got.AccessCount != 1 {
		t.Fatalf("Replacement not applied: %+v", got)
	}

	n, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d after replacing, want 1", n)
	}
}

func TestUpsertRejectsWrongDimensions(t *testing.T) {
	index := newIndex(t)
	rec := record("a", []float32{1, 0}, nil)
	if err := index.Upsert(context.Background(), rec); err == nil {
		t.Fatal("Expected error for wrong embedding size")
	}
}

func TestQueryOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)

	if err := index.Upsert(ctx, record("x", []float32{1, 0, 0}, nil)); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.Upsert(ctx, record("y", []float32{0, 1, 0}, nil)); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	candidates, err := index.Query(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Record.ID != "x" {
		t.Fatalf("Top candidate = %q, want x", candidates[0].Record.ID)
	}
	if candidates[0].Similarity < 0.99 {
		t.Fatalf("Top similarity = %v, want ~1", candidates[0].Similarity)
	}
}

func TestQueryClampsKAndFilters(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)

	if err := index.Upsert(ctx, record("a", []float32{1, 0, 0}, memory.Metadata{"type": "fruit"})); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.Upsert(ctx, record("b", []float32{0, 1, 0}, memory.Metadata{"type": "tool"})); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	// k far larger than the store must not error.
	candidates, err := index.Query(ctx, []float32{1, 0, 0}, 50, nil)
	if err != nil {
		t.Fatalf("Failed to query with oversized k: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Got %d candidates, want 2", len(candidates))
	}

	candidates, err = index.Query(ctx, []float32{1, 0, 0}, 50, memory.Metadata{"type": "tool"})
	if err != nil {
		t.Fatalf("Failed to query with filter: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Record.ID != "b" {
		t.Fatalf("Filtered query returned %d candidates, want only b", len(candidates))
	}

	candidates, err = index.Query(ctx, []float32{1, 0, 0}, 5, memory.Metadata{"type": "nope"})
	if err != nil {
		t.Fatalf("Failed to query with non-matching filter: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("Non-matching filter returned %d candidates", len(candidates))
	}
}

func TestAllPaginates(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)

	want := map[string]bool{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("rec-%d", i)
		want[id] = false
		if err := index.Upsert(ctx, record(id, []float32{1, 0, 0}, nil)); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	cursor := ""
	pages := 0
	for {
		page, next, err := index.All(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("Failed to page: %v", err)
		}
		pages++
		for _, rec := range page {
			if _, ok := want[rec.ID]; !ok {
				t.Fatalf("Unexpected record %q", rec.ID)
			}
			if want[rec.ID] {
				t.Fatalf("Record %q returned twice", rec.ID)
			}
			want[rec.ID] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if pages != 3 {
		t.Fatalf("Walked %d pages, want 3", pages)
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("Record %q never returned", id)
		}
	}
}
