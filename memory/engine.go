package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ebbing-ai/memorybank/config"
)

// overfetchFactor is how many extra candidates the engine requests
// from the index per retrieval. The index orders by native similarity
// while the final ranking is similarity*retention, so the two orders
// can differ; over-fetching keeps re-ranking from truncating results
// that would have made the cut.
const overfetchFactor = 4

// statsPageSize bounds memory use when snapshotting large stores.
const statsPageSize = 500

// Engine is the retention engine: it stores memories, serves ranked
// retrieval with access reinforcement, and applies per-record decay on
// behalf of the Scheduler. All record mutations go through the Guard.
type Engine struct {
	index    VectorIndex
	embedder Embedder
	guard    *Guard
	cfg      *config.Retention
}

// NewEngine creates an Engine over the given index and embedder.
// cfg is read-only for the engine's lifetime.
func NewEngine(index VectorIndex, embedder Embedder, cfg *config.Retention) *Engine {
	return &Engine{
		index:    index,
		embedder: embedder,
		guard:    NewGuard(),
		cfg:      cfg,
	}
}

// Guard exposes the engine's concurrency guard so the Scheduler shares
// the same per-record locks and sweep flag.
func (e *Engine) Guard() *Guard { return e.guard }

// Store embeds content, creates a new record with initial retention
// state and writes it as a single atomic upsert. Returns the new id.
func (e *Engine) Store(ctx context.Context, content string, metadata Metadata) (string, error) {
	if err := validateContent(content); err != nil {
		return "", err
	}
	if err := validateMetadata(metadata); err != nil {
		return "", err
	}

	embedding, err := e.embed(ctx, content)
	if err != nil {
		return "", err
	}

	now := time.Now()
	rec := &Record{
		ID:             uuid.New().String(),
		Content:        content,
		Embedding:      embedding,
		CreatedAt:      now,
		LastAccessedAt: now,
		DecayedAt:      now,
		Importance:     1.0,
		AccessCount:    0,
		Metadata:       metadata.Clone(),
	}

	unlock := e.guard.LockRecord(rec.ID)
	err = e.index.Upsert(ctx, rec)
	unlock()
	if err != nil {
		return "", indexErr("upsert", err)
	}

	log.Printf("[ENGINE] Stored memory %s (%d bytes)", rec.ID, len(content))
	return rec.ID, nil
}

// Retrieve returns up to topK records ranked by composite score
// (similarity * retention), applying the access boost to every record
// it returns. The returned records reflect the post-boost state the
// next caller will observe. An empty store or a filter matching
// nothing yields an empty slice, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, filter Metadata) ([]ScoredRecord, error) {
	if query == "" {
		return nil, validationErr("query", "must not be empty")
	}
	if topK < 0 {
		return nil, validationErr("top_k", "must be >= 1")
	}
	if topK == 0 {
		topK = e.cfg.DefaultTopK
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	embedding, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.index.Query(ctx, embedding, topK*overfetchFactor, filter)
	if err != nil {
		return nil, indexErr("query", err)
	}
	if len(candidates) == 0 {
		return []ScoredRecord{}, nil
	}

	now := time.Now()

	scored := make([]ScoredRecord, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, ScoredRecord{
			Record:     c.Record,
			Score:      compositeScore(c.Similarity, c.Record, now, e.cfg.BaseStrength),
			Similarity: c.Similarity,
		})
	}

	// Rank by composite, break ties by recency, then by id so equal
	// inputs always produce the same order.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		ti, tj := scored[i].Record.LastAccessedAt, scored[j].Record.LastAccessedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return scored[i].Record.ID < scored[j].Record.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	// Reinforce every returned record under its lock, re-reading the
	// committed state so a concurrent mutation is never overwritten
	// with stale fields.
	results := make([]ScoredRecord, 0, len(scored))
	for _, s := range scored {
		boosted, err := e.boost(ctx, s.Record.ID, now)
		if errors.Is(err, ErrNotFound) {
			// Deleted between ranking and boost; leave it out.
			continue
		}
		if err != nil {
			return nil, err
		}
		s.Record = boosted
		results = append(results, s)
	}

	log.Printf("[ENGINE] Retrieved %d memories (top_k=%d, candidates=%d)", len(results), topK, len(candidates))
	return results, nil
}

// boost applies the access reinforcement to one record and returns the
// committed post-boost state.
func (e *Engine) boost(ctx context.Context, id string, now time.Time) (*Record, error) {
	unlock := e.guard.LockRecord(id)
	defer unlock()

	rec, err := e.index.Get(ctx, id)
	if err != nil {
		return nil, indexErr("get", err)
	}

	rec.Touch(now, e.cfg.AccessBoost, e.cfg.ImportanceCap)

	if err := e.index.Upsert(ctx, rec); err != nil {
		return nil, indexErr("upsert", err)
	}
	return rec, nil
}

// Forget deletes the record with the given id. Returns ErrNotFound if
// it does not exist; deleting twice reports not-found the second time
// and leaves state untouched.
func (e *Engine) Forget(ctx context.Context, id string) error {
	if id == "" {
		return validationErr("memory_id", "must not be empty")
	}

	unlock := e.guard.LockRecord(id)
	defer unlock()

	if err := e.index.Delete(ctx, id); err != nil {
		return indexErr("delete", err)
	}
	log.Printf("[ENGINE] Forgot memory %s", id)
	return nil
}

// Stats returns an aggregate snapshot of the store. It pages through
// the index without taking any exclusive lock; the snapshot is
// consistent per record, not across records.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var sum float64

	cursor := ""
	for {
		page, next, err := e.index.All(ctx, cursor, statsPageSize)
		if err != nil {
			return Stats{}, indexErr("get_all", err)
		}
		for _, rec := range page {
			if st.TotalRecords == 0 {
				st.MinImportance = rec.Importance
				st.MaxImportance = rec.Importance
				st.OldestMemory = rec.CreatedAt
				st.NewestMemory = rec.CreatedAt
			}
			st.TotalRecords++
			sum += rec.Importance
			if rec.Importance < st.MinImportance {
				st.MinImportance = rec.Importance
			}
			if rec.Importance > st.MaxImportance {
				st.MaxImportance = rec.Importance
			}
			if rec.CreatedAt.Before(st.OldestMemory) {
				st.OldestMemory = rec.CreatedAt
			}
			if rec.CreatedAt.After(st.NewestMemory) {
				st.NewestMemory = rec.CreatedAt
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if st.TotalRecords > 0 {
		st.MeanImportance = sum / float64(st.TotalRecords)
	}
	return st, nil
}

// decayOutcome describes what a single decay step did to a record.
type decayOutcome int

const (
	decaySkipped decayOutcome = iota
	decayUpdated
	decayDeleted
)

// decayOne applies scheduled decay to a single record: under the
// record's lock, recompute importance from the elapsed sweep intervals
// and either persist the new value or delete the record if it fell
// below the forgetting threshold. A concurrent retrieval sees the
// pre-decay or post-decay state, never a torn mixture.
func (e *Engine) decayOne(ctx context.Context, id string, now time.Time) (decayOutcome, error) {
	unlock := e.guard.LockRecord(id)
	defer unlock()

	rec, err := e.index.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// Forgotten between enumeration and decay.
		return decaySkipped, nil
	}
	if err != nil {
		return decaySkipped, indexErr("get", err)
	}

	intervals := elapsedIntervals(rec, now, e.cfg.SweepInterval)
	newImportance := decayedImportance(rec.Importance, e.cfg.DecayRate, intervals)

	if newImportance < e.cfg.ForgettingThreshold {
		if err := e.index.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return decaySkipped, indexErr("delete", err)
		}
		return decayDeleted, nil
	}

	rec.Importance = newImportance
	rec.DecayedAt = now
	if err := e.index.Upsert(ctx, rec); err != nil {
		return decaySkipped, indexErr("upsert", err)
	}
	return decayUpdated, nil
}

// repairOne normalizes a record whose system metadata went bad
// (NaN or negative importance, missing timestamps). A record with no
// content is an orphaned vector and gets deleted. Used by the
// maintenance sweep.
func (e *Engine) repairOne(ctx context.Context, id string, now time.Time) (bool, error) {
	unlock := e.guard.LockRecord(id)
	defer unlock()

	rec, err := e.index.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, indexErr("get", err)
	}

	if rec.Content == "" {
		if err := e.index.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return false, indexErr("delete", err)
		}
		log.Printf("[ENGINE] Deleted orphaned vector %s", id)
		return true, nil
	}

	dirty := false
	if math.IsNaN(rec.Importance) || math.IsInf(rec.Importance, 0) || rec.Importance < 0 {
		rec.Importance = 0
		dirty = true
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
		dirty = true
	}
	if rec.LastAccessedAt.IsZero() || rec.LastAccessedAt.Before(rec.CreatedAt) {
		rec.LastAccessedAt = rec.CreatedAt
		dirty = true
	}
	if rec.DecayedAt.IsZero() {
		rec.DecayedAt = rec.CreatedAt
		dirty = true
	}
	if !dirty {
		return false, nil
	}

	if err := e.index.Upsert(ctx, rec); err != nil {
		return false, indexErr("upsert", err)
	}
	return true, nil
}

// SchedulePrediction previews how a record's importance will evolve if
// it is never accessed again: predicted values after 1, 7 and 30 days
// of scheduled decay.
type SchedulePrediction struct {
	ID             string             `json:"memory_id"`
	ContentPreview string             `json:"content_preview"`
	Importance     float64            `json:"current_importance"`
	Predictions    map[string]float64 `json:"predictions"`
	CreatedAt      time.Time          `json:"created"`
	LastAccessedAt time.Time          `json:"last_accessed"`
	AccessCount    int                `json:"access_count"`
}

// ForgettingSchedule returns one prediction per record, sorted so the
// memories most at risk of being forgotten within a week come first.
func (e *Engine) ForgettingSchedule(ctx context.Context) ([]SchedulePrediction, error) {
	now := time.Now()
	var schedule []SchedulePrediction

	cursor := ""
	for {
		page, next, err := e.index.All(ctx, cursor, statsPageSize)
		if err != nil {
			return nil, indexErr("get_all", err)
		}
		for _, rec := range page {
			p := SchedulePrediction{
				ID:             rec.ID,
				ContentPreview: preview(rec.Content, 100),
				Importance:     rec.Importance,
				Predictions:    make(map[string]float64, 3),
				CreatedAt:      rec.CreatedAt,
				LastAccessedAt: rec.LastAccessedAt,
				AccessCount:    rec.AccessCount,
			}
			base := elapsedIntervals(rec, now, e.cfg.SweepInterval)
			for _, days := range []int{1, 7, 30} {
				future := base + float64(days)*float64(24*time.Hour)/float64(e.cfg.SweepInterval)
				p.Predictions[fmt.Sprintf("day_%d", days)] = decayedImportance(rec.Importance, e.cfg.DecayRate, future)
			}
			schedule = append(schedule, p)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	sort.Slice(schedule, func(i, j int) bool {
		pi, pj := schedule[i].Predictions["day_7"], schedule[j].Predictions["day_7"]
		if pi != pj {
			return pi < pj
		}
		return schedule[i].ID < schedule[j].ID
	})
	return schedule, nil
}

func preview(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// embed calls the embedding provider once (no internal retries) and
// validates the vector's dimensionality against the store's.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vec) != e.embedder.Dimensions() {
		return nil, &EmbeddingError{
			Mismatch: true,
			Err:      fmt.Errorf("got %d dimensions, store expects %d", len(vec), e.embedder.Dimensions()),
		}
	}
	return vec, nil
}
