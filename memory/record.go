package memory

import (
	"sort"
	"strings"
	"time"
)

// Reserved metadata keys. The engine flattens retention state into the
// vector index's string metadata under these keys; user metadata may
// not use them, and filters may not reference them.
const (
	metaCreatedAt    = "timestamp"
	metaLastAccessed = "last_accessed"
	metaDecayedAt    = "decayed_at"
	metaImportance   = "importance"
	metaAccessCount  = "access_count"
)

var reservedMetaKeys = map[string]bool{
	metaCreatedAt:    true,
	metaLastAccessed: true,
	metaDecayedAt:    true,
	metaImportance:   true,
	metaAccessCount:  true,
}

// Metadata is the user-supplied key/value mapping attached to a record.
// Filtering is exact-match string equality per key.
type Metadata map[string]string

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Matches reports whether every key in filter is present with an equal
// value. An empty filter matches everything.
func (m Metadata) Matches(filter Metadata) bool {
	for k, want := range filter {
		if got, ok := m[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// Keys returns the metadata keys in sorted order, giving iteration a
// stable, documented order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Record is one durable unit of memory.
//
// ID, Content, Embedding and CreatedAt are immutable after Store.
// Importance, LastAccessedAt, DecayedAt and AccessCount are mutated by
// retrieval and by the decay sweep, always under the record's lock.
type Record struct {
	ID        string
	Content   string
	Embedding []float32

	CreatedAt      time.Time
	LastAccessedAt time.Time
	// DecayedAt is when the last scheduled decay touched this record
	// (CreatedAt until the first sweep). Elapsed decay intervals are
	// measured from it.
	DecayedAt time.Time

	Importance  float64
	AccessCount int

	Metadata Metadata
}

// Clone returns a deep copy. The index hands out clones so callers can
// never mutate committed state outside the guard.
func (r *Record) Clone() *Record {
	out := *r
	out.Embedding = append([]float32(nil), r.Embedding...)
	out.Metadata = r.Metadata.Clone()
	return &out
}

// Touch applies the retrieval-side reinforcement: importance boost
// (capped), access counter increment, and access timestamp refresh.
// LastAccessedAt never moves backward.
func (r *Record) Touch(now time.Time, boost, limit float64) {
	r.Importance = r.Importance + boost
	if r.Importance > limit {
		r.Importance = limit
	}
	r.AccessCount++
	if now.After(r.LastAccessedAt) {
		r.LastAccessedAt = now
	}
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return validationErr("content", "must not be empty")
	}
	return nil
}

func validateMetadata(md Metadata) error {
	for k := range md {
		if k == "" {
			return validationErr("metadata", "empty key")
		}
		if reservedMetaKeys[k] {
			return validationErr("metadata", "key "+k+" is reserved")
		}
	}
	return nil
}

func validateFilter(filter Metadata) error {
	for k := range filter {
		if reservedMetaKeys[k] {
			return validationErr("metadata_filter", "key "+k+" is reserved")
		}
	}
	return nil
}
