package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ebbing-ai/memorybank/memory"
)

// memoryJSON is the wire form of a retrieved memory.
type memoryJSON struct {
	ID             string          `json:"memory_id"`
	Content        string          `json:"content"`
	Metadata       memory.Metadata `json:"metadata,omitempty"`
	Importance     float64         `json:"importance"`
	AccessCount    int             `json:"access_count"`
	CreatedAt      time.Time       `json:"timestamp"`
	LastAccessedAt time.Time       `json:"last_accessed"`
	Score          float64         `json:"score"`
	Similarity     float64         `json:"similarity"`
}

func toMemoryJSON(sr memory.ScoredRecord) memoryJSON {
	return memoryJSON{
		ID:             sr.Record.ID,
		Content:        sr.Record.Content,
		Metadata:       sr.Record.Metadata,
		Importance:     sr.Record.Importance,
		AccessCount:    sr.Record.AccessCount,
		CreatedAt:      sr.Record.CreatedAt,
		LastAccessedAt: sr.Record.LastAccessedAt,
		Score:          sr.Score,
		Similarity:     sr.Similarity,
	}
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string          `json:"content"`
		Metadata memory.Metadata `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := s.engine.Store(r.Context(), req.Content, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"memory_id": id,
		"status":    "stored",
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string          `json:"query"`
		TopK   int             `json:"top_k"`
		Filter memory.Metadata `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	results, err := s.engine.Retrieve(r.Context(), req.Query, req.TopK, req.Filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	memories := make([]memoryJSON, 0, len(results))
	for _, sr := range results {
		memories = append(memories, toMemoryJSON(sr))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": memories,
		"count":    len(memories),
	})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemoryID string `json:"memory_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.MemoryID == "" {
		writeError(w, http.StatusBadRequest, "memory_id required")
		return
	}

	if err := s.engine.Forget(r.Context(), req.MemoryID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"memory_id": req.MemoryID,
		"status":    "forgotten",
	})
}

func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	// Empty body means a plain decay sweep.
	var req struct {
		Maintenance bool `json:"maintenance"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	kind := memory.SweepDecay
	if req.Maintenance {
		kind = memory.SweepMaintenance
	}

	summary, err := s.scheduler.RunNow(r.Context(), kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	predictions, err := s.engine.ForgettingSchedule(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": predictions,
		"count":    len(predictions),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "no llm configured")
		return
	}

	var req struct {
		Message string          `json:"message"`
		TopK    int             `json:"top_k"`
		Filter  memory.Metadata `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}

	result, err := s.chat.Chat(r.Context(), req.Message, req.TopK, req.Filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
