// Package server exposes the memory engine over HTTP: store, retrieve
// and forget endpoints, the on-demand forgetting sweep, stats and
// scheduler introspection, and the memory-augmented chat (plain POST
// and websocket).
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ebbing-ai/memorybank/llm"
	"github.com/ebbing-ai/memorybank/memory"
)

// Server is the memorybank HTTP API server.
type Server struct {
	engine    *memory.Engine
	scheduler *memory.Scheduler
	chat      *llm.Augmented // nil when no LLM is configured
	apiKey    string         // empty disables auth
	router    chi.Router
	version   string
	started   time.Time
}

// New creates a Server. chat may be nil; the chat endpoints then
// return 503.
func New(engine *memory.Engine, scheduler *memory.Scheduler, chat *llm.Augmented, apiKey, version string) *Server {
	s := &Server{
		engine:    engine,
		scheduler: scheduler,
		chat:      chat,
		apiKey:    apiKey,
		version:   version,
		started:   time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Health stays open so load balancers can probe without a key.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)

		r.Post("/store_memory", s.handleStore)
		r.Post("/retrieve_memory", s.handleRetrieve)
		r.Post("/forget_memory", s.handleForget)
		r.Post("/run_forgetting_curve", s.handleRunSweep)

		r.Get("/memory_stats", s.handleStats)
		r.Get("/scheduler_status", s.handleSchedulerStatus)
		r.Get("/forgetting_schedule", s.handleSchedule)

		r.Post("/chat", s.handleChat)
		r.Get("/ws", s.handleWebsocket)
	})

	s.router = r
}

// auth enforces bearer authentication when an API key is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps engine errors onto HTTP statuses. Validation
// is the caller's fault, missing records are 404, a busy sweep is a
// conflict, and collaborator failures are bad-gateway so clients can
// tell them apart from bugs in this service.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *memory.ValidationError
	var ee *memory.EmbeddingError
	var ie *memory.IndexError

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "memory not found")
	case errors.Is(err, memory.ErrSweepRunning):
		writeError(w, http.StatusConflict, "a forgetting sweep is already running")
	case errors.As(err, &ee), errors.As(err, &ie):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
