// Package server exposes the memory engine over HTTP. This is the
// binding surface external clients bridge to: every engine operation
// maps to one route.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/memkeep/internal/engine"
)

// Server wraps the engine with a chi router.
type Server struct {
	engine  *engine.Engine
	version string
	router  chi.Router
}

// New creates the HTTP server over a wired engine.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine:  eng,
		version: version,
	}

	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Post("/memories", s.handleSave)
	r.Post("/recall", s.handleRecall)
	r.Post("/decay", s.handleDecay)
	r.Get("/policy", s.handlePolicy)
	r.Put("/policy", s.handleSetPolicy)
	r.Post("/compact", s.handleCompact)
	r.Get("/stats", s.handleStats)
	r.Get("/stats/ages", s.handleAgeDistribution)

	r.Get("/users/{userID}/export", s.handleExport)
	r.Get("/users/{userID}/sessions", s.handleSessions)
	r.Get("/sessions/search", s.handleSessionSearch)
	r.Get("/sessions/{sessionID}/summary", s.handleSummary)
	r.Get("/sessions/{sessionID}/memories", s.handleSessionMemories)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
