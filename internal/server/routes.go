package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/memkeep/internal/engine"
	"github.com/lazypower/memkeep/internal/store"
)

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string            `json:"user_id"`
		SessionID  string            `json:"session_id"`
		Content    string            `json:"content"`
		Metadata   map[string]string `json:"metadata"`
		Importance *float64          `json:"importance"`
		TTLHours   int               `json:"ttl_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	importance := 0.5
	if req.Importance != nil {
		importance = *req.Importance
	}

	id, err := s.engine.Save(req.UserID, req.SessionID, req.Content, req.Metadata, importance, req.TTLHours)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyUser) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var filter engine.Filter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	items, err := s.engine.Recall(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []store.MemoryItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(items),
		"memories": items,
	})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.RunDecay()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Decay.Policy())
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var policy engine.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if policy.MaxAgeHours <= 0 || policy.MaxMemoriesPerUser <= 0 ||
		policy.ImportanceThreshold < 0 || policy.ImportanceThreshold > 1 {
		http.Error(w, `{"error":"invalid policy"}`, http.StatusBadRequest)
		return
	}

	s.engine.Decay.SetPolicy(policy)
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.engine.Compact()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reclaimed_bytes": reclaimed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAgeDistribution(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.engine.Decay.AgeDistribution()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	items, err := s.engine.Export(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []store.MemoryItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"count":    len(items),
		"memories": items,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	sessions, err := s.engine.Sessions.Sessions(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []engine.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleSessionSearch(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, `{"error":"user parameter required"}`, http.StatusBadRequest)
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, `{"error":"q parameter required"}`, http.StatusBadRequest)
		return
	}

	var keywords []string
	for _, kw := range strings.Split(q, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	sessions, err := s.engine.Sessions.Search(userID, keywords)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []engine.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := s.engine.Summarize(sessionID)
	if err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSessionMemories(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := r.URL.Query().Get("user")

	items, err := s.engine.SessionMemories(userID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []store.MemoryItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"count":      len(items),
		"memories":   items,
	})
}
