// Package engine provides query, session aggregation, and decay over a
// record store, plus the Engine facade that client surfaces (HTTP, CLI)
// call into.
package engine

import (
	"errors"
	"time"

	"github.com/lazypower/memkeep/internal/store"
)

// Engine ties one store to its derived views. The store handle is
// shared by reference; its lifetime belongs to the open directory, not
// to any engine.
type Engine struct {
	Store    *store.Store
	Sessions *SessionView
	Decay    *Decayer
}

// New wires an engine over an open store.
func New(st *store.Store, policy Policy, cacheTTL time.Duration) *Engine {
	sessions := NewSessionView(st, cacheTTL)
	return &Engine{
		Store:    st,
		Sessions: sessions,
		Decay:    NewDecayer(st, sessions, policy),
	}
}

// Save appends one record. Importance is clamped to [0,1] at write
// time, never rejected. ttlHours of zero means no explicit TTL.
func (e *Engine) Save(userID, sessionID, content string, metadata map[string]string, importance float64, ttlHours int) (string, error) {
	if userID == "" {
		return "", ErrEmptyUser
	}
	return e.Store.Save(store.MemoryItem{
		UserID:     userID,
		SessionID:  sessionID,
		Content:    content,
		Metadata:   metadata,
		Importance: importance,
		TTLHours:   ttlHours,
	})
}

// Recall returns live records matching the filter, newest first.
func (e *Engine) Recall(f Filter) ([]store.MemoryItem, error) {
	return Recall(e.Store, f)
}

// SessionMemories returns all live records of one session for a user,
// newest first.
func (e *Engine) SessionMemories(userID, sessionID string) ([]store.MemoryItem, error) {
	return Recall(e.Store, Filter{UserID: userID, SessionID: sessionID})
}

// Summarize generates a summary for the session's live records.
func (e *Engine) Summarize(sessionID string) (*SessionSummary, error) {
	return e.Sessions.Summarize(sessionID)
}

// RunDecay executes one maintenance pass and returns its stats.
func (e *Engine) RunDecay() (DecayStats, error) {
	return e.Decay.Run()
}

// Compact rewrites the log dropping tombstoned records; returns bytes
// reclaimed.
func (e *Engine) Compact() (int64, error) {
	return e.Store.Compact()
}

// Stats is the store-wide status snapshot.
type Stats struct {
	MemoryCounts  map[string]int `json:"memory_counts"`
	SessionCounts map[string]int `json:"session_counts"`
	LastDecay     *DecayStats    `json:"last_decay,omitempty"`
}

// Stats reports per-user live record counts, per-user session counts,
// and the most recent decay stats.
func (e *Engine) Stats() (*Stats, error) {
	stats := &Stats{
		MemoryCounts:  e.Store.LiveCounts(),
		SessionCounts: make(map[string]int),
		LastDecay:     e.Decay.LastStats(),
	}
	for _, user := range e.Store.Users() {
		sessions, err := e.Sessions.Sessions(user)
		if err != nil {
			return nil, err
		}
		stats.SessionCounts[user] = len(sessions)
	}
	return stats, nil
}

// Export returns every live record for a user in append order, for
// backup or migration.
func (e *Engine) Export(userID string) ([]store.MemoryItem, error) {
	var items []store.MemoryItem
	for _, off := range e.Store.RecallOffsets(userID) {
		item, err := e.Store.ReadAt(off)
		if err != nil {
			if errors.Is(err, store.ErrCorruptRecord) {
				continue
			}
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}
