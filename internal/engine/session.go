package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/lazypower/memkeep/internal/store"
)

// Session is a derived grouping of one user's live records sharing a
// session id. It is a pure projection over the log, never persisted.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
	MemoryCount int       `json:"memory_count"`
	Tags        []string  `json:"tags,omitempty"`
}

// SessionSummary is generated on demand and never persisted
// automatically.
type SessionSummary struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	SummaryText     string    `json:"summary_text"`
	KeyTopics       []string  `json:"key_topics,omitempty"`
	MemoryCount     int       `json:"memory_count"`
	DateFrom        time.Time `json:"date_from"`
	DateTo          time.Time `json:"date_to"`
	ImportanceScore float64   `json:"importance_score"`
}

// SessionView aggregates live records into sessions. The most recent
// aggregation per user is cached and invalidated by the store's
// mutation sequence number.
type SessionView struct {
	store *store.Store
	cache *gocache.Cache
}

type cachedSessions struct {
	seq      uint64
	sessions []Session
}

// NewSessionView creates a session view over the shared store handle.
// cacheTTL bounds how long an idle aggregation is retained; staleness
// across writes is handled by the sequence check, not the TTL.
func NewSessionView(st *store.Store, cacheTTL time.Duration) *SessionView {
	return &SessionView{
		store: st,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Sessions returns the user's sessions sorted by last_active
// descending.
func (v *SessionView) Sessions(userID string) ([]Session, error) {
	seq := v.store.Seq()
	if c, ok := v.cache.Get(userID); ok {
		cached := c.(cachedSessions)
		if cached.seq == seq {
			return cached.sessions, nil
		}
	}

	items, err := Recall(v.store, Filter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("aggregate sessions for %s: %w", userID, err)
	}

	byID := make(map[string]*Session)
	for i := range items {
		item := &items[i]
		sess, ok := byID[item.SessionID]
		if !ok {
			sess = &Session{
				ID:         item.SessionID,
				UserID:     item.UserID,
				CreatedAt:  item.Timestamp,
				LastActive: item.Timestamp,
			}
			byID[item.SessionID] = sess
		}
		sess.MemoryCount++
		if item.Timestamp.Before(sess.CreatedAt) {
			sess.CreatedAt = item.Timestamp
		}
		if item.Timestamp.After(sess.LastActive) {
			sess.LastActive = item.Timestamp
		}
		for _, tag := range strings.Split(item.Metadata["tags"], ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if !containsString(sess.Tags, tag) {
				sess.Tags = append(sess.Tags, tag)
			}
		}
	}

	sessions := make([]Session, 0, len(byID))
	for _, sess := range byID {
		sessions = append(sessions, *sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})

	v.cache.SetDefault(userID, cachedSessions{seq: seq, sessions: sessions})
	return sessions, nil
}

// Summarize builds a summary for a session from its live records.
// Returns ErrSessionNotFound when the session has none.
func (v *SessionView) Summarize(sessionID string) (*SessionSummary, error) {
	items, err := Recall(v.store, Filter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("summarize %s: %w", sessionID, ErrSessionNotFound)
	}

	contents := make([]string, len(items))
	for i, item := range items {
		contents[i] = item.Content
	}
	topics := topTokens(contents, 5)

	first, last := items[0].Timestamp, items[0].Timestamp
	var importance float64
	for _, item := range items {
		if item.Timestamp.Before(first) {
			first = item.Timestamp
		}
		if item.Timestamp.After(last) {
			last = item.Timestamp
		}
		importance += item.Importance
	}
	importance /= float64(len(items))

	return &SessionSummary{
		SessionID:       sessionID,
		UserID:          items[0].UserID,
		SummaryText:     summaryText(items, topics),
		KeyTopics:       topics,
		MemoryCount:     len(items),
		DateFrom:        first,
		DateTo:          last,
		ImportanceScore: importance,
	}, nil
}

// Search finds the user's sessions whose records match any keyword,
// sorted by last_active descending.
func (v *SessionView) Search(userID string, keywords []string) ([]Session, error) {
	items, err := Recall(v.store, Filter{UserID: userID, Keywords: keywords})
	if err != nil {
		return nil, err
	}

	matched := make(map[string]bool)
	for _, item := range items {
		matched[item.SessionID] = true
	}

	sessions, err := v.Sessions(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(matched))
	for _, sess := range sessions {
		if matched[sess.ID] {
			out = append(out, sess)
		}
	}
	return out, nil
}

// summaryText formats the human-readable session summary: memory
// count, elapsed day span when more than one record, the topic list
// when non-empty, and the most recent content truncated to 100
// characters. items arrive newest first from Recall.
func summaryText(items []store.MemoryItem, topics []string) string {
	span := ""
	if len(items) > 1 {
		start, end := items[0].Timestamp, items[0].Timestamp
		for _, item := range items {
			if item.Timestamp.Before(start) {
				start = item.Timestamp
			}
			if item.Timestamp.After(end) {
				end = item.Timestamp
			}
		}
		span = fmt.Sprintf(" over %d days", int(end.Sub(start).Hours()/24))
	}

	topicsText := ""
	if len(topics) > 0 {
		topicsText = fmt.Sprintf(" Key topics: %s.", strings.Join(topics, ", "))
	}

	return fmt.Sprintf("Session contains %d memories%s.%s Most recent: %q",
		len(items), span, topicsText, truncate(items[0].Content, 100, "..."))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
