package engine

import (
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/memkeep/internal/store"
)

// Filter is a conjunction of optional predicates. The zero Filter
// matches every live record.
type Filter struct {
	UserID        string     `json:"user_id,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	Keywords      []string   `json:"keywords,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	MinImportance *float64   `json:"min_importance,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

// hit pairs a record with its log offset, which doubles as the global
// append-order key.
type hit struct {
	item   store.MemoryItem
	offset int64
}

// Recall evaluates the filter against every candidate record and
// returns matches sorted newest first, ties broken by append order.
// Corrupt records are skipped; store I/O failures abort the call.
func Recall(st *store.Store, f Filter) ([]store.MemoryItem, error) {
	hits, err := recallHits(st, f)
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		ti, tj := hits[i].item.Timestamp, hits[j].item.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return hits[i].offset < hits[j].offset
	})

	if f.Limit > 0 && len(hits) > f.Limit {
		hits = hits[:f.Limit]
	}

	items := make([]store.MemoryItem, len(hits))
	for i, h := range hits {
		items[i] = h.item
	}
	return items, nil
}

// recallHits fetches the unordered matching records with offsets.
func recallHits(st *store.Store, f Filter) ([]hit, error) {
	users := st.Users()
	if f.UserID != "" {
		users = []string{f.UserID}
	}

	var hits []hit
	for _, user := range users {
		for _, off := range st.RecallOffsets(user) {
			item, err := st.ReadAt(off)
			if err != nil {
				if errors.Is(err, store.ErrCorruptRecord) {
					log.Printf("recall: skipping corrupt record at offset %d: %v", off, err)
					continue
				}
				return nil, err
			}
			if matches(item, f) {
				hits = append(hits, hit{*item, off})
			}
		}
	}
	return hits, nil
}

// matches reports whether the record satisfies every present predicate.
// Date bounds are inclusive; keywords are OR-ed case-insensitive
// substring matches against content only.
func matches(item *store.MemoryItem, f Filter) bool {
	if f.UserID != "" && item.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && item.SessionID != f.SessionID {
		return false
	}
	if f.DateFrom != nil && item.Timestamp.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && item.Timestamp.After(*f.DateTo) {
		return false
	}
	if f.MinImportance != nil && item.Importance < *f.MinImportance {
		return false
	}
	if len(f.Keywords) > 0 {
		content := strings.ToLower(item.Content)
		found := false
		for _, kw := range f.Keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
