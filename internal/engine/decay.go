package engine

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/memkeep/internal/store"
)

// Policy controls the decay pipeline. Replaceable as a whole at
// runtime; takes effect on the next run.
type Policy struct {
	MaxAgeHours           int     `json:"max_age_hours"`
	ImportanceThreshold   float64 `json:"importance_threshold"`
	MaxMemoriesPerUser    int     `json:"max_memories_per_user"`
	CompressionEnabled    bool    `json:"compression_enabled"`
	AutoSummarizeSessions bool    `json:"auto_summarize_sessions"`
}

// DefaultPolicy returns the stock policy: 30-day max age, 0.3
// importance threshold, 10k records per user, compression and
// auto-summaries on.
func DefaultPolicy() Policy {
	return Policy{
		MaxAgeHours:           24 * 30,
		ImportanceThreshold:   0.3,
		MaxMemoriesPerUser:    10000,
		CompressionEnabled:    true,
		AutoSummarizeSessions: true,
	}
}

// DecayStats are the counters for one decay run.
type DecayStats struct {
	MemoriesExpired     int       `json:"memories_expired"`
	MemoriesCompressed  int       `json:"memories_compressed"`
	SessionsSummarized  int       `json:"sessions_summarized"`
	TotalMemoriesBefore int       `json:"total_memories_before"`
	TotalMemoriesAfter  int       `json:"total_memories_after"`
	StorageSavedBytes   int64     `json:"storage_saved_bytes"`
	LastDecayRun        time.Time `json:"last_decay_run"`
}

// Sessions inactive this long with more than summarizeMinMemories
// records get auto-summarized.
const (
	staleSessionAge      = 7 * 24 * time.Hour
	summarizeMinMemories = 5
	compressMinGroup     = 3
	summaryMaxLen        = 200
)

// Decayer runs the four-phase maintenance pipeline: expire, compress,
// auto-summarize, cap-enforce. It shares the store handle with the
// session view; neither owns the store.
type Decayer struct {
	store    *store.Store
	sessions *SessionView

	runMu sync.Mutex // single-flight: two runs never interleave

	mu     sync.RWMutex
	policy Policy
	last   *DecayStats
}

// NewDecayer creates a decay engine over the shared store and session
// view.
func NewDecayer(st *store.Store, sessions *SessionView, policy Policy) *Decayer {
	return &Decayer{store: st, sessions: sessions, policy: policy}
}

// Policy returns the current policy.
func (d *Decayer) Policy() Policy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.policy
}

// SetPolicy replaces the policy as a whole, effective on the next run.
func (d *Decayer) SetPolicy(p Policy) {
	d.mu.Lock()
	d.policy = p
	d.mu.Unlock()
}

// LastStats returns the stats of the most recent run, or nil if decay
// has never run.
func (d *Decayer) LastStats() *DecayStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return nil
	}
	stats := *d.last
	return &stats
}

// Run executes the pipeline to completion. Per-item failures are
// logged and skipped; unrecoverable store I/O aborts the run. Safe to
// call repeatedly: an immediate second run finds nothing new to act on.
func (d *Decayer) Run() (DecayStats, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	now := time.Now().UTC()
	policy := d.Policy()
	stats := DecayStats{
		LastDecayRun:        now,
		TotalMemoriesBefore: d.store.TotalLive(),
	}

	if err := d.expirePhase(now, policy, &stats); err != nil {
		return stats, err
	}
	if policy.CompressionEnabled {
		if err := d.compressPhase(now, policy, &stats); err != nil {
			return stats, err
		}
	}
	if policy.AutoSummarizeSessions {
		d.summarizePhase(now, &stats)
	}
	if err := d.capPhase(policy, &stats); err != nil {
		return stats, err
	}

	stats.TotalMemoriesAfter = d.store.TotalLive()

	d.mu.Lock()
	d.last = &stats
	d.mu.Unlock()

	log.Printf("decay: expired=%d compressed=%d summarized=%d live %d -> %d",
		stats.MemoriesExpired, stats.MemoriesCompressed, stats.SessionsSummarized,
		stats.TotalMemoriesBefore, stats.TotalMemoriesAfter)
	return stats, nil
}

// expirePhase tombstones records past their explicit TTL, or past the
// policy max age when no TTL is set. High-importance records are exempt
// regardless of TTL.
func (d *Decayer) expirePhase(now time.Time, policy Policy, stats *DecayStats) error {
	items, err := Recall(d.store, Filter{})
	if err != nil {
		return fmt.Errorf("decay expire: %w", err)
	}

	for _, item := range items {
		var expired bool
		if item.TTLHours > 0 {
			expired = now.After(item.Timestamp.Add(time.Duration(item.TTLHours) * time.Hour))
		} else {
			expired = now.Sub(item.Timestamp) > time.Duration(policy.MaxAgeHours)*time.Hour
		}
		if !expired || item.Importance >= policy.ImportanceThreshold {
			continue
		}

		reclaimed, err := d.store.Tombstone(item.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("decay expire: record %s already gone", item.ID)
				continue
			}
			return fmt.Errorf("decay expire %s: %w", item.ID, err)
		}
		stats.MemoriesExpired++
		stats.StorageSavedBytes += reclaimed
	}
	return nil
}

// compressPhase folds groups of >=3 old, low-importance records from
// the same (user, session) into one synthesized record and tombstones
// the originals.
func (d *Decayer) compressPhase(now time.Time, policy Policy, stats *DecayStats) error {
	cutoff := now.Add(-time.Duration(policy.MaxAgeHours) * time.Hour / 2)

	items, err := Recall(d.store, Filter{DateTo: &cutoff})
	if err != nil {
		return fmt.Errorf("decay compress: %w", err)
	}

	type groupKey struct{ user, session string }
	groups := make(map[groupKey][]store.MemoryItem)
	for _, item := range items {
		if item.Importance < policy.ImportanceThreshold {
			key := groupKey{item.UserID, item.SessionID}
			groups[key] = append(groups[key], item)
		}
	}

	for key, group := range groups {
		if len(group) < compressMinGroup {
			continue
		}
		compressed := buildCompressed(group, now)
		if _, err := d.store.Save(compressed.Item()); err != nil {
			return fmt.Errorf("decay compress session %s: %w", key.session, err)
		}
		for _, item := range group {
			reclaimed, err := d.store.Tombstone(item.ID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return fmt.Errorf("decay compress %s: %w", item.ID, err)
			}
			stats.StorageSavedBytes += reclaimed
		}
		stats.MemoriesCompressed += len(group)
	}
	return nil
}

// summarizePhase generates summaries for stale, substantial sessions.
// A failed summary is logged and does not affect the others.
func (d *Decayer) summarizePhase(now time.Time, stats *DecayStats) {
	cutoff := now.Add(-staleSessionAge)

	for _, user := range d.store.Users() {
		sessions, err := d.sessions.Sessions(user)
		if err != nil {
			log.Printf("decay summarize: sessions for %s: %v", user, err)
			continue
		}
		for _, sess := range sessions {
			if !sess.LastActive.Before(cutoff) || sess.MemoryCount <= summarizeMinMemories {
				continue
			}
			if _, err := d.sessions.Summarize(sess.ID); err != nil {
				log.Printf("decay summarize: session %s: %v", sess.ID, err)
				continue
			}
			stats.SessionsSummarized++
		}
	}
}

// capPhase tombstones the lowest-importance records of any user over
// the per-user cap, oldest first among equals. Evictions count toward
// the expired tally.
func (d *Decayer) capPhase(policy Policy, stats *DecayStats) error {
	for user, count := range d.store.LiveCounts() {
		if count <= policy.MaxMemoriesPerUser {
			continue
		}

		hits, err := recallHits(d.store, Filter{UserID: user})
		if err != nil {
			return fmt.Errorf("decay cap for %s: %w", user, err)
		}
		sort.Slice(hits, func(i, j int) bool {
			a, b := hits[i].item, hits[j].item
			if a.Importance != b.Importance {
				return a.Importance < b.Importance
			}
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return hits[i].offset < hits[j].offset
		})

		excess := len(hits) - policy.MaxMemoriesPerUser
		for _, h := range hits[:excess] {
			reclaimed, err := d.store.Tombstone(h.item.ID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return fmt.Errorf("decay cap %s: %w", h.item.ID, err)
			}
			stats.MemoriesExpired++
			stats.StorageSavedBytes += reclaimed
		}
	}
	return nil
}

// buildCompressed synthesizes the replacement record for a group:
// contents joined with " | " (display form truncated to 200 chars),
// top-5 key points, mean importance, and the group's timestamp range.
func buildCompressed(group []store.MemoryItem, now time.Time) store.CompressedMemory {
	ids := make([]string, len(group))
	contents := make([]string, len(group))
	var importance float64
	first, last := group[0].Timestamp, group[0].Timestamp
	for i, item := range group {
		ids[i] = item.ID
		contents[i] = item.Content
		importance += item.Importance
		if item.Timestamp.Before(first) {
			first = item.Timestamp
		}
		if item.Timestamp.After(last) {
			last = item.Timestamp
		}
	}
	importance /= float64(len(group))

	combined := strings.Join(contents, " | ")
	suffix := fmt.Sprintf("... [+%d more memories]", len(group)-1)

	return store.CompressedMemory{
		OriginalIDs:        ids,
		UserID:             group[0].UserID,
		SessionID:          group[0].SessionID,
		Summary:            truncate(combined, summaryMaxLen, suffix),
		KeyPoints:          topTokens(contents, 5),
		DateFrom:           first,
		DateTo:             last,
		OriginalCount:      len(group),
		CombinedImportance: importance,
		CompressedAt:       now,
	}
}

// AgeDistribution buckets live records by age for inspection.
func (d *Decayer) AgeDistribution() (map[string]int, error) {
	items, err := Recall(d.store, Filter{})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	buckets := make(map[string]int)
	for _, item := range items {
		hours := int(now.Sub(item.Timestamp).Hours())
		var bucket string
		switch {
		case hours <= 24:
			bucket = "0-24h"
		case hours <= 168:
			bucket = "1-7d"
		case hours <= 720:
			bucket = "1-4w"
		case hours <= 2160:
			bucket = "1-3m"
		default:
			bucket = "3m+"
		}
		buckets[bucket]++
	}
	return buckets, nil
}
