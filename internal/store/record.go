package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MemoryItem is one immutable fact once written. Lifecycle changes
// (expiry, compression, cap-eviction) tombstone the record; nothing is
// ever edited in place.
type MemoryItem struct {
	ID        string            `msgpack:"id" json:"id"`
	UserID    string            `msgpack:"user_id" json:"user_id"`
	SessionID string            `msgpack:"session_id" json:"session_id"`
	Content   string            `msgpack:"content" json:"content"`
	Metadata  map[string]string `msgpack:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp time.Time         `msgpack:"ts" json:"timestamp"`
	// TTLHours is an optional explicit expiry window. Zero means no
	// explicit TTL; the decay policy's max age applies instead.
	TTLHours   int     `msgpack:"ttl,omitempty" json:"ttl_hours,omitempty"`
	Importance float64 `msgpack:"imp" json:"importance"`
}

func encodeItem(item *MemoryItem) ([]byte, error) {
	return msgpack.Marshal(item)
}

func decodeItem(data []byte) (*MemoryItem, error) {
	var item MemoryItem
	if err := msgpack.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CompressedMemory is a synthesized record replacing a group of
// originals. It is persisted as an ordinary MemoryItem (summary as
// content, synthesis details in metadata) so the log carries a single
// frame shape and index rebuilds need only one decoder.
type CompressedMemory struct {
	OriginalIDs        []string  `json:"original_ids"`
	UserID             string    `json:"user_id"`
	SessionID          string    `json:"session_id"`
	Summary            string    `json:"summary"`
	KeyPoints          []string  `json:"key_points"`
	DateFrom           time.Time `json:"date_from"`
	DateTo             time.Time `json:"date_to"`
	OriginalCount      int       `json:"original_count"`
	CombinedImportance float64   `json:"combined_importance"`
	CompressedAt       time.Time `json:"compressed_at"`
}

// Metadata keys used when a CompressedMemory is stored as a MemoryItem.
const (
	MetaCompressed    = "compressed"
	MetaOriginalIDs   = "original_ids"
	MetaOriginalCount = "original_count"
	MetaKeyPoints     = "key_points"
	MetaDateFrom      = "date_from"
	MetaDateTo        = "date_to"
)

// Item converts the compressed memory into the record appended to the
// log in place of its originals.
func (c *CompressedMemory) Item() MemoryItem {
	return MemoryItem{
		UserID:    c.UserID,
		SessionID: c.SessionID,
		Content:   c.Summary,
		Metadata: map[string]string{
			MetaCompressed:    "true",
			MetaOriginalIDs:   strings.Join(c.OriginalIDs, ","),
			MetaOriginalCount: strconv.Itoa(c.OriginalCount),
			MetaKeyPoints:     strings.Join(c.KeyPoints, ","),
			MetaDateFrom:      c.DateFrom.UTC().Format(time.RFC3339),
			MetaDateTo:        c.DateTo.UTC().Format(time.RFC3339),
		},
		Timestamp:  c.CompressedAt,
		Importance: c.CombinedImportance,
	}
}

// IsCompressed reports whether the item was synthesized by the decay
// engine's compression phase.
func (m *MemoryItem) IsCompressed() bool {
	return m.Metadata[MetaCompressed] == "true"
}
