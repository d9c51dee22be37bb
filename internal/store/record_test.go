package store

import (
	"testing"
	"time"
)

func TestCompressedMemoryItem(t *testing.T) {
	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	c := CompressedMemory{
		OriginalIDs:        []string{"a", "b", "c"},
		UserID:             "ana",
		SessionID:          "retro",
		Summary:            "one | two | three",
		KeyPoints:          []string{"deploy", "rollback"},
		DateFrom:           from,
		DateTo:             to,
		OriginalCount:      3,
		CombinedImportance: 0.2,
		CompressedAt:       at,
	}

	item := c.Item()
	if item.UserID != "ana" || item.SessionID != "retro" {
		t.Errorf("scope = %s/%s, want ana/retro", item.UserID, item.SessionID)
	}
	if item.Content != "one | two | three" {
		t.Errorf("Content = %q", item.Content)
	}
	if !item.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", item.Timestamp, at)
	}
	if item.Importance != 0.2 {
		t.Errorf("Importance = %v, want 0.2", item.Importance)
	}
	if !item.IsCompressed() {
		t.Error("IsCompressed = false, want true")
	}
	if got := item.Metadata[MetaOriginalIDs]; got != "a,b,c" {
		t.Errorf("original_ids = %q, want a,b,c", got)
	}
	if got := item.Metadata[MetaOriginalCount]; got != "3" {
		t.Errorf("original_count = %q, want 3", got)
	}
	if got := item.Metadata[MetaKeyPoints]; got != "deploy,rollback" {
		t.Errorf("key_points = %q", got)
	}
	if got := item.Metadata[MetaDateFrom]; got != "2026-01-02T00:00:00Z" {
		t.Errorf("date_from = %q", got)
	}
}

func TestIsCompressedPlainRecord(t *testing.T) {
	item := MemoryItem{Content: "ordinary"}
	if item.IsCompressed() {
		t.Error("IsCompressed = true for plain record")
	}
	item.Metadata = map[string]string{"tags": "work"}
	if item.IsCompressed() {
		t.Error("IsCompressed = true with unrelated metadata")
	}
}
