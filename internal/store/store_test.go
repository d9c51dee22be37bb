package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustSave(t *testing.T, s *Store, item MemoryItem) string {
	t.Helper()
	id, err := s.Save(item)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return id
}

func TestSaveAndReadBack(t *testing.T) {
	s := testStore(t)

	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	id := mustSave(t, s, MemoryItem{
		UserID:     "ana",
		SessionID:  "sprint-planning",
		Content:    "prefers short standups",
		Metadata:   map[string]string{"tags": "work"},
		Timestamp:  ts,
		TTLHours:   48,
		Importance: 0.7,
	})
	if id == "" {
		t.Fatal("Save returned empty id")
	}

	offs := s.RecallOffsets("ana")
	if len(offs) != 1 {
		t.Fatalf("RecallOffsets = %d offsets, want 1", len(offs))
	}
	got, err := s.ReadAt(offs[0])
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %q, want %q", got.ID, id)
	}
	if got.Content != "prefers short standups" {
		t.Errorf("Content = %q", got.Content)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.TTLHours != 48 {
		t.Errorf("TTLHours = %d, want 48", got.TTLHours)
	}
	if got.Metadata["tags"] != "work" {
		t.Errorf("Metadata[tags] = %q, want work", got.Metadata["tags"])
	}
}

func TestSaveDefaults(t *testing.T) {
	s := testStore(t)

	before := time.Now().UTC()
	id := mustSave(t, s, MemoryItem{UserID: "ana", Content: "x", Importance: 2.5})

	got, err := s.ReadAt(s.RecallOffsets("ana")[0])
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.ID != id || got.ID == "" {
		t.Errorf("generated id = %q, want non-empty %q", got.ID, id)
	}
	if got.Timestamp.Before(before) {
		t.Errorf("zero timestamp not stamped: %v", got.Timestamp)
	}
	if got.Importance != 1 {
		t.Errorf("Importance = %v, want clamped to 1", got.Importance)
	}

	mustSave(t, s, MemoryItem{UserID: "ana", Content: "y", Importance: -3})
	got, err = s.ReadAt(s.RecallOffsets("ana")[1])
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.Importance != 0 {
		t.Errorf("Importance = %v, want clamped to 0", got.Importance)
	}
}

func TestUserIsolation(t *testing.T) {
	s := testStore(t)
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "a"})
	mustSave(t, s, MemoryItem{UserID: "bob", Content: "b"})
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "c"})

	if got := len(s.RecallOffsets("ana")); got != 2 {
		t.Errorf("ana offsets = %d, want 2", got)
	}
	if got := len(s.RecallOffsets("bob")); got != 1 {
		t.Errorf("bob offsets = %d, want 1", got)
	}
	users := s.Users()
	if len(users) != 2 || users[0] != "ana" || users[1] != "bob" {
		t.Errorf("Users = %v, want [ana bob]", users)
	}
	counts := s.LiveCounts()
	if counts["ana"] != 2 || counts["bob"] != 1 {
		t.Errorf("LiveCounts = %v", counts)
	}
	if s.TotalLive() != 3 {
		t.Errorf("TotalLive = %d, want 3", s.TotalLive())
	}
}

func TestReopenUsesIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "first"})
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "second"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	offs := s.RecallOffsets("ana")
	if len(offs) != 2 {
		t.Fatalf("offsets after reopen = %d, want 2", len(offs))
	}
	got, err := s.ReadAt(offs[1])
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.Content != "second" {
		t.Errorf("Content = %q, want second", got.Content)
	}
}

func TestRebuildAfterIndexLoss(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "kept"})
	mustSave(t, s, MemoryItem{UserID: "bob", Content: "also kept"})
	s.Close()

	if err := os.Remove(filepath.Join(dir, "index")); err != nil {
		t.Fatalf("remove index: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen without index: %v", err)
	}
	defer s.Close()

	if s.TotalLive() != 2 {
		t.Errorf("TotalLive after rebuild = %d, want 2", s.TotalLive())
	}
	got, err := s.ReadAt(s.RecallOffsets("ana")[0])
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.Content != "kept" {
		t.Errorf("Content = %q, want kept", got.Content)
	}
	if _, err := os.Stat(filepath.Join(dir, "index")); err != nil {
		t.Errorf("index not rewritten after rebuild: %v", err)
	}
}

func TestRebuildSkipsCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "garbled soon"})
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "survivor"})
	s.Close()

	// Stomp the first record's payload with an invalid byte; the frame
	// length stays intact so the scan can step over it.
	logPath := filepath.Join(dir, "memories.bin")
	f, err := os.OpenFile(logPath, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xc1, 0xc1, 0xc1}, framePrefix); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}
	f.Close()
	if err := os.Remove(filepath.Join(dir, "index")); err != nil {
		t.Fatalf("remove index: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	offs := s.RecallOffsets("ana")
	if len(offs) != 1 {
		t.Fatalf("offsets = %d, want 1 (corrupt record skipped)", len(offs))
	}
	got, err := s.ReadAt(offs[0])
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.Content != "survivor" {
		t.Errorf("Content = %q, want survivor", got.Content)
	}
}

func TestRebuildStopsAtTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "complete"})
	s.Close()

	// Simulate a crash mid-append: a length prefix promising far more
	// bytes than the file holds.
	logPath := filepath.Join(dir, "memories.bin")
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.Write([]byte{0xff, 0xff, 0x00, 0x00, 0x01, 0x02}); err != nil {
		t.Fatalf("append partial frame: %v", err)
	}
	f.Close()
	if err := os.Remove(filepath.Join(dir, "index")); err != nil {
		t.Fatalf("remove index: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if s.TotalLive() != 1 {
		t.Fatalf("TotalLive = %d, want 1", s.TotalLive())
	}

	// The next save must land cleanly past the good frames.
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "after crash"})
	offs := s.RecallOffsets("ana")
	if len(offs) != 2 {
		t.Fatalf("offsets = %d, want 2", len(offs))
	}
	got, err := s.ReadAt(offs[1])
	if err != nil {
		t.Fatalf("ReadAt after crash recovery: %v", err)
	}
	if got.Content != "after crash" {
		t.Errorf("Content = %q, want after crash", got.Content)
	}
}

func TestReadAtBadOffset(t *testing.T) {
	s := testStore(t)
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "x"})

	if _, err := s.ReadAt(1 << 40); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("ReadAt(huge) err = %v, want ErrCorruptRecord", err)
	}
	if _, err := s.ReadAt(-1); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("ReadAt(-1) err = %v, want ErrCorruptRecord", err)
	}
}

func TestTombstone(t *testing.T) {
	s := testStore(t)
	id1 := mustSave(t, s, MemoryItem{UserID: "ana", Content: "doomed"})
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "spared"})

	reclaimed, err := s.Tombstone(id1)
	if err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	if reclaimed <= 0 {
		t.Errorf("reclaimed = %d, want > 0", reclaimed)
	}
	if got := len(s.RecallOffsets("ana")); got != 1 {
		t.Errorf("offsets after tombstone = %d, want 1", got)
	}

	if _, err := s.Tombstone(id1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Tombstone err = %v, want ErrNotFound", err)
	}
	if _, err := s.Tombstone("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Tombstone(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestTombstoneAfterReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := mustSave(t, s, MemoryItem{UserID: "ana", Content: "x"})
	s.Close()

	// A fresh store has no id cache; tombstone must fall back to a scan.
	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.Tombstone(id); err != nil {
		t.Fatalf("Tombstone after reopen: %v", err)
	}
	if s.TotalLive() != 0 {
		t.Errorf("TotalLive = %d, want 0", s.TotalLive())
	}
}

func TestTombstoneDropsUserEntry(t *testing.T) {
	s := testStore(t)
	id := mustSave(t, s, MemoryItem{UserID: "ana", Content: "only one"})

	if _, err := s.Tombstone(id); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	if users := s.Users(); len(users) != 0 {
		t.Errorf("Users = %v, want empty", users)
	}
}

func TestCompact(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id1 := mustSave(t, s, MemoryItem{UserID: "ana", Content: "dead"})
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "alive"})
	mustSave(t, s, MemoryItem{UserID: "bob", Content: "alive too"})

	if _, err := s.Tombstone(id1); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	sizeBefore := fileSize(t, filepath.Join(dir, "memories.bin"))

	reclaimed, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if reclaimed <= 0 {
		t.Errorf("reclaimed = %d, want > 0", reclaimed)
	}
	if got := fileSize(t, filepath.Join(dir, "memories.bin")); got >= sizeBefore {
		t.Errorf("log size %d not smaller than %d", got, sizeBefore)
	}
	if s.TotalLive() != 2 {
		t.Errorf("TotalLive = %d, want 2", s.TotalLive())
	}

	got, err := s.ReadAt(s.RecallOffsets("ana")[0])
	if err != nil {
		t.Fatalf("ReadAt after compact: %v", err)
	}
	if got.Content != "alive" {
		t.Errorf("Content = %q, want alive", got.Content)
	}

	// The store keeps working after the swap.
	mustSave(t, s, MemoryItem{UserID: "ana", Content: "post compact"})
	if got := len(s.RecallOffsets("ana")); got != 2 {
		t.Errorf("ana offsets = %d, want 2", got)
	}
}

func TestSeqBumpsOnMutation(t *testing.T) {
	s := testStore(t)

	seq0 := s.Seq()
	id := mustSave(t, s, MemoryItem{UserID: "ana", Content: "x"})
	if s.Seq() == seq0 {
		t.Error("Seq unchanged after Save")
	}
	seq1 := s.Seq()
	if _, err := s.Tombstone(id); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	if s.Seq() == seq1 {
		t.Error("Seq unchanged after Tombstone")
	}
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return fi.Size()
}
