// Package store owns the on-disk memory log and its offset index.
//
// Layout inside the store directory:
//
//	memories.bin  append-only sequence of [4-byte LE length][payload]
//	index         per-user live offsets, one "user:off1,off2" line each
//
// The log is the sole source of truth; the index is an accelerator that
// can always be rebuilt by a linear scan.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	logName     = "memories.bin"
	indexName   = "index"
	framePrefix = 4
)

type recordLoc struct {
	userID string
	offset int64
}

// Store is a single-writer record store over one directory. Concurrent
// readers are safe; Save, Tombstone, and Compact serialize on the write
// lock. Two Store instances must not write to the same directory.
type Store struct {
	dir       string
	logPath   string
	indexPath string

	mu      sync.RWMutex
	logFile *os.File
	size    int64              // end of the last good frame
	index   map[string][]int64 // user id -> live offsets, append order
	seq     uint64             // bumped on every mutation

	idmu sync.Mutex
	ids  map[string]recordLoc // filled on save and on reads
}

// DefaultDir returns the default store directory: ~/.memkeep
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".memkeep"), nil
}

// Open opens (or creates) the store at dir. A missing, unreadable, or
// inconsistent index triggers a full rebuild from the log.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioErr("create store dir", dir, err)
	}

	logPath := filepath.Join(dir, logName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ioErr("open log", logPath, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ioErr("stat log", logPath, err)
	}

	s := &Store{
		dir:       dir,
		logPath:   logPath,
		indexPath: filepath.Join(dir, indexName),
		logFile:   f,
		size:      fi.Size(),
		index:     make(map[string][]int64),
		ids:       make(map[string]recordLoc),
	}

	if err := s.loadIndex(); err != nil {
		log.Printf("store: index unusable (%v), rescanning log", err)
		if err := s.rebuild(); err != nil {
			f.Close()
			return nil, err
		}
		if err := s.writeIndex(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the log file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logFile.Close()
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Save appends one record and persists the index. A missing id is
// generated, a zero timestamp is stamped with the current time, and
// importance is clamped to [0,1]. Returns the final record id.
func (s *Store) Save(item MemoryItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	item.Importance = clampImportance(item.Importance)

	payload, err := encodeItem(&item)
	if err != nil {
		return "", fmt.Errorf("encode record %s: %w", item.ID, err)
	}

	frame := make([]byte, framePrefix+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[framePrefix:], payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.size
	if _, err := s.logFile.WriteAt(frame, off); err != nil {
		// size is not advanced past a partial append; the next save
		// overwrites whatever landed.
		return "", ioErr("append record", s.logPath, err)
	}
	if err := s.logFile.Sync(); err != nil {
		return "", ioErr("sync log", s.logPath, err)
	}
	s.size = off + int64(len(frame))

	s.index[item.UserID] = append(s.index[item.UserID], off)
	s.seq++
	s.setLoc(item.ID, recordLoc{item.UserID, off})

	if err := s.writeIndex(); err != nil {
		return "", err
	}
	return item.ID, nil
}

// ReadAt decodes the record whose frame starts at offset. Returns
// ErrCorruptRecord (wrapped) when the length prefix is inconsistent
// with the log size or the payload fails to decode.
func (s *Store) ReadAt(offset int64) (*MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readAt(offset)
}

func (s *Store) readAt(offset int64) (*MemoryItem, error) {
	frame, err := s.frame(offset)
	if err != nil {
		return nil, err
	}
	item, err := decodeItem(frame[framePrefix:])
	if err != nil {
		return nil, fmt.Errorf("offset %d: %v: %w", offset, err, ErrCorruptRecord)
	}
	s.setLoc(item.ID, recordLoc{item.UserID, offset})
	return item, nil
}

// frame reads the raw frame (length prefix included) at offset.
func (s *Store) frame(offset int64) ([]byte, error) {
	if offset < 0 || offset+framePrefix > s.size {
		return nil, fmt.Errorf("offset %d beyond log size %d: %w", offset, s.size, ErrCorruptRecord)
	}
	var lenBuf [framePrefix]byte
	if _, err := s.logFile.ReadAt(lenBuf[:], offset); err != nil {
		return nil, ioErr("read record header", s.logPath, err)
	}
	n := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	if offset+framePrefix+n > s.size {
		return nil, fmt.Errorf("offset %d: length %d exceeds log size %d: %w", offset, n, s.size, ErrCorruptRecord)
	}
	frame := make([]byte, framePrefix+n)
	copy(frame, lenBuf[:])
	if _, err := s.logFile.ReadAt(frame[framePrefix:], offset+framePrefix); err != nil {
		return nil, ioErr("read record", s.logPath, err)
	}
	return frame, nil
}

// RecallOffsets returns the live offsets for a user in append order.
func (s *Store) RecallOffsets(userID string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offs := s.index[userID]
	out := make([]int64, len(offs))
	copy(out, offs)
	return out
}

// Users returns every user id with at least one live record, sorted.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.index))
	for u := range s.index {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// LiveCounts returns the number of live records per user.
func (s *Store) LiveCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.index))
	for u, offs := range s.index {
		counts[u] = len(offs)
	}
	return counts
}

// TotalLive returns the number of live records across all users.
func (s *Store) TotalLive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, offs := range s.index {
		total += len(offs)
	}
	return total
}

// Seq returns the mutation sequence number. Any save, tombstone, or
// compaction bumps it; derived views use it for cache invalidation.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Tombstone marks the record with the given id as logically removed, so
// subsequent scans skip it. The log file does not shrink until Compact.
// Returns the frame bytes that compaction will reclaim.
func (s *Store) Tombstone(id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.loc(id)
	if ok && !s.offsetLive(loc) {
		ok = false
	}
	if !ok {
		loc, ok = s.locate(id)
	}
	if !ok {
		return 0, fmt.Errorf("tombstone %s: %w", id, ErrNotFound)
	}

	reclaimed := int64(0)
	if frame, err := s.frame(loc.offset); err == nil {
		reclaimed = int64(len(frame))
	}

	offs := s.index[loc.userID]
	for i, off := range offs {
		if off == loc.offset {
			s.index[loc.userID] = append(offs[:i:i], offs[i+1:]...)
			break
		}
	}
	if len(s.index[loc.userID]) == 0 {
		delete(s.index, loc.userID)
	}
	s.dropLoc(id)
	s.seq++

	if err := s.writeIndex(); err != nil {
		return 0, err
	}
	return reclaimed, nil
}

// Compact rewrites the log keeping only live records, rebuilds the
// index, and returns the bytes reclaimed. Mutually exclusive with
// writers via the store lock.
func (s *Store) Compact() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSize := s.size

	var offs []int64
	for _, userOffs := range s.index {
		offs = append(offs, userOffs...)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })

	tmpPath := s.logPath + ".compact"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, ioErr("create compact log", tmpPath, err)
	}

	newIndex := make(map[string][]int64)
	newIDs := make(map[string]recordLoc)
	var written int64
	for _, off := range offs {
		frame, err := s.frame(off)
		if err != nil {
			if errors.Is(err, ErrCorruptRecord) {
				log.Printf("compact: dropping unreadable record at offset %d: %v", off, err)
				continue
			}
			tmp.Close()
			os.Remove(tmpPath)
			return 0, err
		}
		item, err := decodeItem(frame[framePrefix:])
		if err != nil {
			log.Printf("compact: dropping undecodable record at offset %d: %v", off, err)
			continue
		}
		if _, err := tmp.Write(frame); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, ioErr("write compact log", tmpPath, err)
		}
		newIndex[item.UserID] = append(newIndex[item.UserID], written)
		newIDs[item.ID] = recordLoc{item.UserID, written}
		written += int64(len(frame))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, ioErr("sync compact log", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, ioErr("close compact log", tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.logPath); err != nil {
		os.Remove(tmpPath)
		return 0, ioErr("swap compact log", s.logPath, err)
	}
	s.logFile.Close()
	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return 0, ioErr("reopen log", s.logPath, err)
	}
	s.logFile = f
	s.size = written
	s.index = newIndex
	s.seq++

	s.idmu.Lock()
	s.ids = newIDs
	s.idmu.Unlock()

	if err := s.writeIndex(); err != nil {
		return 0, err
	}
	return oldSize - written, nil
}

// loadIndex reads the persisted index, rejecting anything malformed or
// inconsistent with the log's length so the caller falls back to a
// rebuild.
func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		return err
	}
	index := make(map[string][]int64)
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		user, rest, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("malformed index line %q", line)
		}
		var offs []int64
		for _, part := range strings.Split(rest, ",") {
			if part == "" {
				continue
			}
			off, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return fmt.Errorf("malformed offset %q: %v", part, err)
			}
			if off < 0 || off+framePrefix > s.size {
				return fmt.Errorf("offset %d beyond log size %d", off, s.size)
			}
			offs = append(offs, off)
		}
		if len(offs) > 0 {
			index[user] = offs
		}
	}
	s.index = index
	return nil
}

// rebuild derives the index from a sequential scan of the log,
// re-reading each record's user id from the record itself. Undecodable
// frames are skipped; a truncated tail ends the scan.
func (s *Store) rebuild() error {
	fi, err := s.logFile.Stat()
	if err != nil {
		return ioErr("stat log", s.logPath, err)
	}
	size := fi.Size()

	index := make(map[string][]int64)
	ids := make(map[string]recordLoc)
	var off int64
	for off+framePrefix <= size {
		var lenBuf [framePrefix]byte
		if _, err := s.logFile.ReadAt(lenBuf[:], off); err != nil {
			return ioErr("scan log", s.logPath, err)
		}
		n := int64(binary.LittleEndian.Uint32(lenBuf[:]))
		if off+framePrefix+n > size {
			log.Printf("store: truncated record at offset %d, ignoring log tail", off)
			break
		}
		payload := make([]byte, n)
		if _, err := s.logFile.ReadAt(payload, off+framePrefix); err != nil {
			return ioErr("scan log", s.logPath, err)
		}
		item, err := decodeItem(payload)
		if err != nil {
			log.Printf("store: skipping undecodable record at offset %d: %v", off, err)
			off += framePrefix + n
			continue
		}
		index[item.UserID] = append(index[item.UserID], off)
		ids[item.ID] = recordLoc{item.UserID, off}
		off += framePrefix + n
	}

	s.index = index
	s.size = off
	s.idmu.Lock()
	s.ids = ids
	s.idmu.Unlock()
	return nil
}

// writeIndex persists the full index atomically (temp file + rename).
// O(distinct users) per write; a documented scaling bound, fine at
// small-to-moderate user cardinality.
func (s *Store) writeIndex() error {
	users := make([]string, 0, len(s.index))
	for u := range s.index {
		users = append(users, u)
	}
	sort.Strings(users)

	var b strings.Builder
	for _, u := range users {
		parts := make([]string, len(s.index[u]))
		for i, off := range s.index[u] {
			parts[i] = strconv.FormatInt(off, 10)
		}
		fmt.Fprintf(&b, "%s:%s\n", u, strings.Join(parts, ","))
	}

	tmpPath := s.indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(b.String()), 0644); err != nil {
		return ioErr("write index", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.indexPath); err != nil {
		os.Remove(tmpPath)
		return ioErr("swap index", s.indexPath, err)
	}
	return nil
}

// locate scans all live offsets for the record with the given id. Used
// when the id cache has no entry (e.g. after reopening a store).
func (s *Store) locate(id string) (recordLoc, bool) {
	for user, offs := range s.index {
		for _, off := range offs {
			item, err := s.readAt(off)
			if err != nil {
				continue
			}
			if item.ID == id {
				return recordLoc{user, off}, true
			}
		}
	}
	return recordLoc{}, false
}

func (s *Store) offsetLive(loc recordLoc) bool {
	for _, off := range s.index[loc.userID] {
		if off == loc.offset {
			return true
		}
	}
	return false
}

func (s *Store) setLoc(id string, loc recordLoc) {
	s.idmu.Lock()
	s.ids[id] = loc
	s.idmu.Unlock()
}

func (s *Store) loc(id string) (recordLoc, bool) {
	s.idmu.Lock()
	defer s.idmu.Unlock()
	loc, ok := s.ids[id]
	return loc, ok
}

func (s *Store) dropLoc(id string) {
	s.idmu.Lock()
	delete(s.ids, id)
	s.idmu.Unlock()
}
