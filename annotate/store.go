package annotate

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var modelTagRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// OutputPath is the current-format sidecar location:
// <dir>/<stem>_<modelTag>_sentiment.json next to the input file.
func OutputPath(inputPath, model string) string {
	dir := filepath.Dir(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	tag := modelTagRe.ReplaceAllString(model, "-")
	return filepath.Join(dir, stem+"_"+tag+"_sentiment.json")
}

// LegacyOutputPath is the older model-agnostic sidecar location, still read
// on resume (migration-on-read) but never written to.
func LegacyOutputPath(inputPath string) string {
	stem := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return stem + ".sentiment.json"
}

// Store accumulates label records for one source file and owns the
// resume/merge state. Batches complete on multiple goroutines; every mutation
// runs merge-then-persist as one critical section.
type Store struct {
	mu sync.Mutex

	path       string
	records    map[string]LabelRecord
	serialByID map[string]int

	maxSerialSeen int
	loadedAny     bool
}

// NewStore builds a store for one source file. messages is the full ordered
// message list; it seeds the identifier-to-serial lookup used for sorting and
// resume decisions.
func NewStore(path string, messages []Message) *Store {
	serialByID := make(map[string]int, len(messages))
	for _, m := range messages {
		if m.MessageID == "" {
			continue
		}
		serialByID[m.MessageID] = m.SerialNumber
	}
	return &Store{
		path:          path,
		records:       make(map[string]LabelRecord),
		serialByID:    serialByID,
		maxSerialSeen: -1,
	}
}

// LoadExisting seeds the store from persisted snapshots. The current-format
// path is read first and wins on identifier collision; the legacy path only
// fills identifiers the current snapshot does not cover. A corrupt snapshot
// is treated as absent: the run restarts from scratch rather than failing.
func (s *Store) LoadExisting(legacyPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rows := range [][]LabelRecord{readSnapshot(s.path), readSnapshot(legacyPath)} {
		for _, r := range rows {
			if r.MessageID == "" {
				continue
			}
			if _, ok := s.records[r.MessageID]; ok {
				continue
			}
			s.records[r.MessageID] = r
			s.loadedAny = true
			serial := r.SerialNumber
			if serial == 0 {
				if sn, ok := s.serialByID[r.MessageID]; ok {
					serial = sn
				}
			}
			if serial > s.maxSerialSeen {
				s.maxSerialSeen = serial
			}
		}
	}
	return len(s.records)
}

// Pending returns the messages still needing annotation, preserving original
// order. A message counts as processed when its identifier already has a
// record or its serial is covered by the highest serial seen (guards against
// identifier drift across export versions).
func (s *Store) Pending(messages []Message) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loadedAny {
		return append([]Message(nil), messages...)
	}
	var pending []Message
	for _, m := range messages {
		if _, ok := s.records[m.MessageID]; ok && m.MessageID != "" {
			continue
		}
		if m.SerialNumber <= s.maxSerialSeen {
			continue
		}
		pending = append(pending, m)
	}
	return pending
}

// MergeAndSave merges one completed batch into the store and persists the
// snapshot before returning, so a crash loses at most in-flight batches.
// Records without an identifier are silently dropped: they cannot be keyed.
func (s *Store) MergeAndSave(msgs []Message, rows []LabelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, row := range rows {
		id := row.MessageID
		if id == "" && i < len(msgs) {
			id = msgs[i].MessageID
		}
		if id == "" {
			continue
		}
		row.MessageID = id
		if row.SerialNumber == 0 && i < len(msgs) {
			row.SerialNumber = msgs[i].SerialNumber
		}
		s.records[id] = row
	}
	return s.writeSnapshotLocked()
}

// WriteSnapshot persists the current record set even when nothing changed,
// normalizing ordering of any resumed legacy rows.
func (s *Store) WriteSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSnapshotLocked()
}

// Records returns all records sorted by serial number.
func (s *Store) Records() []LabelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Len reports how many records the store currently holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) sortedLocked() []LabelRecord {
	rows := make([]LabelRecord, 0, len(s.records))
	for _, r := range s.records {
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return s.serialOfLocked(rows[i]) < s.serialOfLocked(rows[j])
	})
	return rows
}

func (s *Store) serialOfLocked(r LabelRecord) int {
	if r.SerialNumber != 0 {
		return r.SerialNumber
	}
	return s.serialByID[r.MessageID]
}

// writeSnapshotLocked fully overwrites the durable snapshot: a sorted
// full-state write, not an append log.
func (s *Store) writeSnapshotLocked() error {
	rows := s.sortedLocked()
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads previously persisted records; a missing or unparsable
// file yields nil so processing restarts cleanly.
func readSnapshot(path string) []LabelRecord {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var rows []LabelRecord
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil
	}
	return rows
}

// writeFileAtomic writes via a same-directory temp file and rename so readers
// never observe a partial snapshot.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_sentiment_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write([]byte("\n")); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
