package kb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// Document is the generated solution document carried by a KB entry.
type Document struct {
	Markdown      string `json:"markdown"`
	SchemaVersion string `json:"schema_version"`
	RevisionCount int    `json:"revision_count"`
}

// Entry is one committed solution document. Entries are append-only:
// once committed they are never updated or deleted.
type Entry struct {
	CRNumber  string    `json:"cr_number"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	ParentCR  string    `json:"parent_cr,omitempty"`
	Document  Document  `json:"document"`
}

// PersistenceError indicates the durable write failed. The in-memory
// state is rolled back when this is returned from Commit.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist knowledge base: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrExists is returned by Commit when the entry's CR number is
// already present in the store.
var ErrExists = errors.New("cr number already exists")

var crNumberRe = regexp.MustCompile(`^CR(\d+)$`)

// FormatCRNumber renders n as a CR identifier ("CR" + 6 zero-padded digits).
func FormatCRNumber(n int) string {
	return fmt.Sprintf("CR%06d", n)
}

// ParseCRNumber extracts the numeric suffix of a CR identifier.
// Returns false for keys that do not match the format, such as
// manually edited store entries.
func ParseCRNumber(cr string) (int, bool) {
	m := crNumberRe.FindStringSubmatch(cr)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Store is the knowledge base: an ordered, append-only collection of
// entries backed by a single JSON file. The whole file is read at Open
// and atomically replaced on every commit.
type Store struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	index   map[string]int

	// writeFile persists raw bytes; swapped in tests to simulate
	// durable-write failures.
	writeFile func(data []byte) error
}

// Open loads the knowledge base file. A missing file yields an empty
// store; it is created on the first commit.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		index: make(map[string]int),
	}
	s.writeFile = s.atomicWrite

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, &PersistenceError{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	for i, e := range s.entries {
		if _, dup := s.index[e.CRNumber]; dup {
			return nil, &PersistenceError{Err: fmt.Errorf("duplicate cr number %s in %s", e.CRNumber, path)}
		}
		s.index[e.CRNumber] = i
	}
	return s, nil
}

// AllocateNextCRNumber returns the next unused CR identifier: the
// highest numeric suffix in the store plus one, probing upward past
// any identifier that already exists.
func (s *Store) AllocateNextCRNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for cr := range s.index {
		if n, ok := ParseCRNumber(cr); ok && n > max {
			max = n
		}
	}

	candidate := max + 1
	for {
		cr := FormatCRNumber(candidate)
		if _, taken := s.index[cr]; !taken {
			return cr
		}
		candidate++
	}
}

// Commit appends the entry and rewrites the backing file. The append
// is all-or-nothing: a failed durable write rolls back the in-memory
// state and returns a PersistenceError.
func (s *Store) Commit(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.index[entry.CRNumber]; taken {
		return fmt.Errorf("commit %s: %w", entry.CRNumber, ErrExists)
	}

	s.entries = append(s.entries, entry)
	s.index[entry.CRNumber] = len(s.entries) - 1

	if err := s.persistLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		delete(s.index, entry.CRNumber)
		return &PersistenceError{Err: err}
	}
	return nil
}

// Find returns the entry for an exact CR number match.
func (s *Store) Find(crNumber string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[crNumber]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// ListAll returns all entries in commit order.
func (s *Store) ListAll() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of committed entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close releases the store. Commits persist synchronously, so there
// is nothing to flush.
func (s *Store) Close() error {
	return nil
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode knowledge base: %w", err)
	}
	return s.writeFile(data)
}

// atomicWrite replaces the backing file in one step: write to a temp
// file in the same directory, then rename over the target. A crash
// mid-write leaves the previous file intact.
func (s *Store) atomicWrite(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".kb-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
