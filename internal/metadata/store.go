package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrNotExist is returned by Get when no record exists under the given name.
var ErrNotExist = errors.New("repository record not found")

// LeaseHeldError is returned by AcquireLease when the record already carries
// an in-progress update.
type LeaseHeldError struct {
	Name      string
	StartedAt time.Time
}

func (e *LeaseHeldError) Error() string {
	return fmt.Sprintf("update lease for %s already held since %s", e.Name, e.StartedAt.Format(time.RFC3339))
}

// documentVersion is the on-disk schema version.
const documentVersion = "1.0"

// document is the top-level on-disk shape of the metadata store.
type document struct {
	Version      string                       `json:"version"`
	Repositories map[string]*RepositoryRecord `json:"repositories"`
}

// Store persists repository records as a single JSON document that is
// atomically replaced on every write (write-temp + rename).
// Read-modify-write is serialized by an internal mutex; the durable
// updateInProgress flag provides the cross-process lease.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the given file path.
// The file is created lazily on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the record for name, or ErrNotExist.
func (s *Store) Get(name string) (*RepositoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Repositories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	return rec.Clone(), nil
}

// List returns copies of all records sorted by name.
func (s *Store) List() ([]*RepositoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	records := make([]*RepositoryRecord, 0, len(doc.Repositories))
	for _, rec := range doc.Repositories {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Save upserts a record keyed by its Name.
func (s *Store) Save(rec *RepositoryRecord) error {
	if rec.Name == "" {
		return errors.New("record name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Repositories[rec.Name] = rec.Clone()
	return s.write(doc)
}

// AcquireLease atomically claims the update lease for name: the in-progress
// check and the flagged write happen under the store mutex, so of two racing
// callers exactly one wins. Returns a copy of the record with the lease set,
// or a LeaseHeldError carrying the holder's start time.
func (s *Store) AcquireLease(name string, startedAt time.Time) (*RepositoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Repositories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	if rec.UpdateInProgress {
		held := time.Time{}
		if rec.UpdateStartedAt != nil {
			held = *rec.UpdateStartedAt
		}
		return nil, &LeaseHeldError{Name: name, StartedAt: held}
	}

	rec.UpdateInProgress = true
	start := startedAt
	rec.UpdateStartedAt = &start
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Delete removes the record for name. Deleting an absent record is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	delete(doc.Repositories, name)
	return s.write(doc)
}

// load reads the document from disk. A missing file yields an empty document.
func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: documentVersion, Repositories: map[string]*RepositoryRecord{}}, nil
		}
		return nil, fmt.Errorf("failed to read metadata store: %w", err)
	}

	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata store: %w", err)
	}
	if doc.Repositories == nil {
		doc.Repositories = map[string]*RepositoryRecord{}
	}
	if doc.Version == "" {
		doc.Version = documentVersion
	}
	return doc, nil
}

// write atomically replaces the on-disk document: marshal to a temp file in
// the same directory, fsync, rename over the target.
func (s *Store) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp metadata file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp metadata file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}
	return nil
}
