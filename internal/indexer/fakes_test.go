package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reposeek/reposeek/internal/forge"
	"github.com/reposeek/reposeek/internal/metadata"
	"github.com/reposeek/reposeek/internal/vectorstore"
)

// fakeMeta is an in-memory MetadataStore that counts writes per record so
// tests can assert on write discipline.
type fakeMeta struct {
	mu      sync.Mutex
	records map[string]*metadata.RepositoryRecord
	saves   map[string]int
	saveErr error
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		records: make(map[string]*metadata.RepositoryRecord),
		saves:   make(map[string]int),
	}
}

func (m *fakeMeta) Get(name string) (*metadata.RepositoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", metadata.ErrNotExist, name)
	}
	return rec.Clone(), nil
}

func (m *fakeMeta) Save(rec *metadata.RepositoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.Name] = rec.Clone()
	m.saves[rec.Name]++
	return nil
}

func (m *fakeMeta) AcquireLease(name string, startedAt time.Time) (*metadata.RepositoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", metadata.ErrNotExist, name)
	}
	if rec.UpdateInProgress {
		held := time.Time{}
		if rec.UpdateStartedAt != nil {
			held = *rec.UpdateStartedAt
		}
		return nil, &metadata.LeaseHeldError{Name: name, StartedAt: held}
	}
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	clone := rec.Clone()
	clone.UpdateInProgress = true
	start := startedAt
	clone.UpdateStartedAt = &start
	m.records[name] = clone
	m.saves[name]++
	return clone.Clone(), nil
}

func (m *fakeMeta) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[name]; !ok {
		return fmt.Errorf("%w: %s", metadata.ErrNotExist, name)
	}
	delete(m.records, name)
	return nil
}

func (m *fakeMeta) List() ([]*metadata.RepositoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*metadata.RepositoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *fakeMeta) saveCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[name]
}

func (m *fakeMeta) mustGet(name string) *metadata.RepositoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[name].Clone()
}

// fakeVectors is an in-memory VectorStore recording calls.
type fakeVectors struct {
	mu          sync.Mutex
	collections map[string]bool
	added       []vectorstore.Document
	upserted    []vectorstore.Document
	deletedFor  []string // file paths passed to DeleteDocumentsByFilePath

	deleteCounts map[string]int // file path -> chunks reported deleted
	addErr       error
	upsertErr    error
	deleteErr    error
	createErr    error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{
		collections:  make(map[string]bool),
		deleteCounts: make(map[string]int),
	}
}

func (v *fakeVectors) GetOrCreateCollection(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return v.createErr
	}
	v.collections[name] = true
	return nil
}

func (v *fakeVectors) DeleteCollection(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.collections[name] {
		return errors.New("collection does not exist")
	}
	delete(v.collections, name)
	return nil
}

func (v *fakeVectors) AddDocuments(ctx context.Context, collectionName string, docs []vectorstore.Document) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.addErr != nil {
		return v.addErr
	}
	v.added = append(v.added, docs...)
	return nil
}

func (v *fakeVectors) UpsertDocuments(ctx context.Context, collectionName string, docs []vectorstore.Document) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.upsertErr != nil {
		return v.upsertErr
	}
	v.upserted = append(v.upserted, docs...)
	return nil
}

func (v *fakeVectors) DeleteDocumentsByFilePath(ctx context.Context, collectionName, repository, filePath string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.deleteErr != nil {
		return 0, v.deleteErr
	}
	v.deletedFor = append(v.deletedFor, filePath)
	return v.deleteCounts[filePath], nil
}

// fakeForge is a scripted forge.Client.
type fakeForge struct {
	head       *forge.Commit
	headErr    error
	comparison *forge.Comparison
	compareErr error

	compareCalls int

	// Optional gates so tests can hold an update inside the head-commit
	// call while another caller races it.
	headEntered chan struct{}
	headRelease chan struct{}
}

func (f *fakeForge) GetHeadCommit(ctx context.Context, owner, repo, branch, correlationID string) (*forge.Commit, error) {
	if f.headEntered != nil {
		f.headEntered <- struct{}{}
	}
	if f.headRelease != nil {
		<-f.headRelease
	}
	if f.headErr != nil {
		return nil, f.headErr
	}
	return f.head, nil
}

func (f *fakeForge) CompareCommits(ctx context.Context, owner, repo, base, head, correlationID string) (*forge.Comparison, error) {
	f.compareCalls++
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	return f.comparison, nil
}
