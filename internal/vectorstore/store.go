// Package vectorstore persists chunk embeddings in chromem-go collections,
// one collection per indexed repository.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/reposeek/reposeek/internal/chunk"
)

// Metadata keys written per document. These names are a compatibility
// surface shared with external search consumers.
const (
	MetaFilePath       = "file_path"
	MetaRepository     = "repository"
	MetaChunkIndex     = "chunk_index"
	MetaTotalChunks    = "total_chunks"
	MetaChunkStartLine = "chunk_start_line"
	MetaChunkEndLine   = "chunk_end_line"
	MetaFileExtension  = "file_extension"
	MetaFileSizeBytes  = "file_size_bytes"
	MetaContentHash    = "content_hash"
	MetaIndexedAt      = "indexed_at"
	MetaFileModifiedAt = "file_modified_at"
)

// Document pairs a chunk with its embedding for storage.
type Document struct {
	Chunk     chunk.Chunk
	Embedding []float32
}

// Store wraps a chromem-go database with the collection operations the
// indexing pipelines need.
type Store struct {
	db *chromem.DB
	mu sync.Mutex

	now func() time.Time // injectable clock for indexed_at stamps
}

// New creates a persistent store rooted at path, or an in-memory store when
// path is empty.
func New(path string) (*Store, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// GetOrCreateCollection ensures a collection exists under the given name.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.GetOrCreateCollection(name, nil, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection removes a collection and all its documents.
// Deleting an absent collection is not an error.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// AddDocuments stores documents in the named collection. Used by the
// ingestion path where IDs are known to be fresh.
func (s *Store) AddDocuments(ctx context.Context, collectionName string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	coll, err := s.collection(collectionName)
	if err != nil {
		return err
	}

	indexedAt := s.now().UTC()
	converted := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		converted = append(converted, toChromemDocument(doc, indexedAt))
	}
	if err := coll.AddDocuments(ctx, converted, 1); err != nil {
		return fmt.Errorf("failed to add documents to %s: %w", collectionName, err)
	}
	return nil
}

// UpsertDocuments stores documents, replacing any existing documents with
// the same IDs. Used by the incremental-update path where chunk IDs are
// deterministic and may already exist.
func (s *Store) UpsertDocuments(ctx context.Context, collectionName string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	coll, err := s.collection(collectionName)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Chunk.ID)
	}
	// Replace-by-ID: drop stale versions first, then add. Delete of absent
	// IDs is a no-op in chromem.
	if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to clear stale documents in %s: %w", collectionName, err)
	}

	indexedAt := s.now().UTC()
	converted := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		converted = append(converted, toChromemDocument(doc, indexedAt))
	}
	if err := coll.AddDocuments(ctx, converted, 1); err != nil {
		return fmt.Errorf("failed to upsert documents to %s: %w", collectionName, err)
	}
	return nil
}

// DeleteDocumentsByFilePath removes every document whose file_path metadata
// equals filePath for the given repository, returning the number deleted.
func (s *Store) DeleteDocumentsByFilePath(ctx context.Context, collectionName, repository, filePath string) (int, error) {
	coll, err := s.collection(collectionName)
	if err != nil {
		return 0, err
	}

	before := coll.Count()
	where := map[string]string{
		MetaRepository: repository,
		MetaFilePath:   filePath,
	}
	if err := coll.Delete(ctx, where, nil); err != nil {
		return 0, fmt.Errorf("failed to delete documents for %s: %w", filePath, err)
	}
	return before - coll.Count(), nil
}

// CountDocuments returns the number of documents in a collection.
func (s *Store) CountDocuments(collectionName string) (int, error) {
	coll, err := s.collection(collectionName)
	if err != nil {
		return 0, err
	}
	return coll.Count(), nil
}

// HasCollection reports whether a collection exists.
func (s *Store) HasCollection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetCollection(name, nil) != nil
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.db.GetCollection(name, nil)
	if coll == nil {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	return coll, nil
}

// toChromemDocument converts a Document into chromem's representation with
// the full metadata surface.
func toChromemDocument(doc Document, indexedAt time.Time) chromem.Document {
	c := doc.Chunk
	return chromem.Document{
		ID:        c.ID,
		Content:   c.Content,
		Embedding: doc.Embedding,
		Metadata: map[string]string{
			MetaFilePath:       c.FilePath,
			MetaRepository:     c.Repository,
			MetaChunkIndex:     strconv.Itoa(c.ChunkIndex),
			MetaTotalChunks:    strconv.Itoa(c.TotalChunks),
			MetaChunkStartLine: strconv.Itoa(c.StartLine),
			MetaChunkEndLine:   strconv.Itoa(c.EndLine),
			MetaFileExtension:  c.Metadata.Extension,
			MetaFileSizeBytes:  strconv.FormatInt(c.Metadata.FileSizeBytes, 10),
			MetaContentHash:    c.Metadata.ContentHash,
			MetaIndexedAt:      indexedAt.Format(time.RFC3339),
			MetaFileModifiedAt: c.Metadata.FileModifiedAt.UTC().Format(time.RFC3339),
		},
	}
}
