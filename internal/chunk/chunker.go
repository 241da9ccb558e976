// Package chunk splits file content into bounded, line-aligned chunks with
// deterministic IDs. Re-chunking unchanged content yields identical IDs, so
// delete-then-upsert sequences during incremental updates are idempotent.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Chunk is the atomic unit of embedding and storage.
type Chunk struct {
	ID          string
	Repository  string
	FilePath    string
	ChunkIndex  int
	TotalChunks int
	StartLine   int
	EndLine     int
	Content     string
	Metadata    Metadata
}

// Metadata carries file-level provenance attached to every chunk.
type Metadata struct {
	Extension      string
	FileSizeBytes  int64
	ContentHash    string
	FileModifiedAt time.Time
}

// Chunker converts file content into chunks. Implementations must be pure:
// identical input produces identical chunks, IDs included.
type Chunker interface {
	Chunk(repository, filePath, content string, meta Metadata) []Chunk
}

// lineChunker splits content on line boundaries into windows of at most
// maxLines lines.
type lineChunker struct {
	maxLines int
}

// DefaultMaxLines is the window size used when none is configured.
const DefaultMaxLines = 100

// NewLineChunker creates a line-window chunker. maxLines <= 0 selects
// DefaultMaxLines.
func NewLineChunker(maxLines int) Chunker {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &lineChunker{maxLines: maxLines}
}

// Chunk splits content into line windows. Empty or whitespace-only content
// yields no chunks.
func (c *lineChunker) Chunk(repository, filePath, content string, meta Metadata) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	// A trailing newline produces one empty trailing element; drop it so the
	// last chunk's EndLine matches the real line count.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	total := (len(lines) + c.maxLines - 1) / c.maxLines
	chunks := make([]Chunk, 0, total)

	for i := 0; i < total; i++ {
		start := i * c.maxLines
		end := start + c.maxLines
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")

		chunks = append(chunks, Chunk{
			ID:          ChunkID(repository, filePath, i, text),
			Repository:  repository,
			FilePath:    filePath,
			ChunkIndex:  i,
			TotalChunks: total,
			StartLine:   start + 1,
			EndLine:     end,
			Content:     text,
			Metadata:    meta,
		})
	}

	return chunks
}

// ChunkID derives a stable chunk identifier from the repository, path, index
// and the chunk's own content.
func ChunkID(repository, filePath string, index int, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00", repository, filePath, index)
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// ContentHash returns the hex SHA-256 of the full file content, used in
// chunk metadata.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
