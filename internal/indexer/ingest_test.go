package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposeek/reposeek/internal/config"
	"github.com/reposeek/reposeek/internal/metadata"
)

// TEST PLAN: full ingestion pipeline
//
// 1. clone, scan, chunk, embed, store, finalize: counters and record match
// 2. progress phases arrive in order, ending at 100
// 3. invalid URL and already-indexed are pre-flight errors
// 4. force re-ingests an existing repository and rebuilds its collection
// 5. clone failures collapse into a failed result, not an error
// 6. a collection-creation failure is fatal for the operation
// 7. an unreadable file is a per-file error; the rest of the batch indexes
// 8. a panicking progress callback never aborts the pipeline

// gitFake implements git.Operations by materializing scripted files in the
// clone destination.
type gitFake struct {
	files    map[string]string
	cloneErr error
	sha      string
}

func (g *gitFake) Clone(ctx context.Context, url, branch, dest string) error {
	if g.cloneErr != nil {
		return g.cloneErr
	}
	for rel, content := range g.files {
		path := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (g *gitFake) Pull(ctx context.Context, dir, branch string) error { return nil }

func (g *gitFake) HeadSHA(ctx context.Context, dir string) (string, error) {
	if g.sha == "" {
		return strings.Repeat("a", 40), nil
	}
	return g.sha, nil
}

func (g *gitFake) CurrentBranch(ctx context.Context, dir string) string { return "main" }

type ingestFixture struct {
	meta     *fakeMeta
	vectors  *fakeVectors
	git      *gitFake
	pipeline *IngestionPipeline
}

func newIngestFixture(t *testing.T, files map[string]string) *ingestFixture {
	t.Helper()

	meta := newFakeMeta()
	vectors := newFakeVectors()
	gitOps := &gitFake{files: files}
	filter, err := NewFileFilter()
	require.NoError(t, err)

	pipeline := NewIngestionPipeline(
		meta, vectors, newMockEmbedder(), gitOps, nil, filter,
		config.Default(), t.TempDir(), testLogger(),
	)
	return &ingestFixture{meta: meta, vectors: vectors, git: gitOps, pipeline: pipeline}
}

func TestIngest_Success(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, map[string]string{
		"src/main.ts":   "const a = 1\n",
		"src/util.ts":   "export const b = 2\n",
		"docs/guide.md": "# Guide\n",
	})

	var events []ProgressEvent
	result, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{
		OnProgress: func(ev ProgressEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "demo", result.Repository)
	assert.Equal(t, 3, result.FileCount)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, strings.Repeat("a", 40), result.CommitSha)
	assert.Empty(t, result.Errors)
	assert.Len(t, f.vectors.added, 3)

	record := f.meta.mustGet("demo")
	assert.Equal(t, metadata.StatusReady, record.Status)
	assert.Equal(t, "https://github.com/acme/demo", record.URL)
	assert.Equal(t, "main", record.Branch)
	assert.Equal(t, 3, record.FileCount)
	assert.Equal(t, 3, record.ChunkCount)
	assert.Equal(t, result.CommitSha, record.LastIndexedCommitSha)

	// Phases arrive in order and finish at 100.
	require.NotEmpty(t, events)
	last := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percentage, last)
		last = ev.Percentage
		assert.Equal(t, "demo", ev.Repository)
	}
	assert.Equal(t, PhaseComplete, events[len(events)-1].Phase)
	assert.Equal(t, 100, events[len(events)-1].Percentage)
}

func TestIngest_InvalidURL(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, nil)
	_, err := f.pipeline.Ingest(context.Background(), "ftp://nope/a/b", IngestOptions{})
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestIngest_AlreadyExists(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, map[string]string{"a.ts": "x\n"})
	require.NoError(t, f.meta.Save(&metadata.RepositoryRecord{Name: "demo"}))

	_, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestIngest_ForceRebuilds(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, map[string]string{"a.ts": "const a = 1\n"})
	require.NoError(t, f.meta.Save(&metadata.RepositoryRecord{Name: "demo", FileCount: 99}))
	f.vectors.collections["demo"] = true

	result, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.FileCount)
	assert.Equal(t, 1, f.meta.mustGet("demo").FileCount)
}

func TestIngest_CloneFailureIsFailedResult(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, nil)
	f.git.cloneErr = errors.New("authentication failed")

	result, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{})
	require.NoError(t, err, "operational failures do not raise")

	assert.Equal(t, StatusFailed, result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Error, "authentication failed")
}

func TestIngest_CollectionFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, map[string]string{"a.ts": "x\n"})
	f.vectors.createErr = errors.New("store unavailable")

	result, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, f.vectors.added)
}

func TestIngest_UnreadableFileIsPerFileError(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, map[string]string{
		"good.ts": "const a = 1\n",
		"bad.ts":  "const b = 2\n",
	})
	realRead := f.pipeline.readFile
	f.pipeline.readFile = func(path string) ([]byte, error) {
		if strings.HasSuffix(path, "bad.ts") {
			return nil, errors.New("permission denied")
		}
		return realRead(path)
	}

	result, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, 1, result.FileCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad.ts", result.Errors[0].Path)

	record := f.meta.mustGet("demo")
	assert.Equal(t, metadata.StatusError, record.Status)
	assert.Contains(t, record.ErrorMessage, "1 error")
}

func TestIngest_PanickingProgressListener(t *testing.T) {
	t.Parallel()

	f := newIngestFixture(t, map[string]string{"a.ts": "const a = 1\n"})
	result, err := f.pipeline.Ingest(context.Background(), "https://github.com/acme/demo", IngestOptions{
		OnProgress: func(ProgressEvent) { panic("listener bug") },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
}
