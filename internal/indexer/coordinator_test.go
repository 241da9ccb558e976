package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposeek/reposeek/internal/config"
	"github.com/reposeek/reposeek/internal/forge"
	"github.com/reposeek/reposeek/internal/metadata"
)

// TEST PLAN: incremental update coordinator
//
// 1. remote head equals the recorded sha: no_changes, zero stats, pipeline
//    not invoked, exactly two record writes, history untouched
// 2. more changed files than the threshold: ChangeThresholdExceeded, the
//    threshold value itself is still accepted
// 3. compare returning not-found: ForcePushDetected, lease still cleared
// 4. successful update: counters move by the deltas, history entry at
//    position 0 with status success, lease cleared in the final write
// 5. partial failure: record status error with an error summary, history
//    entry partial
// 6. begin-step validation: NotFound, MissingCommitSha, ConcurrentUpdate
// 7. pull failures wrap the underlying error
// 8. every exit path leaves updateInProgress false

const (
	baseSha = "abc1abc1abc1abc1abc1abc1abc1abc1abc1abc1"
	headSha = "def4def4def4def4def4def4def4def4def4def4"
)

type coordFixture struct {
	meta    *fakeMeta
	vectors *fakeVectors
	remote  *fakeForge
	coord   *Coordinator
	local   string
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()

	local := t.TempDir()
	meta := newFakeMeta()
	startRecord := &metadata.RepositoryRecord{
		Name:                 "demo",
		URL:                  "https://github.com/acme/demo",
		Branch:               "main",
		LocalPath:            local,
		CollectionName:       "demo",
		FileCount:            100,
		ChunkCount:           500,
		LastIndexedCommitSha: baseSha,
		Status:               metadata.StatusReady,
	}
	require.NoError(t, meta.Save(startRecord))
	meta.saves["demo"] = 0 // the seed write does not count

	vectors := newFakeVectors()
	filter, err := NewFileFilter()
	require.NoError(t, err)

	cfg := config.Default()
	pipeline := NewUpdatePipeline(vectors, newMockEmbedder(), nil, filter, cfg, testLogger())
	remote := &fakeForge{head: &forge.Commit{SHA: headSha, Message: "tip"}}

	coord := &Coordinator{
		meta:     meta,
		forge:    remote,
		pipeline: pipeline,
		pull:     func(ctx context.Context, dir, branch string) error { return nil },
		cfg:      cfg,
		logger:   testLogger(),
		now:      time.Now,
		newID:    func() string { return "corr-1" },
	}

	return &coordFixture{meta: meta, vectors: vectors, remote: remote, coord: coord, local: local}
}

func (f *coordFixture) writeLocal(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.local, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCoordinator_NoChanges(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.remote.head = &forge.Commit{SHA: baseSha}

	result, err := f.coord.Update(context.Background(), "demo")
	require.NoError(t, err)

	assert.Equal(t, StatusNoChanges, result.Status)
	assert.Equal(t, baseSha, result.CommitSha)
	assert.Zero(t, result.Stats.FilesAdded)
	assert.Zero(t, result.Stats.ChunksUpserted)
	assert.Zero(t, f.remote.compareCalls, "comparison must not run")
	assert.Empty(t, f.vectors.upserted, "pipeline must not run")

	// Set lease, clear lease: exactly two writes.
	assert.Equal(t, 2, f.meta.saveCount("demo"))

	record := f.meta.mustGet("demo")
	assert.False(t, record.UpdateInProgress)
	assert.Nil(t, record.UpdateStartedAt)
	assert.Empty(t, record.UpdateHistory)
	assert.Equal(t, baseSha, record.LastIndexedCommitSha)
}

func TestCoordinator_ThresholdExceeded(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	files := make([]forge.ChangedFile, 501)
	for i := range files {
		files[i] = forge.ChangedFile{Path: fmt.Sprintf("src/f%d.ts", i), Status: forge.FileAdded}
	}
	f.remote.comparison = &forge.Comparison{BaseSHA: baseSha, HeadSHA: headSha, Files: files}

	_, err := f.coord.Update(context.Background(), "demo")
	require.ErrorIs(t, err, ErrChangeThresholdExceeded)

	var thresholdErr *ThresholdError
	require.ErrorAs(t, err, &thresholdErr)
	assert.Equal(t, 501, thresholdErr.Files)
	assert.Equal(t, 500, thresholdErr.Threshold)

	assert.Equal(t, 2, f.meta.saveCount("demo"))
	assert.Empty(t, f.vectors.upserted)

	record := f.meta.mustGet("demo")
	assert.False(t, record.UpdateInProgress)
	assert.Empty(t, record.UpdateHistory)
}

func TestCoordinator_ThresholdBoundaryAccepted(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	// Exactly the threshold: accepted. All files are deletions so no local
	// reads are needed.
	files := make([]forge.ChangedFile, 500)
	for i := range files {
		files[i] = forge.ChangedFile{Path: fmt.Sprintf("src/f%d.ts", i), Status: forge.FileDeleted}
	}
	f.remote.comparison = &forge.Comparison{BaseSHA: baseSha, HeadSHA: headSha, Files: files}

	result, err := f.coord.Update(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, 500, result.Stats.FilesDeleted)
}

func TestCoordinator_ForcePushDetected(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.remote.compareErr = fmt.Errorf("wrapped: %w", forge.ErrNotFound)

	_, err := f.coord.Update(context.Background(), "demo")
	require.ErrorIs(t, err, ErrForcePushDetected)

	record := f.meta.mustGet("demo")
	assert.False(t, record.UpdateInProgress)
	assert.Nil(t, record.UpdateStartedAt)
}

func TestCoordinator_SuccessfulUpdate(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.writeLocal(t, "src/new.ts", "export const fresh = 1\n")
	f.writeLocal(t, "src/updated.ts", "export const changed = 2\n")
	f.vectors.deleteCounts["src/updated.ts"] = 3
	f.vectors.deleteCounts["src/old.ts"] = 2

	f.remote.comparison = &forge.Comparison{
		BaseSHA: baseSha,
		HeadSHA: headSha,
		Files: []forge.ChangedFile{
			{Path: "src/new.ts", Status: forge.FileAdded},
			{Path: "src/updated.ts", Status: forge.FileModified},
			{Path: "src/old.ts", Status: forge.FileDeleted},
		},
	}

	result, err := f.coord.Update(context.Background(), "demo")
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, headSha, result.CommitSha)
	assert.Equal(t, 1, result.Stats.FilesAdded)
	assert.Equal(t, 1, result.Stats.FilesModified)
	assert.Equal(t, 1, result.Stats.FilesDeleted)
	assert.Equal(t, 2, result.Stats.ChunksUpserted) // one chunk per small file
	assert.Equal(t, 5, result.Stats.ChunksDeleted)
	assert.Empty(t, result.Errors)

	record := f.meta.mustGet("demo")
	assert.Equal(t, 100, record.FileCount)  // 100 + 1 - 1
	assert.Equal(t, 497, record.ChunkCount) // 500 + 2 - 5
	assert.Equal(t, 1, record.IncrementalUpdates)
	assert.Equal(t, headSha, record.LastIndexedCommitSha)
	assert.Equal(t, metadata.StatusReady, record.Status)
	assert.False(t, record.UpdateInProgress)
	assert.Nil(t, record.UpdateStartedAt)

	require.Len(t, record.UpdateHistory, 1)
	entry := record.UpdateHistory[0]
	assert.Equal(t, metadata.UpdateSuccess, entry.Status)
	assert.Equal(t, baseSha, entry.PreviousCommit)
	assert.Equal(t, headSha, entry.NewCommit)
	assert.Equal(t, 0, entry.ErrorCount)
}

func TestCoordinator_PartialFailure(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.writeLocal(t, "src/new.ts", "export const fresh = 1\n")
	// src/updated.ts intentionally missing: its read fails.

	f.remote.comparison = &forge.Comparison{
		BaseSHA: baseSha,
		HeadSHA: headSha,
		Files: []forge.ChangedFile{
			{Path: "src/new.ts", Status: forge.FileAdded},
			{Path: "src/updated.ts", Status: forge.FileModified},
			{Path: "src/old.ts", Status: forge.FileDeleted},
		},
	}

	result, err := f.coord.Update(context.Background(), "demo")
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "src/updated.ts", result.Errors[0].Path)

	record := f.meta.mustGet("demo")
	assert.Equal(t, metadata.StatusError, record.Status)
	assert.Contains(t, record.ErrorMessage, "1 error")
	assert.False(t, record.UpdateInProgress)

	require.Len(t, record.UpdateHistory, 1)
	assert.Equal(t, metadata.UpdatePartial, record.UpdateHistory[0].Status)
	assert.Equal(t, 1, record.UpdateHistory[0].ErrorCount)
}

func TestCoordinator_UnknownRepository(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	_, err := f.coord.Update(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_MissingCommitSha(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	record := f.meta.mustGet("demo")
	record.LastIndexedCommitSha = ""
	require.NoError(t, f.meta.Save(record))

	_, err := f.coord.Update(context.Background(), "demo")
	require.ErrorIs(t, err, ErrMissingCommitSha)
}

func TestCoordinator_ConcurrentUpdate(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	record := f.meta.mustGet("demo")
	startedAt := time.Now().Add(-time.Minute)
	record.UpdateInProgress = true
	record.UpdateStartedAt = &startedAt
	require.NoError(t, f.meta.Save(record))

	_, err := f.coord.Update(context.Background(), "demo")
	require.ErrorIs(t, err, ErrConcurrentUpdate)

	var concurrent *ConcurrentUpdateError
	require.ErrorAs(t, err, &concurrent)
	assert.WithinDuration(t, startedAt, concurrent.StartedAt, time.Second)
}

func TestCoordinator_RacingCallersSerialize(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.remote.head = &forge.Commit{SHA: baseSha}
	f.remote.headEntered = make(chan struct{}, 1)
	f.remote.headRelease = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.coord.Update(context.Background(), "demo")
		firstDone <- err
	}()

	// The first caller holds its lease inside the head-commit call; the
	// second caller must be turned away, not proceed alongside it.
	<-f.remote.headEntered
	_, err := f.coord.Update(context.Background(), "demo")
	require.ErrorIs(t, err, ErrConcurrentUpdate)

	var concurrent *ConcurrentUpdateError
	require.ErrorAs(t, err, &concurrent)
	assert.Equal(t, "demo", concurrent.Repository)

	close(f.remote.headRelease)
	require.NoError(t, <-firstDone)

	record := f.meta.mustGet("demo")
	assert.False(t, record.UpdateInProgress)
	assert.Nil(t, record.UpdateStartedAt)
}

func TestCoordinator_PullFailure(t *testing.T) {
	t.Parallel()

	f := newCoordFixture(t)
	f.remote.comparison = &forge.Comparison{
		BaseSHA: baseSha,
		HeadSHA: headSha,
		Files:   []forge.ChangedFile{{Path: "src/a.ts", Status: forge.FileDeleted}},
	}
	pullFailure := errors.New("remote hung up")
	f.coord.SetPullFunc(func(ctx context.Context, dir, branch string) error { return pullFailure })

	_, err := f.coord.Update(context.Background(), "demo")

	var pullErr *PullError
	require.ErrorAs(t, err, &pullErr)
	assert.ErrorIs(t, err, pullFailure)

	record := f.meta.mustGet("demo")
	assert.False(t, record.UpdateInProgress)
	assert.Empty(t, record.UpdateHistory)
}
