package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reposeek/reposeek/internal/config"
	"github.com/reposeek/reposeek/internal/forge"
	"github.com/reposeek/reposeek/internal/git"
	"github.com/reposeek/reposeek/internal/metadata"
)

// PullFunc fast-forwards a repository working tree. Replaceable in tests.
type PullFunc func(ctx context.Context, dir, branch string) error

// Coordinator drives one incremental update per repository: remote head
// check, commit comparison, threshold gate, local pull, pipeline, metadata
// finalization. The record's updateInProgress flag is the durable lease;
// it is set before the first remote call and cleared on every exit path.
type Coordinator struct {
	meta     MetadataStore
	forge    forge.Client
	pipeline *UpdatePipeline
	pull     PullFunc
	cfg      *config.Config
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewCoordinator wires a coordinator. gitOps provides the default pull
// implementation; SetPullFunc replaces it in tests.
func NewCoordinator(
	meta MetadataStore,
	forgeClient forge.Client,
	pipeline *UpdatePipeline,
	gitOps git.Operations,
	cfg *config.Config,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		meta:     meta,
		forge:    forgeClient,
		pipeline: pipeline,
		pull:     gitOps.Pull,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetPullFunc replaces the local-pull step.
func (c *Coordinator) SetPullFunc(fn PullFunc) { c.pull = fn }

// Update runs one incremental update for the named repository.
//
// Pre-flight errors (NotFound, MissingCommitSha, ConcurrentUpdate, invalid
// URL, threshold, force-push, pull) are returned as errors; pipeline-level
// failures surface through the result instead. Whatever the exit path, the
// in-progress lease is cleared before returning.
func (c *Coordinator) Update(ctx context.Context, name string) (*UpdateResult, error) {
	started := c.now()
	correlationID := c.newID()
	logger := c.logger.With("repository", name, "correlation_id", correlationID)

	// Begin: load, validate, take the lease.
	record, err := c.meta.Get(name)
	if err != nil {
		if errors.Is(err, metadata.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	if record.LastIndexedCommitSha == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCommitSha, name)
	}

	// The store performs the in-progress check and the flagged write as one
	// atomic step, so of two racing callers exactly one gets past this line.
	record, err = c.meta.AcquireLease(name, c.now())
	if err != nil {
		var held *metadata.LeaseHeldError
		if errors.As(err, &held) {
			return nil, &ConcurrentUpdateError{Repository: name, StartedAt: held.StartedAt}
		}
		return nil, fmt.Errorf("failed to persist update lease: %w", err)
	}

	result, err := c.run(ctx, record, correlationID, started, logger)

	// Finally: clear the lease. For the success path run() already cleared
	// it in the finalization write; clearing again is harmless and keeps
	// the guarantee unconditional.
	if clearErr := c.clearLease(name); clearErr != nil {
		logger.Error("failed to clear update lease", "error", clearErr)
		if err == nil {
			err = clearErr
		}
	}
	return result, err
}

// run performs everything between taking and clearing the lease.
func (c *Coordinator) run(ctx context.Context, record *metadata.RepositoryRecord, correlationID string, started time.Time, logger *slog.Logger) (*UpdateResult, error) {
	ref, err := forge.ParseRepoURL(record.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	// Checking remote.
	head, err := c.forge.GetHeadCommit(ctx, ref.Owner, ref.Name, record.Branch, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve remote head: %w", err)
	}
	if head.SHA == record.LastIndexedCommitSha {
		logger.Info("repository is up to date", "commit", head.SHA)
		return &UpdateResult{
			Status:     StatusNoChanges,
			CommitSha:  head.SHA,
			DurationMs: c.now().Sub(started).Milliseconds(),
		}, nil
	}

	// Comparing. A NotFound here means the base commit vanished from remote
	// history: the branch was force-pushed.
	comparison, err := c.forge.CompareCommits(ctx, ref.Owner, ref.Name, record.LastIndexedCommitSha, head.SHA, correlationID)
	if err != nil {
		if errors.Is(err, forge.ErrNotFound) {
			return nil, fmt.Errorf("%w: base commit %s is gone from %s", ErrForcePushDetected, record.LastIndexedCommitSha, record.Name)
		}
		return nil, fmt.Errorf("failed to compare commits: %w", err)
	}

	// Threshold gate: the threshold value itself is accepted.
	threshold := c.cfg.Updates.ChangeFileThreshold
	if threshold <= 0 {
		threshold = 500
	}
	if len(comparison.Files) > threshold {
		return nil, &ThresholdError{Files: len(comparison.Files), Threshold: threshold}
	}

	// Pulling.
	if err := c.pull(ctx, record.LocalPath, record.Branch); err != nil {
		return nil, &PullError{Repository: record.Name, Err: err}
	}

	// Applying.
	changes := make([]FileChange, 0, len(comparison.Files))
	for _, f := range comparison.Files {
		changes = append(changes, FileChange{
			Path:         f.Path,
			Status:       ChangeStatus(f.Status),
			PreviousPath: f.PreviousPath,
		})
	}
	pipelineResult := c.pipeline.Apply(ctx, changes, UpdateOptions{
		Repository:        record.Name,
		LocalPath:         record.LocalPath,
		CollectionName:    record.CollectionName,
		IncludeExtensions: record.IncludeExtensions,
		ExcludePatterns:   record.ExcludePatterns,
		CorrelationID:     correlationID,
	})

	// Finalizing.
	duration := c.now().Sub(started)
	updateStatus := classifyUpdate(pipelineResult)

	fresh, err := c.meta.Get(record.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to reload record for finalization: %w", err)
	}
	fresh.FileCount += pipelineResult.Stats.FilesAdded - pipelineResult.Stats.FilesDeleted
	fresh.ChunkCount += pipelineResult.Stats.ChunksUpserted - pipelineResult.Stats.ChunksDeleted
	fresh.LastIndexedCommitSha = head.SHA
	fresh.LastIndexedAt = c.now()
	fresh.IncrementalUpdates++
	updatedAt := c.now()
	fresh.LastUpdateAt = &updatedAt
	if len(pipelineResult.Errors) == 0 {
		fresh.Status = metadata.StatusReady
		fresh.ErrorMessage = ""
	} else {
		fresh.Status = metadata.StatusError
		fresh.ErrorMessage = fmt.Sprintf("incremental update completed with %d error(s)", len(pipelineResult.Errors))
	}

	historyLimit := c.cfg.Updates.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	fresh.PushHistory(metadata.UpdateHistoryEntry{
		Timestamp:      c.now(),
		PreviousCommit: record.LastIndexedCommitSha,
		NewCommit:      head.SHA,
		FilesAdded:     pipelineResult.Stats.FilesAdded,
		FilesModified:  pipelineResult.Stats.FilesModified,
		FilesDeleted:   pipelineResult.Stats.FilesDeleted,
		ChunksUpserted: pipelineResult.Stats.ChunksUpserted,
		ChunksDeleted:  pipelineResult.Stats.ChunksDeleted,
		DurationMs:     duration.Milliseconds(),
		ErrorCount:     len(pipelineResult.Errors),
		Status:         updateStatus,
	}, historyLimit)

	// The lease is cleared in the same write as the finalized counters.
	fresh.UpdateInProgress = false
	fresh.UpdateStartedAt = nil
	if err := c.meta.Save(fresh); err != nil {
		return nil, fmt.Errorf("failed to finalize repository record: %w", err)
	}

	logger.Info("incremental update finished",
		"status", string(updateStatus),
		"commit", head.SHA,
		"files_added", pipelineResult.Stats.FilesAdded,
		"files_modified", pipelineResult.Stats.FilesModified,
		"files_deleted", pipelineResult.Stats.FilesDeleted,
		"errors", len(pipelineResult.Errors))

	status := StatusUpdated
	if updateStatus == metadata.UpdateFailed {
		status = StatusFailed
	}
	return &UpdateResult{
		Status:        status,
		CommitSha:     head.SHA,
		CommitMessage: head.Message,
		Stats:         pipelineResult.Stats,
		Errors:        pipelineResult.Errors,
		DurationMs:    duration.Milliseconds(),
	}, nil
}

// classifyUpdate maps a pipeline result onto the history-entry status.
// failed means no change succeeded, not merely "many errors".
func classifyUpdate(result *PipelineResult) metadata.UpdateStatus {
	switch {
	case len(result.Errors) == 0:
		return metadata.UpdateSuccess
	case result.FilesSucceeded > 0:
		return metadata.UpdatePartial
	default:
		return metadata.UpdateFailed
	}
}

// clearLease resets the in-progress flag, tolerating a record that has
// disappeared in the meantime.
func (c *Coordinator) clearLease(name string) error {
	record, err := c.meta.Get(name)
	if err != nil {
		if errors.Is(err, metadata.ErrNotExist) {
			return nil
		}
		return err
	}
	if !record.UpdateInProgress && record.UpdateStartedAt == nil {
		return nil
	}
	record.UpdateInProgress = false
	record.UpdateStartedAt = nil
	return c.meta.Save(record)
}
