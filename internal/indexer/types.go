// Package indexer contains the indexing pipelines: full ingestion of a
// repository, incremental updates driven by commit comparison, the update
// coordinator with its durable in-progress lease, crash detection, and the
// orchestrator that fronts them all.
package indexer

import "time"

// ChangeStatus classifies one file change in an incremental update.
type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
	ChangeRenamed  ChangeStatus = "renamed"
)

// FileChange is one file delta to apply. PreviousPath is required iff
// Status == ChangeRenamed.
type FileChange struct {
	Path         string
	Status       ChangeStatus
	PreviousPath string
}

// FileError records a per-file or per-batch failure that did not stop the
// operation.
type FileError struct {
	Path  string
	Error string
}

// batchErrorPath is the synthetic path recorded when an embedding or
// storage failure takes out a whole sub-batch.
const batchErrorPath = "(batch embedding/storage)"

// Phase labels the stages of the ingestion pipeline for progress reporting.
type Phase string

const (
	PhaseCloning    Phase = "cloning"
	PhaseScanning   Phase = "scanning"
	PhaseProcessing Phase = "processing"
	PhaseFinalizing Phase = "finalizing"
	PhaseComplete   Phase = "complete"
)

// ProgressEvent is delivered to progress listeners during ingestion.
type ProgressEvent struct {
	Phase      Phase
	Repository string
	Percentage int
	Details    string
	Timestamp  time.Time
}

// ProgressFunc receives progress events. Panics and misbehavior in the
// callback are isolated from the pipeline.
type ProgressFunc func(ProgressEvent)

// OperationStatus classifies the outcome of an ingestion or update.
type OperationStatus string

const (
	StatusSuccess   OperationStatus = "success"
	StatusPartial   OperationStatus = "partial"
	StatusFailed    OperationStatus = "failed"
	StatusNoChanges OperationStatus = "no_changes"
	StatusUpdated   OperationStatus = "updated"
)

// IngestOptions configures one full ingestion.
type IngestOptions struct {
	Branch            string
	IncludeExtensions []string
	ExcludePatterns   []string
	Force             bool
	OnProgress        ProgressFunc
}

// IngestResult is the outcome of a full ingestion.
type IngestResult struct {
	Status     OperationStatus
	Repository string
	FileCount  int
	ChunkCount int
	DurationMs int64
	CommitSha  string
	Errors     []FileError
}

// GraphStats aggregates the optional graph side-effects of an update.
type GraphStats struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	FilesProcessed       int
	FilesSkipped         int
	Errors               []FileError
}

// UpdateStats aggregates the effects of one incremental update.
type UpdateStats struct {
	FilesAdded     int
	FilesModified  int
	FilesDeleted   int
	ChunksUpserted int
	ChunksDeleted  int
	DurationMs     int64
	Graph          *GraphStats
}

// PipelineResult is the incremental update pipeline's outcome.
type PipelineResult struct {
	Stats  UpdateStats
	Errors []FileError
	// filesAttempted counts changes that survived filtering; the coordinator
	// uses it to classify partial vs failed.
	FilesAttempted int
	FilesSucceeded int
}

// UpdateResult is the coordinator's outcome for one repository update.
type UpdateResult struct {
	Status        OperationStatus
	CommitSha     string
	CommitMessage string
	Stats         UpdateStats
	Errors        []FileError
	DurationMs    int64
}
