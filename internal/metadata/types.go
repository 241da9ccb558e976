package metadata

import "time"

// RepositoryStatus is the lifecycle state of an indexed repository.
type RepositoryStatus string

const (
	StatusIndexing RepositoryStatus = "indexing"
	StatusReady    RepositoryStatus = "ready"
	StatusError    RepositoryStatus = "error"
)

// UpdateStatus classifies the outcome of one incremental update.
type UpdateStatus string

const (
	UpdateSuccess UpdateStatus = "success"
	UpdatePartial UpdateStatus = "partial"
	UpdateFailed  UpdateStatus = "failed"
)

// RepositoryRecord is the durable per-repository metadata document.
// Counters reflect what is persisted in the vector collection as of the
// last completed operation.
type RepositoryRecord struct {
	Name                 string               `json:"name"`
	URL                  string               `json:"url"`
	Branch               string               `json:"branch"`
	LocalPath            string               `json:"local_path"`
	CollectionName       string               `json:"collection_name"`
	FileCount            int                  `json:"file_count"`
	ChunkCount           int                  `json:"chunk_count"`
	LastIndexedAt        time.Time            `json:"last_indexed_at"`
	LastIndexedCommitSha string               `json:"last_indexed_commit_sha,omitempty"`
	IndexDurationMs      int64                `json:"index_duration_ms"`
	Status               RepositoryStatus     `json:"status"`
	ErrorMessage         string               `json:"error_message,omitempty"`
	IncludeExtensions    []string             `json:"include_extensions,omitempty"`
	ExcludePatterns      []string             `json:"exclude_patterns,omitempty"`
	IncrementalUpdates   int                  `json:"incremental_update_count"`
	LastUpdateAt         *time.Time           `json:"last_incremental_update_at,omitempty"`
	UpdateInProgress     bool                 `json:"update_in_progress"`
	UpdateStartedAt      *time.Time           `json:"update_started_at,omitempty"`
	UpdateHistory        []UpdateHistoryEntry `json:"update_history,omitempty"`
}

// UpdateHistoryEntry records one coordinator-driven incremental update,
// newest first in RepositoryRecord.UpdateHistory.
type UpdateHistoryEntry struct {
	Timestamp      time.Time    `json:"timestamp"`
	PreviousCommit string       `json:"previous_commit"`
	NewCommit      string       `json:"new_commit"`
	FilesAdded     int          `json:"files_added"`
	FilesModified  int          `json:"files_modified"`
	FilesDeleted   int          `json:"files_deleted"`
	ChunksUpserted int          `json:"chunks_upserted"`
	ChunksDeleted  int          `json:"chunks_deleted"`
	DurationMs     int64        `json:"duration_ms"`
	ErrorCount     int          `json:"error_count"`
	Status         UpdateStatus `json:"status"`
}

// PushHistory prepends entry to the record's history, pruning oldest entries
// beyond limit. History is newest-first by construction.
func (r *RepositoryRecord) PushHistory(entry UpdateHistoryEntry, limit int) {
	history := make([]UpdateHistoryEntry, 0, len(r.UpdateHistory)+1)
	history = append(history, entry)
	history = append(history, r.UpdateHistory...)
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	r.UpdateHistory = history
}

// Clone returns a deep copy so callers can mutate records without racing
// the store's in-memory state.
func (r *RepositoryRecord) Clone() *RepositoryRecord {
	out := *r
	if r.LastUpdateAt != nil {
		t := *r.LastUpdateAt
		out.LastUpdateAt = &t
	}
	if r.UpdateStartedAt != nil {
		t := *r.UpdateStartedAt
		out.UpdateStartedAt = &t
	}
	out.IncludeExtensions = append([]string(nil), r.IncludeExtensions...)
	out.ExcludePatterns = append([]string(nil), r.ExcludePatterns...)
	out.UpdateHistory = append([]UpdateHistoryEntry(nil), r.UpdateHistory...)
	return &out
}
