package indexer

import (
	"errors"
	"fmt"
	"time"
)

// Pre-flight errors. These are the only errors the orchestrator's public
// entry points return directly; everything operational is reported through
// result objects instead.
var (
	ErrAlreadyExists           = errors.New("repository is already indexed")
	ErrNotFound                = errors.New("repository is not indexed")
	ErrInvalidURL              = errors.New("invalid repository URL")
	ErrIndexingInProgress      = errors.New("another indexing operation is in progress")
	ErrMissingCommitSha        = errors.New("repository has no recorded commit sha")
	ErrConcurrentUpdate        = errors.New("an update for this repository is already in progress")
	ErrChangeThresholdExceeded = errors.New("too many changed files for an incremental update")
	ErrForcePushDetected       = errors.New("force push detected, run a full re-index")
)

// ConcurrentUpdateError wraps ErrConcurrentUpdate with the start time of the
// operation currently holding the lease.
type ConcurrentUpdateError struct {
	Repository string
	StartedAt  time.Time
}

func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("%v: %s (started %s)", ErrConcurrentUpdate, e.Repository, e.StartedAt.Format(time.RFC3339))
}

func (e *ConcurrentUpdateError) Unwrap() error { return ErrConcurrentUpdate }

// ThresholdError wraps ErrChangeThresholdExceeded with the counts involved.
type ThresholdError struct {
	Files     int
	Threshold int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%v: %d files changed, threshold is %d", ErrChangeThresholdExceeded, e.Files, e.Threshold)
}

func (e *ThresholdError) Unwrap() error { return ErrChangeThresholdExceeded }

// PullError wraps a local git pull failure.
type PullError struct {
	Repository string
	Err        error
}

func (e *PullError) Error() string {
	return fmt.Sprintf("git pull failed for %s: %v", e.Repository, e.Err)
}

func (e *PullError) Unwrap() error { return e.Err }
