package indexer

import (
	"fmt"
	"time"

	"github.com/reposeek/reposeek/internal/metadata"
)

// InterruptedUpdate describes a repository whose update lease survived a
// crash: the flag is set on disk but no operation is running.
type InterruptedUpdate struct {
	RepositoryName  string
	UpdateStartedAt time.Time
	ElapsedMs       int64
	Status          metadata.RepositoryStatus
	LastKnownCommit string
}

// Detector finds interrupted updates at service start. It never changes
// state on its own; the caller picks a remediation.
type Detector struct {
	meta MetadataStore
	now  func() time.Time
}

// NewDetector creates a detector over the metadata store.
func NewDetector(meta MetadataStore) *Detector {
	return &Detector{meta: meta, now: time.Now}
}

// DetectInterrupted returns every repository with a live update lease.
func (d *Detector) DetectInterrupted() ([]InterruptedUpdate, error) {
	records, err := d.meta.List()
	if err != nil {
		return nil, err
	}

	var interrupted []InterruptedUpdate
	for _, record := range records {
		if !record.UpdateInProgress {
			continue
		}
		info := InterruptedUpdate{
			RepositoryName:  record.Name,
			Status:          record.Status,
			LastKnownCommit: record.LastIndexedCommitSha,
		}
		if record.UpdateStartedAt != nil {
			info.UpdateStartedAt = *record.UpdateStartedAt
			info.ElapsedMs = d.now().Sub(info.UpdateStartedAt).Milliseconds()
		}
		interrupted = append(interrupted, info)
	}
	return interrupted, nil
}

// ClearFlag resets the lease and leaves every other field untouched.
func (d *Detector) ClearFlag(name string) error {
	record, err := d.meta.Get(name)
	if err != nil {
		return err
	}
	record.UpdateInProgress = false
	record.UpdateStartedAt = nil
	return d.meta.Save(record)
}

// MarkAsInterrupted resets the lease and flags the repository as errored
// so operators know a forced re-index is needed.
func (d *Detector) MarkAsInterrupted(name string) error {
	record, err := d.meta.Get(name)
	if err != nil {
		return err
	}
	record.UpdateInProgress = false
	record.UpdateStartedAt = nil
	record.Status = metadata.StatusError
	record.ErrorMessage = fmt.Sprintf("update interrupted by a crash; run a forced re-index of %s", name)
	return d.meta.Save(record)
}
