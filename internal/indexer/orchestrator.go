package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/reposeek/reposeek/internal/metadata"
)

// Orchestrator fronts the pipelines: it serializes ingestion globally,
// fans progress out to listeners, and keeps repository removal away from
// in-flight work.
type Orchestrator struct {
	ingestion   *IngestionPipeline
	coordinator *Coordinator
	meta        MetadataStore
	vectors     VectorStore
	logger      *slog.Logger

	mu         sync.Mutex
	ingesting  bool
	ingestName string
	listeners  []ProgressFunc
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(
	ingestion *IngestionPipeline,
	coordinator *Coordinator,
	meta MetadataStore,
	vectors VectorStore,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		ingestion:   ingestion,
		coordinator: coordinator,
		meta:        meta,
		vectors:     vectors,
		logger:      logger,
	}
}

// AddProgressListener registers a listener for all ingestion progress.
// Listener panics are swallowed and logged.
func (o *Orchestrator) AddProgressListener(fn ProgressFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// IndexRepository runs a full ingestion. At most one ingestion runs at a
// time across the whole service.
func (o *Orchestrator) IndexRepository(ctx context.Context, url string, opts IngestOptions) (*IngestResult, error) {
	name := metadata.SanitizeName(metadata.NameFromURL(url))

	o.mu.Lock()
	if o.ingesting {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrIndexingInProgress, o.ingestName)
	}
	o.ingesting = true
	o.ingestName = name
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.ingesting = false
		o.ingestName = ""
		o.mu.Unlock()
	}()

	callerProgress := opts.OnProgress
	opts.OnProgress = func(ev ProgressEvent) {
		o.dispatch(ev)
		if callerProgress != nil {
			callerProgress(ev)
		}
	}

	return o.ingestion.Ingest(ctx, url, opts)
}

// ReindexRepository is IndexRepository with force set.
func (o *Orchestrator) ReindexRepository(ctx context.Context, url string, opts IngestOptions) (*IngestResult, error) {
	opts.Force = true
	return o.IndexRepository(ctx, url, opts)
}

// UpdateRepository runs a coordinator-driven incremental update.
func (o *Orchestrator) UpdateRepository(ctx context.Context, name string) (*UpdateResult, error) {
	return o.coordinator.Update(ctx, name)
}

// RemoveRepository deletes a repository's record, vector collection, and
// local clone. Removal of the currently ingesting repository is refused.
func (o *Orchestrator) RemoveRepository(ctx context.Context, name string) error {
	o.mu.Lock()
	if o.ingesting && o.ingestName == name {
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot remove %s while it is being indexed", ErrIndexingInProgress, name)
	}
	o.mu.Unlock()

	record, err := o.meta.Get(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := o.vectors.DeleteCollection(ctx, record.CollectionName); err != nil {
		o.logger.Warn("failed to delete vector collection", "repository", name, "error", err)
	}
	if record.LocalPath != "" {
		if err := os.RemoveAll(record.LocalPath); err != nil {
			o.logger.Warn("failed to remove local clone", "repository", name, "error", err)
		}
	}
	return o.meta.Delete(name)
}

// GetStatus returns all repository records.
func (o *Orchestrator) GetStatus() ([]*metadata.RepositoryRecord, error) {
	return o.meta.List()
}

// dispatch fans one progress event out to the listeners, isolating each.
func (o *Orchestrator) dispatch(ev ProgressEvent) {
	o.mu.Lock()
	listeners := append([]ProgressFunc(nil), o.listeners...)
	o.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					o.logger.Warn("progress listener panicked", "panic", rec)
				}
			}()
			fn(ev)
		}()
	}
}
