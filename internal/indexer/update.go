package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/reposeek/reposeek/internal/chunk"
	"github.com/reposeek/reposeek/internal/config"
	"github.com/reposeek/reposeek/internal/embed"
	"github.com/reposeek/reposeek/internal/graphstore"
	"github.com/reposeek/reposeek/internal/vectorstore"
)

// UpdateOptions configures one incremental update run.
type UpdateOptions struct {
	Repository        string
	LocalPath         string
	CollectionName    string
	IncludeExtensions []string
	ExcludePatterns   []string
	CorrelationID     string
}

// UpdatePipeline applies a list of file changes to the vector store and,
// when configured, to the graph store.
type UpdatePipeline struct {
	vectors  VectorStore
	provider embed.Provider
	graph    GraphService // nil disables graph side-effects
	chunker  chunk.Chunker
	filter   *FileFilter
	cfg      *config.Config
	logger   *slog.Logger

	readFile func(string) ([]byte, error)
	statFile func(string) (os.FileInfo, error)
	now      func() time.Time
}

// NewUpdatePipeline wires an update pipeline. graph may be nil.
func NewUpdatePipeline(
	vectors VectorStore,
	provider embed.Provider,
	graph GraphService,
	filter *FileFilter,
	cfg *config.Config,
	logger *slog.Logger,
) *UpdatePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdatePipeline{
		vectors:  vectors,
		provider: provider,
		graph:    graph,
		chunker:  chunk.NewLineChunker(0),
		filter:   filter,
		cfg:      cfg,
		logger:   logger,
		readFile: os.ReadFile,
		statFile: os.Stat,
		now:      time.Now,
	}
}

// Apply runs the pipeline over changes. Errors are collected per file or
// per embedding sub-batch; Apply itself fails only on invariant violations.
func (p *UpdatePipeline) Apply(ctx context.Context, changes []FileChange, opts UpdateOptions) *PipelineResult {
	started := p.now()
	result := &PipelineResult{}
	logger := p.logger.With("repository", opts.Repository, "correlation_id", opts.CorrelationID)

	patterns := append(append([]string(nil), config.DefaultExcludePatterns...), opts.ExcludePatterns...)
	surviving := make([]FileChange, 0, len(changes))
	for _, change := range changes {
		// Renames are filtered on the new path; the old path's chunks are
		// still removed when the change survives.
		if p.filter.Allow(change.Path, opts.IncludeExtensions, patterns) {
			surviving = append(surviving, change)
		}
	}
	result.FilesAttempted = len(surviving)
	logger.Info("applying incremental changes", "total", len(changes), "surviving", len(surviving))

	if p.graph != nil {
		result.Stats.Graph = &GraphStats{}
	}

	// pendingChunks accumulates chunks across all surviving changes; they
	// are embedded and stored in sub-batches afterwards.
	var pendingChunks []chunk.Chunk

	for _, change := range surviving {
		switch change.Status {
		case ChangeAdded:
			chunks, err := p.chunkLocalFile(opts, change.Path)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: err.Error()})
				continue
			}
			pendingChunks = append(pendingChunks, chunks...)
			result.Stats.FilesAdded++
			p.graphIngest(opts, change.Path, "", result)

		case ChangeModified:
			deleted, err := p.vectors.DeleteDocumentsByFilePath(ctx, opts.CollectionName, opts.Repository, change.Path)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: err.Error()})
				continue
			}
			result.Stats.ChunksDeleted += deleted

			chunks, err := p.chunkLocalFile(opts, change.Path)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: err.Error()})
				continue
			}
			pendingChunks = append(pendingChunks, chunks...)
			result.Stats.FilesModified++
			p.graphIngest(opts, change.Path, change.Path, result)

		case ChangeDeleted:
			deleted, err := p.vectors.DeleteDocumentsByFilePath(ctx, opts.CollectionName, opts.Repository, change.Path)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: err.Error()})
				continue
			}
			result.Stats.ChunksDeleted += deleted
			result.Stats.FilesDeleted++
			p.graphDelete(opts, change.Path, result)

		case ChangeRenamed:
			if change.PreviousPath == "" {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: "renamed change is missing its previous path"})
				continue
			}
			deleted, err := p.vectors.DeleteDocumentsByFilePath(ctx, opts.CollectionName, opts.Repository, change.PreviousPath)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: err.Error()})
				continue
			}
			result.Stats.ChunksDeleted += deleted

			chunks, err := p.chunkLocalFile(opts, change.Path)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: change.Path, Error: err.Error()})
				continue
			}
			pendingChunks = append(pendingChunks, chunks...)
			// Renames are modifications semantically.
			result.Stats.FilesModified++
			p.graphIngest(opts, change.Path, change.PreviousPath, result)

		default:
			result.Errors = append(result.Errors, FileError{Path: change.Path, Error: fmt.Sprintf("unknown change status %q", change.Status)})
		}
	}

	p.embedAndStore(ctx, pendingChunks, opts, result)

	result.FilesSucceeded = result.FilesAttempted - len(perFileErrorPaths(result.Errors))
	result.Stats.DurationMs = p.now().Sub(started).Milliseconds()
	logger.Info("incremental changes applied",
		"upserted", result.Stats.ChunksUpserted,
		"deleted", result.Stats.ChunksDeleted,
		"errors", len(result.Errors))
	return result
}

// embedAndStore pushes accumulated chunks through the provider and vector
// store in sub-batches. A sub-batch failure aborts that sub-batch only and
// records one synthetic batch error.
func (p *UpdatePipeline) embedAndStore(ctx context.Context, chunks []chunk.Chunk, opts UpdateOptions, result *PipelineResult) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	batchErrs := embed.EmbedBatched(ctx, p.provider, texts, p.cfg.Indexing.EmbeddingBatchSize,
		func(start int, embeddings [][]float32) error {
			sub := chunks[start : start+len(embeddings)]
			docs := make([]vectorstore.Document, len(sub))
			for i := range sub {
				docs[i] = vectorstore.Document{Chunk: sub[i], Embedding: embeddings[i]}
			}
			if err := p.vectors.UpsertDocuments(ctx, opts.CollectionName, docs); err != nil {
				return err
			}
			result.Stats.ChunksUpserted += len(sub)
			return nil
		})
	for _, err := range batchErrs {
		result.Errors = append(result.Errors, FileError{Path: batchErrorPath, Error: err.Error()})
	}
}

// chunkLocalFile reads a file from the working tree and chunks it.
func (p *UpdatePipeline) chunkLocalFile(opts UpdateOptions, rel string) ([]chunk.Chunk, error) {
	abs := filepath.Join(opts.LocalPath, filepath.FromSlash(rel))
	content, err := p.readFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	info, err := p.statFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	text := string(content)
	meta := chunk.Metadata{
		Extension:      filepath.Ext(rel),
		FileSizeBytes:  info.Size(),
		ContentHash:    chunk.ContentHash(text),
		FileModifiedAt: info.ModTime(),
	}
	return p.chunker.Chunk(opts.Repository, rel, text, meta), nil
}

// graphIngest mirrors an added/modified/renamed change into the graph.
// previousPath, when non-empty, is retracted first. Graph failures land in
// the separate graph error channel and never block the vector result.
func (p *UpdatePipeline) graphIngest(opts UpdateOptions, path, previousPath string, result *PipelineResult) {
	if p.graph == nil {
		return
	}
	stats := result.Stats.Graph

	ext := filepath.Ext(path)
	if !graphstore.StructurallySupported(ext) {
		stats.FilesSkipped++
		return
	}

	if previousPath != "" {
		del := p.graph.DeleteFileData(opts.Repository, previousPath)
		if del.Success {
			stats.NodesDeleted += -del.NodesCreated
			stats.RelationshipsDeleted += -del.RelationshipsCreated
		} else {
			stats.Errors = append(stats.Errors, FileError{Path: previousPath, Error: "graph delete failed"})
		}
	}

	content, err := p.readFile(filepath.Join(opts.LocalPath, filepath.FromSlash(path)))
	if err != nil {
		stats.Errors = append(stats.Errors, FileError{Path: path, Error: err.Error()})
		return
	}
	res := p.graph.IngestFile(opts.Repository, path, ext, string(content))
	if !res.Success {
		stats.Errors = append(stats.Errors, FileError{Path: path, Error: "graph ingest failed"})
		return
	}
	stats.NodesCreated += res.NodesCreated
	stats.RelationshipsCreated += res.RelationshipsCreated
	stats.FilesProcessed++
}

// graphDelete mirrors a deleted change into the graph.
func (p *UpdatePipeline) graphDelete(opts UpdateOptions, path string, result *PipelineResult) {
	if p.graph == nil {
		return
	}
	stats := result.Stats.Graph

	res := p.graph.DeleteFileData(opts.Repository, path)
	if !res.Success {
		stats.Errors = append(stats.Errors, FileError{Path: path, Error: "graph delete failed"})
		return
	}
	stats.NodesDeleted += -res.NodesCreated
	stats.RelationshipsDeleted += -res.RelationshipsCreated
	stats.FilesProcessed++
}

// perFileErrorPaths returns the distinct file paths with errors, excluding
// synthetic batch entries.
func perFileErrorPaths(errs []FileError) map[string]struct{} {
	paths := make(map[string]struct{})
	for _, e := range errs {
		if e.Path != batchErrorPath && e.Path != "" {
			paths[e.Path] = struct{}{}
		}
	}
	return paths
}
