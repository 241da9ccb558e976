package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/reposeek/reposeek/internal/chunk"
	"github.com/reposeek/reposeek/internal/config"
	"github.com/reposeek/reposeek/internal/embed"
	"github.com/reposeek/reposeek/internal/forge"
	"github.com/reposeek/reposeek/internal/git"
	"github.com/reposeek/reposeek/internal/graphstore"
	"github.com/reposeek/reposeek/internal/metadata"
	"github.com/reposeek/reposeek/internal/vectorstore"
)

// MetadataStore is the slice of the metadata store the pipelines need.
// AcquireLease must perform its in-progress check and flagged write as one
// atomic step.
type MetadataStore interface {
	Get(name string) (*metadata.RepositoryRecord, error)
	Save(rec *metadata.RepositoryRecord) error
	Delete(name string) error
	List() ([]*metadata.RepositoryRecord, error)
	AcquireLease(name string, startedAt time.Time) (*metadata.RepositoryRecord, error)
}

// VectorStore is the slice of the vector store the pipelines need.
type VectorStore interface {
	GetOrCreateCollection(ctx context.Context, name string) error
	DeleteCollection(ctx context.Context, name string) error
	AddDocuments(ctx context.Context, collectionName string, docs []vectorstore.Document) error
	UpsertDocuments(ctx context.Context, collectionName string, docs []vectorstore.Document) error
	DeleteDocumentsByFilePath(ctx context.Context, collectionName, repository, filePath string) (int, error)
}

// GraphService is the optional structural-graph sink.
type GraphService interface {
	IngestFile(repository, filePath, extension, content string) graphstore.IngestResult
	DeleteFileData(repository, filePath string) graphstore.IngestResult
}

// IngestionPipeline builds a repository's index from scratch.
type IngestionPipeline struct {
	meta     MetadataStore
	vectors  VectorStore
	provider embed.Provider
	gitOps   git.Operations
	graph    GraphService // nil disables graph side-effects
	chunker  chunk.Chunker
	filter   *FileFilter
	cfg      *config.Config
	logger   *slog.Logger

	// cloneRoot is the directory repository working trees live under.
	cloneRoot string

	readFile func(string) ([]byte, error)
	statFile func(string) (os.FileInfo, error)
	now      func() time.Time
}

// NewIngestionPipeline wires an ingestion pipeline. graph may be nil.
func NewIngestionPipeline(
	meta MetadataStore,
	vectors VectorStore,
	provider embed.Provider,
	gitOps git.Operations,
	graph GraphService,
	filter *FileFilter,
	cfg *config.Config,
	cloneRoot string,
	logger *slog.Logger,
) *IngestionPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionPipeline{
		meta:      meta,
		vectors:   vectors,
		provider:  provider,
		gitOps:    gitOps,
		graph:     graph,
		chunker:   chunk.NewLineChunker(0),
		filter:    filter,
		cfg:       cfg,
		logger:    logger,
		cloneRoot: cloneRoot,
		readFile:  os.ReadFile,
		statFile:  os.Stat,
		now:       time.Now,
	}
}

// Ingest runs the full pipeline. Pre-flight failures (invalid URL, already
// exists) are returned as errors; everything after pre-flight collapses
// into a failed result instead.
func (p *IngestionPipeline) Ingest(ctx context.Context, url string, opts IngestOptions) (*IngestResult, error) {
	if _, err := forge.ParseRepoURL(url); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	name := metadata.SanitizeName(metadata.NameFromURL(url))
	if _, err := p.meta.Get(name); err == nil && !opts.Force {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	} else if err != nil && !errors.Is(err, metadata.ErrNotExist) {
		return nil, err
	}

	started := p.now()
	result := &IngestResult{Status: StatusFailed, Repository: name}
	progress := newProgressReporter(name, opts.OnProgress, p.logger)

	localPath := filepath.Join(p.cloneRoot, name)

	// Clone.
	progress.report(PhaseCloning, 0, "cloning "+url)
	if opts.Force {
		if err := os.RemoveAll(localPath); err != nil {
			return p.failed(result, started, fmt.Errorf("failed to clear previous clone: %w", err)), nil
		}
	}
	if err := p.gitOps.Clone(ctx, url, opts.Branch, localPath); err != nil {
		return p.failed(result, started, err), nil
	}
	progress.report(PhaseCloning, 10, "clone complete")

	commitSha, err := p.gitOps.HeadSHA(ctx, localPath)
	if err != nil {
		return p.failed(result, started, err), nil
	}
	result.CommitSha = commitSha
	branch := opts.Branch
	if branch == "" {
		branch = p.gitOps.CurrentBranch(ctx, localPath)
	}

	// Scan.
	progress.report(PhaseScanning, 10, "scanning files")
	files, err := p.filter.ScanFiles(localPath, opts.IncludeExtensions, opts.ExcludePatterns, func(count int) {
		if count%200 == 0 {
			progress.report(PhaseScanning, 10+min(15, count/200), fmt.Sprintf("%d files found", count))
		}
	})
	if err != nil {
		return p.failed(result, started, err), nil
	}
	progress.report(PhaseScanning, 25, fmt.Sprintf("%d files to index", len(files)))

	// Collection preparation. Fatal on failure.
	if opts.Force {
		if err := p.vectors.DeleteCollection(ctx, name); err != nil {
			p.logger.Debug("no previous collection to delete", "repository", name, "error", err)
		}
	}
	if err := p.vectors.GetOrCreateCollection(ctx, name); err != nil {
		return p.failed(result, started, err), nil
	}

	// Batch processing: 25% to 95%, linear in completed batches.
	batchSize := p.cfg.Indexing.FileBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	totalBatches := (len(files) + batchSize - 1) / batchSize

	for batchIdx := 0; batchIdx*batchSize < len(files); batchIdx++ {
		start := batchIdx * batchSize
		end := min(start+batchSize, len(files))

		p.processBatch(ctx, name, localPath, files[start:end], result)

		pct := 25 + (batchIdx+1)*70/max(totalBatches, 1)
		progress.report(PhaseProcessing, min(pct, 95),
			fmt.Sprintf("batch %d/%d processed", batchIdx+1, totalBatches))
	}

	// Metadata finalization.
	progress.report(PhaseFinalizing, 95, "writing repository record")
	duration := p.now().Sub(started)
	record := &metadata.RepositoryRecord{
		Name:                 name,
		URL:                  url,
		Branch:               branch,
		LocalPath:            localPath,
		CollectionName:       name,
		FileCount:            result.FileCount,
		ChunkCount:           result.ChunkCount,
		LastIndexedAt:        p.now(),
		LastIndexedCommitSha: commitSha,
		IndexDurationMs:      duration.Milliseconds(),
		Status:               metadata.StatusReady,
		IncludeExtensions:    opts.IncludeExtensions,
		ExcludePatterns:      opts.ExcludePatterns,
	}
	if len(result.Errors) > 0 {
		record.Status = metadata.StatusError
		record.ErrorMessage = fmt.Sprintf("indexed with %d errors", len(result.Errors))
	}
	if err := p.meta.Save(record); err != nil {
		return p.failed(result, started, err), nil
	}

	result.DurationMs = duration.Milliseconds()
	if len(result.Errors) == 0 {
		result.Status = StatusSuccess
	} else {
		result.Status = StatusPartial
	}
	progress.report(PhaseComplete, 100,
		fmt.Sprintf("%d files, %d chunks indexed", result.FileCount, result.ChunkCount))
	return result, nil
}

// processBatch chunks, embeds and stores one batch of files, accumulating
// counters and errors on result. Failures never abort the whole ingestion.
func (p *IngestionPipeline) processBatch(ctx context.Context, name, localPath string, batch []string, result *IngestResult) {
	type fileChunks struct {
		path   string
		chunks []chunk.Chunk
	}

	var chunked []fileChunks
	var allChunks []chunk.Chunk
	for _, rel := range batch {
		chunks, err := p.chunkFile(name, localPath, rel)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: rel, Error: err.Error()})
			continue
		}
		chunked = append(chunked, fileChunks{path: rel, chunks: chunks})
		allChunks = append(allChunks, chunks...)
	}

	texts := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.Content
	}

	stored := 0
	batchErrs := embed.EmbedBatched(ctx, p.provider, texts, p.cfg.Indexing.EmbeddingBatchSize,
		func(start int, embeddings [][]float32) error {
			sub := allChunks[start : start+len(embeddings)]
			docs := make([]vectorstore.Document, len(sub))
			for i := range sub {
				docs[i] = vectorstore.Document{Chunk: sub[i], Embedding: embeddings[i]}
			}
			if err := p.vectors.AddDocuments(ctx, name, docs); err != nil {
				return err
			}
			stored += len(sub)
			return nil
		})
	for _, err := range batchErrs {
		result.Errors = append(result.Errors, FileError{Path: batchErrorPath, Error: err.Error()})
	}

	// Files count as processed when all their chunks made it to storage.
	if stored == len(allChunks) {
		result.FileCount += len(chunked)
		result.ChunkCount += stored
	} else {
		// Partial batch storage: attribute conservatively by walking files in
		// order until the stored prefix is exhausted.
		remaining := stored
		for _, fc := range chunked {
			if len(fc.chunks) > remaining {
				break
			}
			remaining -= len(fc.chunks)
			result.FileCount++
			result.ChunkCount += len(fc.chunks)
		}
	}

	if p.graph != nil {
		for _, fc := range chunked {
			ext := filepath.Ext(fc.path)
			if !graphstore.StructurallySupported(ext) {
				continue
			}
			content, err := p.readFile(filepath.Join(localPath, filepath.FromSlash(fc.path)))
			if err != nil {
				continue
			}
			if res := p.graph.IngestFile(name, fc.path, ext, string(content)); !res.Success {
				p.logger.Warn("graph ingestion failed", "repository", name, "path", fc.path)
			}
		}
	}
}

// chunkFile reads one file and chunks it.
func (p *IngestionPipeline) chunkFile(name, localPath, rel string) ([]chunk.Chunk, error) {
	abs := filepath.Join(localPath, filepath.FromSlash(rel))
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
	return p.chunker.Chunk(name, rel, text, meta), nil
}

// failed stamps the result with the error and elapsed time. Nothing is
// persisted: the repository record is only written during finalization,
// so an ingestion that dies earlier leaves no record behind.
func (p *IngestionPipeline) failed(result *IngestResult, started time.Time, err error) *IngestResult {
	p.logger.Error("ingestion failed", "repository", result.Repository, "error", err)
	result.Status = StatusFailed
	result.DurationMs = p.now().Sub(started).Milliseconds()
	result.Errors = append(result.Errors, FileError{Path: "", Error: err.Error()})
	return result
}

// progressReporter isolates listener failures from the pipeline.
type progressReporter struct {
	repository string
	fn         ProgressFunc
	logger     *slog.Logger
}

func newProgressReporter(repository string, fn ProgressFunc, logger *slog.Logger) *progressReporter {
	return &progressReporter{repository: repository, fn: fn, logger: logger}
}

func (r *progressReporter) report(phase Phase, percentage int, details string) {
	if r.fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("progress listener panicked", "repository", r.repository, "panic", rec)
		}
	}()
	r.fn(ProgressEvent{
		Phase:      phase,
		Repository: r.repository,
		Percentage: percentage,
		Details:    details,
		Timestamp:  time.Now(),
	})
}
