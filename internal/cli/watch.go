package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/reposeek/reposeek/internal/changes"
	"github.com/reposeek/reposeek/internal/indexer"
	"github.com/reposeek/reposeek/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <name>",
	Short: "Watch a repository's working tree and index changes live",
	Long: `Watch monitors the local clone of an indexed repository. File saves,
deletions and renames are categorized (rename pairs are correlated within
the rename window) and applied to the index after a debounce period,
without talking to the remote forge.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]

	record, err := a.meta.Get(name)
	if err != nil {
		return fmt.Errorf("%w: %s", indexer.ErrNotFound, name)
	}

	ctx, cancel := signalContext()
	defer cancel()

	batcher := newChangeBatcher(ctx, a, record.Name)

	categorizer := changes.NewCategorizer(a.cfg.RenameWindow(), true, a.logger, batcher.add)
	defer categorizer.Dispose()

	w, err := watcher.New(
		[]watcher.Folder{{ID: record.Name, Path: record.LocalPath}},
		record.IncludeExtensions,
		a.logger,
		categorizer.HandleEvent,
	)
	if err != nil {
		return err
	}
	w.Start(ctx)
	defer w.Stop()

	fmt.Printf("Watching %s (%s); Ctrl+C to stop\n", record.Name, record.LocalPath)
	<-ctx.Done()
	batcher.flushNow()
	return nil
}

// changeBatcher accumulates detected changes and applies them through the
// incremental pipeline after the debounce period.
type changeBatcher struct {
	ctx  context.Context
	a    *app
	name string

	mu      sync.Mutex
	pending []indexer.FileChange
	timer   *timerHandle
}

type timerHandle struct {
	stop chan struct{}
}

func newChangeBatcher(ctx context.Context, a *app, name string) *changeBatcher {
	return &changeBatcher{ctx: ctx, a: a, name: name}
}

// add converts one detected change and schedules a flush.
func (b *changeBatcher) add(change changes.DetectedChange) {
	fc := indexer.FileChange{Path: change.RelativePath}
	switch change.Category {
	case changes.Added:
		fc.Status = indexer.ChangeAdded
	case changes.Modified:
		fc.Status = indexer.ChangeModified
	case changes.Deleted:
		fc.Status = indexer.ChangeDeleted
	case changes.Renamed:
		fc.Status = indexer.ChangeRenamed
		fc.PreviousPath = change.PreviousRelativePath
	default:
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, fc)
	b.scheduleLocked()
	b.mu.Unlock()
}

// scheduleLocked restarts the debounce timer.
func (b *changeBatcher) scheduleLocked() {
	if b.timer != nil {
		close(b.timer.stop)
	}
	handle := &timerHandle{stop: make(chan struct{})}
	b.timer = handle

	go func() {
		select {
		case <-b.ctx.Done():
		case <-handle.stop:
		case <-time.After(b.a.cfg.Debounce()):
			b.flushNow()
		}
	}()
}

// flushNow applies everything pending immediately.
func (b *changeBatcher) flushNow() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer = nil
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	record, err := b.a.meta.Get(b.name)
	if err != nil {
		b.a.logger.Error("failed to load repository record", "repository", b.name, "error", err)
		return
	}

	result := b.a.updates.Apply(b.ctx, batch, indexer.UpdateOptions{
		Repository:        record.Name,
		LocalPath:         record.LocalPath,
		CollectionName:    record.CollectionName,
		IncludeExtensions: record.IncludeExtensions,
		ExcludePatterns:   record.ExcludePatterns,
		CorrelationID:     "watch",
	})

	fmt.Printf("Applied %d change(s): %d upserted, %d deleted chunks",
		len(batch), result.Stats.ChunksUpserted, result.Stats.ChunksDeleted)
	if len(result.Errors) > 0 {
		fmt.Printf(", %d error(s)", len(result.Errors))
	}
	fmt.Println()

	record.ChunkCount += result.Stats.ChunksUpserted - result.Stats.ChunksDeleted
	record.FileCount += result.Stats.FilesAdded - result.Stats.FilesDeleted
	if err := b.a.meta.Save(record); err != nil {
		b.a.logger.Error("failed to persist counters", "repository", b.name, "error", err)
	}
}
