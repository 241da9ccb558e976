package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reposeek/reposeek/internal/indexer"
)

var updateForce bool

var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Apply remote commits to an indexed repository incrementally",
	Long: `Update compares the remote branch head against the last indexed commit
and applies the file-level delta: changed files are re-chunked and
re-embedded, deleted files are removed from the index.

When the remote was force-pushed or the delta exceeds the change threshold,
the update refuses to run; pass --force to fall back to a full re-index.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "fall back to a full re-index when an incremental update is impossible")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	result, err := a.orchestrator.UpdateRepository(ctx, name)
	if err != nil {
		if updateForce && (errors.Is(err, indexer.ErrForcePushDetected) || errors.Is(err, indexer.ErrChangeThresholdExceeded)) {
			fmt.Printf("Incremental update impossible (%v), running full re-index\n", err)
			return reindexByName(ctx, a, name)
		}
		return err
	}

	switch result.Status {
	case indexer.StatusNoChanges:
		fmt.Printf("%s is up to date at %.8s\n", name, result.CommitSha)
		return nil
	case indexer.StatusUpdated:
		stats := result.Stats
		fmt.Printf("Updated %s to %.8s: +%d ~%d -%d files, %d chunks upserted, %d deleted (%dms)\n",
			name, result.CommitSha, stats.FilesAdded, stats.FilesModified, stats.FilesDeleted,
			stats.ChunksUpserted, stats.ChunksDeleted, result.DurationMs)
		if len(result.Errors) > 0 {
			printFileErrors(result.Errors)
			return &partialResultError{message: fmt.Sprintf("update completed with %d error(s)", len(result.Errors))}
		}
		return nil
	default:
		printFileErrors(result.Errors)
		return fmt.Errorf("update of %s failed", name)
	}
}

// reindexByName resolves the stored URL and runs a forced ingestion.
func reindexByName(ctx context.Context, a *app, name string) error {
	record, err := a.meta.Get(name)
	if err != nil {
		return err
	}

	renderer := newProgressRenderer(false)
	result, err := a.orchestrator.ReindexRepository(ctx, record.URL, indexer.IngestOptions{
		Branch:            record.Branch,
		IncludeExtensions: record.IncludeExtensions,
		ExcludePatterns:   record.ExcludePatterns,
		OnProgress:        renderer.handle,
	})
	renderer.finish()
	if err != nil {
		return err
	}
	if result.Status == indexer.StatusFailed {
		printFileErrors(result.Errors)
		return fmt.Errorf("re-index of %s failed", name)
	}
	fmt.Printf("Re-indexed %s: %d files, %d chunks\n", name, result.FileCount, result.ChunkCount)
	return nil
}
