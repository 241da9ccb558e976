package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reposeek/reposeek/internal/indexer"
)

var (
	indexBranch     string
	indexForce      bool
	indexQuiet      bool
	indexExtensions []string
	indexExcludes   []string
)

var indexCmd = &cobra.Command{
	Use:   "index <url>",
	Short: "Clone and index a repository for semantic search",
	Long: `Index clones the repository, scans its files, splits them into chunks,
generates embeddings, and stores everything in a per-repository vector
collection.

Examples:
  # Index a repository on its default branch
  reposeek index https://github.com/acme/demo

  # Index a specific branch, rebuilding any previous index
  reposeek index git@github.com:acme/demo.git --branch release --force
`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexBranch, "branch", "b", "", "branch to index (default: remote default branch)")
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "rebuild the index if the repository is already indexed")
	indexCmd.Flags().BoolVarP(&indexQuiet, "quiet", "q", false, "disable progress output")
	indexCmd.Flags().StringSliceVar(&indexExtensions, "extensions", nil, "file extensions to include (default: built-in set)")
	indexCmd.Flags().StringSliceVar(&indexExcludes, "exclude", nil, "glob patterns to exclude")
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := a.provider.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding provider is unavailable: %w", err)
	}

	renderer := newProgressRenderer(indexQuiet)
	result, err := a.orchestrator.IndexRepository(ctx, args[0], indexer.IngestOptions{
		Branch:            indexBranch,
		IncludeExtensions: indexExtensions,
		ExcludePatterns:   indexExcludes,
		Force:             indexForce,
		OnProgress:        renderer.handle,
	})
	renderer.finish()
	if err != nil {
		return err
	}

	switch result.Status {
	case indexer.StatusSuccess:
		fmt.Printf("Indexed %s: %d files, %d chunks in %dms (commit %.8s)\n",
			result.Repository, result.FileCount, result.ChunkCount, result.DurationMs, result.CommitSha)
		return nil
	case indexer.StatusPartial:
		printFileErrors(result.Errors)
		return &partialResultError{message: fmt.Sprintf(
			"indexed %s with %d error(s): %d files, %d chunks",
			result.Repository, len(result.Errors), result.FileCount, result.ChunkCount)}
	default:
		printFileErrors(result.Errors)
		return fmt.Errorf("indexing %s failed", result.Repository)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printFileErrors(errs []indexer.FileError) {
	for _, e := range errs {
		if e.Path == "" {
			fmt.Fprintf(os.Stderr, "  error: %s\n", e.Error)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s: %s\n", e.Path, e.Error)
	}
}
