// Package cli implements the reposeek command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reposeek/reposeek/internal/indexer"
)

var verbose bool

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "reposeek",
	Short: "Semantic code search indexing for git repositories",
	Long: `reposeek clones git repositories, chunks their source files, generates
vector embeddings, and keeps the resulting index fresh through incremental
updates driven by commit comparison.

Configuration is read from .reposeek/config.yml with REPOSEEK_* environment
variable overrides.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits with the appropriate code:
// 0 success, 1 pre-flight error, 2 partial result, 3 fatal error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// partialResultError signals that an operation completed with per-file
// errors; it maps to exit code 2.
type partialResultError struct {
	message string
}

func (e *partialResultError) Error() string { return e.message }

// exitCodeFor maps an error onto the CLI exit-code contract.
func exitCodeFor(err error) int {
	var partial *partialResultError
	if errors.As(err, &partial) {
		return exitPartial
	}

	for _, preflight := range []error{
		indexer.ErrAlreadyExists,
		indexer.ErrNotFound,
		indexer.ErrInvalidURL,
		indexer.ErrIndexingInProgress,
		indexer.ErrMissingCommitSha,
		indexer.ErrConcurrentUpdate,
		indexer.ErrChangeThresholdExceeded,
		indexer.ErrForcePushDetected,
	} {
		if errors.Is(err, preflight) {
			return exitPreflight
		}
	}
	return exitFatal
}
