package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var recoverMarkError bool

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Detect and remediate updates interrupted by a crash",
	Long: `Recover scans repository records for a stale in-progress flag left behind
by a crashed update. By default the flag is cleared so updates can run
again; with --mark-error the repository is additionally flagged as errored
so operators know a forced re-index is due.`,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().BoolVar(&recoverMarkError, "mark-error", false, "set status=error on interrupted repositories")
}

func runRecover(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	interrupted, err := a.detector.DetectInterrupted()
	if err != nil {
		return err
	}
	if len(interrupted) == 0 {
		fmt.Println("No interrupted updates found.")
		return nil
	}

	for _, info := range interrupted {
		elapsed := time.Duration(info.ElapsedMs) * time.Millisecond
		fmt.Printf("%s: update started %s (%s ago), status %s, last commit %.8s\n",
			info.RepositoryName, info.UpdateStartedAt.Format(time.RFC3339),
			elapsed.Round(time.Second), info.Status, info.LastKnownCommit)

		if recoverMarkError {
			err = a.detector.MarkAsInterrupted(info.RepositoryName)
		} else {
			err = a.detector.ClearFlag(info.RepositoryName)
		}
		if err != nil {
			return fmt.Errorf("failed to remediate %s: %w", info.RepositoryName, err)
		}
	}
	fmt.Printf("Remediated %d repositor(ies).\n", len(interrupted))
	return nil
}
