package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/reposeek/reposeek/internal/indexer"
	"github.com/reposeek/reposeek/internal/metadata"
)

var statusMetrics bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexed repositories and their state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusMetrics, "metrics", "m", false, "include aggregated update metrics")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	records, err := a.orchestrator.GetStatus()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No repositories indexed.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tFILES\tCHUNKS\tCOMMIT\tUPDATES\tLAST INDEXED")
	for _, r := range records {
		status := string(r.Status)
		if r.UpdateInProgress {
			status += " (updating)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.8s\t%d\t%s\n",
			r.Name, status, r.FileCount, r.ChunkCount, r.LastIndexedCommitSha,
			r.IncrementalUpdates, r.LastIndexedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range records {
		if r.Status == metadata.StatusError && r.ErrorMessage != "" {
			fmt.Printf("\n%s: %s\n", r.Name, r.ErrorMessage)
		}
	}

	if statusMetrics {
		m := indexer.AggregateMetrics(records, time.Now(), indexer.DefaultTrendWindowDays)
		fmt.Printf("\nUpdates: %d total, %.0f%% success, avg %.0fms\n",
			m.TotalUpdates, m.SuccessRate*100, m.AverageDurationMs)
		fmt.Printf("Files processed: %d, chunks modified: %d\n",
			m.TotalFilesProcessed, m.TotalChunksModified)
		fmt.Printf("Last %d days: %d updates, %d files, %.0f%% errors\n",
			m.Trend.WindowDays, m.Trend.UpdateCount, m.Trend.FilesProcessed, m.Trend.ErrorRate*100)
	}
	return nil
}
