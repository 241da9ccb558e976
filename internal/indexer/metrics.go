package indexer

import (
	"time"

	"github.com/reposeek/reposeek/internal/metadata"
)

// Metrics summarizes update history across repositories. Rates are in
// [0,1]; durations in milliseconds.
type Metrics struct {
	TotalUpdates        int
	AverageDurationMs   float64
	TotalFilesProcessed int
	TotalChunksModified int
	SuccessRate         float64
	ErrorRate           float64
	Trend               TrendMetrics
}

// TrendMetrics covers the entries inside the trend window.
type TrendMetrics struct {
	WindowDays        int
	UpdateCount       int
	FilesProcessed    int
	ChunksModified    int
	AverageDurationMs float64
	ErrorRate         float64
}

// DefaultTrendWindowDays is the trend window when none is given.
const DefaultTrendWindowDays = 7

// AggregateMetrics computes metrics over the union of the repositories'
// update histories. Empty input yields all-zero metrics.
func AggregateMetrics(records []*metadata.RepositoryRecord, now time.Time, trendWindowDays int) Metrics {
	if trendWindowDays <= 0 {
		trendWindowDays = DefaultTrendWindowDays
	}
	m := Metrics{Trend: TrendMetrics{WindowDays: trendWindowDays}}
	cutoff := now.AddDate(0, 0, -trendWindowDays)

	var totalDuration, trendDuration int64
	var successes, failures, trendErrors int

	for _, record := range records {
		for _, entry := range record.UpdateHistory {
			files := entry.FilesAdded + entry.FilesModified + entry.FilesDeleted
			chunks := entry.ChunksUpserted + entry.ChunksDeleted

			m.TotalUpdates++
			m.TotalFilesProcessed += files
			m.TotalChunksModified += chunks
			totalDuration += entry.DurationMs

			switch entry.Status {
			case metadata.UpdateSuccess:
				successes++
			case metadata.UpdatePartial, metadata.UpdateFailed:
				failures++
			}

			if entry.Timestamp.After(cutoff) {
				m.Trend.UpdateCount++
				m.Trend.FilesProcessed += files
				m.Trend.ChunksModified += chunks
				trendDuration += entry.DurationMs
				if entry.Status != metadata.UpdateSuccess {
					trendErrors++
				}
			}
		}
	}

	if m.TotalUpdates > 0 {
		m.AverageDurationMs = float64(totalDuration) / float64(m.TotalUpdates)
		m.SuccessRate = float64(successes) / float64(m.TotalUpdates)
		m.ErrorRate = float64(failures) / float64(m.TotalUpdates)
	}
	if m.Trend.UpdateCount > 0 {
		m.Trend.AverageDurationMs = float64(trendDuration) / float64(m.Trend.UpdateCount)
		m.Trend.ErrorRate = float64(trendErrors) / float64(m.Trend.UpdateCount)
	}
	return m
}
