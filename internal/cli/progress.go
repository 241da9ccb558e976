package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/reposeek/reposeek/internal/indexer"
)

// progressRenderer drives a single percentage bar from pipeline progress
// events, printing phase transitions above it.
type progressRenderer struct {
	quiet bool
	bar   *progressbar.ProgressBar
	phase indexer.Phase
}

func newProgressRenderer(quiet bool) *progressRenderer {
	r := &progressRenderer{quiet: quiet}
	if !quiet {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return r
}

// handle is the ProgressFunc handed to the orchestrator.
func (r *progressRenderer) handle(ev indexer.ProgressEvent) {
	if r.quiet {
		return
	}
	if ev.Phase != r.phase {
		r.phase = ev.Phase
		r.bar.Describe(fmt.Sprintf("%-10s", string(ev.Phase)))
	}
	_ = r.bar.Set(ev.Percentage)
}

// finish completes the bar.
func (r *progressRenderer) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
