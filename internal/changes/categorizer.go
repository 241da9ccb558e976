// Package changes converts raw filesystem events into semantic file changes,
// correlating unlink+add pairs on the same basename into renames.
package changes

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Rename confidence levels. A basename match within the window scores the
// base confidence; matching sizes on both sides raise it.
const (
	baseRenameConfidence      = 0.7
	sizeMatchRenameConfidence = 0.9
)

// pendingUnlink buffers an unlink event while we wait for a matching add.
type pendingUnlink struct {
	absolutePath  string
	relativePath  string
	extension     string
	folderID      string
	folderPath    string
	timestamp     time.Time
	previousState *FileState
	timer         *time.Timer
}

// Categorizer turns raw watcher events into detected changes.
// HandleEvent and Dispose are safe for concurrent use.
type Categorizer struct {
	window     time.Duration
	trackState bool
	emit       func(DetectedChange)
	logger     *slog.Logger

	// statFn is replaceable in tests.
	statFn func(string) (os.FileInfo, error)

	mu       sync.Mutex
	states   map[string]*FileState     // keyed by absolute path
	pending  map[string]*pendingUnlink // keyed by folderID:basename
	disposed bool
}

// NewCategorizer creates a categorizer. window is the pending-unlink
// lifetime; emit receives every detected change.
func NewCategorizer(window time.Duration, trackState bool, logger *slog.Logger, emit func(DetectedChange)) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{
		window:     window,
		trackState: trackState,
		emit:       emit,
		logger:     logger,
		statFn:     os.Stat,
		states:     make(map[string]*FileState),
		pending:    make(map[string]*pendingUnlink),
	}
}

// HandleEvent processes one raw event.
func (c *Categorizer) HandleEvent(ev RawEvent) {
	switch ev.Type {
	case RawAdd:
		c.handleAdd(ev)
	case RawChange:
		c.handleChange(ev)
	case RawUnlink:
		c.handleUnlink(ev)
	default:
		c.logger.Warn("ignoring unknown raw event type", "type", string(ev.Type), "path", ev.AbsolutePath)
	}
}

// handleAdd resolves a pending unlink into a rename, or emits an add.
func (c *Categorizer) handleAdd(ev RawEvent) {
	key := correlationKey(ev.FolderID, ev.AbsolutePath)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	pu, matched := c.pending[key]
	if matched {
		// Remove from the map before anything else so a concurrently firing
		// timer finds nothing and stays silent.
		delete(c.pending, key)
		pu.timer.Stop()
	}
	current := c.captureStateLocked(ev)
	c.mu.Unlock()

	if matched {
		c.emit(DetectedChange{
			Category:             Renamed,
			AbsolutePath:         ev.AbsolutePath,
			RelativePath:         ev.RelativePath,
			PreviousAbsolutePath: pu.absolutePath,
			PreviousRelativePath: pu.relativePath,
			FolderID:             ev.FolderID,
			FolderPath:           ev.FolderPath,
			Extension:            ev.Extension,
			CurrentState:         current,
			PreviousState:        pu.previousState,
			Confidence:           renameConfidence(pu.previousState, current),
			Timestamp:            ev.Timestamp,
		})
		return
	}

	c.emit(DetectedChange{
		Category:     Added,
		AbsolutePath: ev.AbsolutePath,
		RelativePath: ev.RelativePath,
		FolderID:     ev.FolderID,
		FolderPath:   ev.FolderPath,
		Extension:    ev.Extension,
		CurrentState: current,
		Timestamp:    ev.Timestamp,
	})
}

// handleChange emits a modification carrying previous and current state.
func (c *Categorizer) handleChange(ev RawEvent) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	previous := c.states[ev.AbsolutePath]
	current := c.captureStateLocked(ev)
	c.mu.Unlock()

	c.emit(DetectedChange{
		Category:      Modified,
		AbsolutePath:  ev.AbsolutePath,
		RelativePath:  ev.RelativePath,
		FolderID:      ev.FolderID,
		FolderPath:    ev.FolderPath,
		Extension:     ev.Extension,
		CurrentState:  current,
		PreviousState: previous,
		Timestamp:     ev.Timestamp,
	})
}

// handleUnlink parks the event in the pending table; the timer emits a
// delete if no matching add arrives within the window.
func (c *Categorizer) handleUnlink(ev RawEvent) {
	key := correlationKey(ev.FolderID, ev.AbsolutePath)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	previous := c.states[ev.AbsolutePath]
	delete(c.states, ev.AbsolutePath)

	// A second unlink of the same path restarts the window. A different
	// path colliding on the key is displaced and surfaces as a deletion,
	// exactly as its timer would have reported it.
	var displaced *pendingUnlink
	if old, ok := c.pending[key]; ok {
		old.timer.Stop()
		if old.absolutePath != ev.AbsolutePath {
			displaced = old
		}
	}

	pu := &pendingUnlink{
		absolutePath:  ev.AbsolutePath,
		relativePath:  ev.RelativePath,
		extension:     ev.Extension,
		folderID:      ev.FolderID,
		folderPath:    ev.FolderPath,
		timestamp:     ev.Timestamp,
		previousState: previous,
	}
	pu.timer = time.AfterFunc(c.window, func() {
		c.expirePending(key)
	})
	c.pending[key] = pu
	c.mu.Unlock()

	if displaced != nil {
		c.emit(deletedChange(displaced))
	}
}

// expirePending is the timer path: if the key is still pending, the unlink
// was a real deletion.
func (c *Categorizer) expirePending(key string) {
	c.mu.Lock()
	pu, ok := c.pending[key]
	if !ok {
		// Matched by an add (or drained by Dispose) before the timer fired.
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.mu.Unlock()

	c.emit(deletedChange(pu))
}

// Dispose cancels all rename-correlation timers, drains pending unlinks as
// deletions, and empties the state maps. The categorizer must not be used
// after Dispose.
func (c *Categorizer) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true

	drained := make([]*pendingUnlink, 0, len(c.pending))
	for key, pu := range c.pending {
		pu.timer.Stop()
		drained = append(drained, pu)
		delete(c.pending, key)
	}
	c.states = make(map[string]*FileState)
	c.mu.Unlock()

	for _, pu := range drained {
		c.emit(deletedChange(pu))
	}
}

// captureStateLocked stats the event's path and refreshes the tracking
// table. Stat failures are logged and yield a nil state; they never
// suppress the change event itself.
func (c *Categorizer) captureStateLocked(ev RawEvent) *FileState {
	if !c.trackState {
		return nil
	}

	info, err := c.statFn(ev.AbsolutePath)
	if err != nil {
		c.logger.Warn("failed to capture file state", "path", ev.AbsolutePath, "error", err)
		delete(c.states, ev.AbsolutePath)
		return nil
	}

	state := &FileState{
		AbsolutePath: ev.AbsolutePath,
		RelativePath: ev.RelativePath,
		SizeBytes:    info.Size(),
		ModifiedAt:   info.ModTime(),
		Extension:    ev.Extension,
		CapturedAt:   time.Now(),
	}
	c.states[ev.AbsolutePath] = state
	return state
}

// correlationKey permits cross-directory renames within one watched root
// while forbidding correlation across roots.
func correlationKey(folderID, absolutePath string) string {
	return folderID + ":" + filepath.Base(absolutePath)
}

// renameConfidence scores a basename match, raised when both sides carry
// state with equal sizes.
func renameConfidence(previous, current *FileState) float64 {
	if previous != nil && current != nil && previous.SizeBytes == current.SizeBytes {
		return sizeMatchRenameConfidence
	}
	return baseRenameConfidence
}

func deletedChange(pu *pendingUnlink) DetectedChange {
	return DetectedChange{
		Category:      Deleted,
		AbsolutePath:  pu.absolutePath,
		RelativePath:  pu.relativePath,
		FolderID:      pu.folderID,
		FolderPath:    pu.folderPath,
		Extension:     pu.extension,
		PreviousState: pu.previousState,
		Timestamp:     pu.timestamp,
	}
}
