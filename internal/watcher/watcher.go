// Package watcher tails local directories with fsnotify and emits raw
// add/change/unlink events for downstream categorization.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reposeek/reposeek/internal/changes"
)

// Folder is one watched root. ID distinguishes roots so downstream
// correlation never crosses them.
type Folder struct {
	ID   string
	Path string
}

// Watcher converts fsnotify events into changes.RawEvent values.
type Watcher struct {
	fsw        *fsnotify.Watcher
	folders    []Folder
	extensions map[string]bool
	emit       func(changes.RawEvent)
	logger     *slog.Logger

	pausedMu sync.RWMutex
	paused   bool
	buffered []changes.RawEvent

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New creates a watcher over the given folders. extensions filters events
// by file extension (with leading dot); an empty slice admits everything.
func New(folders []Folder, extensions []string, logger *slog.Logger, emit func(changes.RawEvent)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	extMap := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extMap[ext] = true
	}

	w := &Watcher{
		fsw:        fsw,
		folders:    folders,
		extensions: extMap,
		emit:       emit,
		logger:     logger,
		doneCh:     make(chan struct{}),
	}

	for _, folder := range folders {
		if err := w.addDirectoriesRecursively(folder.Path); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

// Start launches the event loop. Stop (or ctx cancellation) shuts it down.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.loop()
}

// Stop terminates the event loop and closes the underlying watcher.
// Idempotent.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.doneCh
		} else {
			close(w.doneCh)
		}
		err = w.fsw.Close()
	})
	return err
}

// Pause buffers events instead of emitting them, so a bulk re-index does
// not race with its own writes.
func (w *Watcher) Pause() {
	w.pausedMu.Lock()
	defer w.pausedMu.Unlock()
	w.paused = true
}

// Resume flushes events buffered while paused and emits live again.
func (w *Watcher) Resume() {
	w.pausedMu.Lock()
	w.paused = false
	flushed := w.buffered
	w.buffered = nil
	w.pausedMu.Unlock()

	for _, ev := range flushed {
		w.emit(ev)
	}
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	// New directories join the watch set before filtering, so files created
	// inside them are not missed.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoriesRecursively(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	typ, ok := rawEventType(event.Op)
	if !ok {
		return
	}

	ext := filepath.Ext(event.Name)
	if len(w.extensions) > 0 && !w.extensions[ext] {
		return
	}

	folder, ok := w.folderFor(event.Name)
	if !ok {
		return
	}
	rel, err := filepath.Rel(folder.Path, event.Name)
	if err != nil {
		rel = event.Name
	}

	raw := changes.RawEvent{
		Type:         typ,
		AbsolutePath: event.Name,
		RelativePath: filepath.ToSlash(rel),
		FolderID:     folder.ID,
		FolderPath:   folder.Path,
		Extension:    ext,
		Timestamp:    time.Now(),
	}

	w.pausedMu.Lock()
	if w.paused {
		w.buffered = append(w.buffered, raw)
		w.pausedMu.Unlock()
		return
	}
	w.pausedMu.Unlock()

	w.emit(raw)
}

// rawEventType maps fsnotify ops onto the three raw event kinds. Rename is
// reported as unlink: if the file reappears under a new name the create
// event follows and downstream correlation pairs them up.
func rawEventType(op fsnotify.Op) (changes.RawEventType, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return changes.RawAdd, true
	case op&fsnotify.Write != 0:
		return changes.RawChange, true
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return changes.RawUnlink, true
	default:
		return "", false
	}
}

func (w *Watcher) folderFor(path string) (Folder, bool) {
	for _, folder := range w.folders {
		rel, err := filepath.Rel(folder.Path, path)
		if err != nil {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return folder, true
	}
	return Folder{}, false
}

func (w *Watcher) addDirectoriesRecursively(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("error accessing path while watching", "path", path, "error", err)
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
