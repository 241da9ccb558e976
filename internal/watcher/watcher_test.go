package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposeek/reposeek/internal/changes"
)

// TEST PLAN: filesystem watcher
//
// 1. file creation emits a raw add with folder attribution
// 2. file write emits a raw change
// 3. file removal emits a raw unlink
// 4. extension filter drops non-matching files
// 5. new subdirectories are picked up automatically
// 6. Pause buffers events; Resume flushes them
// 7. Stop is idempotent

type eventSink struct {
	mu     sync.Mutex
	events []changes.RawEvent
}

func (s *eventSink) emit(ev changes.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) snapshot() []changes.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]changes.RawEvent(nil), s.events...)
}

func (s *eventSink) waitFor(t *testing.T, pred func([]changes.RawEvent) bool) []changes.RawEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return pred(s.snapshot())
	}, 3*time.Second, 20*time.Millisecond)
	return s.snapshot()
}

func hasEvent(events []changes.RawEvent, typ changes.RawEventType, rel string) bool {
	for _, ev := range events {
		if ev.Type == typ && ev.RelativePath == rel {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string, extensions []string) (*Watcher, *eventSink) {
	t.Helper()
	sink := &eventSink{}
	w, err := New([]Folder{{ID: "test", Path: root}}, extensions, nil, sink.emit)
	require.NoError(t, err)
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })
	return w, sink
}

func TestWatcher_CreateEmitsAdd(t *testing.T) {
	root := t.TempDir()
	_, sink := startWatcher(t, root, []string{".ts"})

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.ts"), []byte("x"), 0o644))

	events := sink.waitFor(t, func(evs []changes.RawEvent) bool {
		return hasEvent(evs, changes.RawAdd, "main.ts")
	})
	for _, ev := range events {
		assert.Equal(t, "test", ev.FolderID)
		assert.Equal(t, root, ev.FolderPath)
	}
}

func TestWatcher_WriteEmitsChange(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, sink := startWatcher(t, root, []string{".ts"})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("more")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sink.waitFor(t, func(evs []changes.RawEvent) bool {
		return hasEvent(evs, changes.RawChange, "main.ts")
	})
}

func TestWatcher_RemoveEmitsUnlink(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, sink := startWatcher(t, root, []string{".ts"})

	require.NoError(t, os.Remove(path))

	sink.waitFor(t, func(evs []changes.RawEvent) bool {
		return hasEvent(evs, changes.RawUnlink, "gone.ts")
	})
}

func TestWatcher_ExtensionFilter(t *testing.T) {
	root := t.TempDir()
	_, sink := startWatcher(t, root, []string{".ts"})

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "code.ts"), []byte("x"), 0o644))

	events := sink.waitFor(t, func(evs []changes.RawEvent) bool {
		return hasEvent(evs, changes.RawAdd, "code.ts")
	})
	assert.False(t, hasEvent(events, changes.RawAdd, "notes.md"))
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	_, sink := startWatcher(t, root, []string{".ts"})

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// The watch on pkg/ is registered asynchronously, so a write racing the
	// mkdir event can land before it and produce only change events. Write
	// a fresh file each attempt; once the directory is watched, one of them
	// surfaces as an add.
	attempt := 0
	require.Eventually(t, func() bool {
		attempt++
		name := fmt.Sprintf("new%d.ts", attempt)
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0o644); err != nil {
			return false
		}
		for _, ev := range sink.snapshot() {
			if ev.Type == changes.RawAdd && strings.HasPrefix(ev.RelativePath, "pkg/") {
				return true
			}
		}
		return false
	}, 3*time.Second, 100*time.Millisecond)
}

func TestWatcher_PauseBuffersAndResumeFlushes(t *testing.T) {
	root := t.TempDir()
	w, sink := startWatcher(t, root, []string{".ts"})

	w.Pause()
	require.NoError(t, os.WriteFile(filepath.Join(root, "later.ts"), []byte("x"), 0o644))

	// Give the event loop time to observe the create while paused.
	time.Sleep(300 * time.Millisecond)
	assert.False(t, hasEvent(sink.snapshot(), changes.RawAdd, "later.ts"))

	w.Resume()
	sink.waitFor(t, func(evs []changes.RawEvent) bool {
		return hasEvent(evs, changes.RawAdd, "later.ts")
	})
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, _ := startWatcher(t, root, nil)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
