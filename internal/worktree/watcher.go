package worktree

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"swarmcore/internal/logging"
)

// dirWatcher watches the `.swarm/worktrees/` convention directory so List
// notices externally-removed worktrees between calls without re-stat-ing
// on every invocation. It tracks presence only, not file contents.
type dirWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dir     string
	removed map[string]bool
	stopCh  chan struct{}
}

func newDirWatcher(dir string) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dw := &dirWatcher{
		watcher: w,
		dir:     dir,
		removed: make(map[string]bool),
		stopCh:  make(chan struct{}),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.WorktreeWarn("could not create worktree convention dir %s: %v", dir, err)
	}
	if err := w.Add(dir); err != nil {
		logging.WorktreeWarn("could not watch worktree convention dir %s: %v", dir, err)
	}
	go dw.run()
	return dw, nil
}

func (dw *dirWatcher) run() {
	for {
		select {
		case <-dw.stopCh:
			return
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				dw.mu.Lock()
				dw.removed[filepath.Clean(event.Name)] = true
				dw.mu.Unlock()
				logging.WorktreeDebug("worktree path externally removed: %s", event.Name)
			}
			if event.Op&fsnotify.Create != 0 {
				dw.mu.Lock()
				delete(dw.removed, filepath.Clean(event.Name))
				dw.mu.Unlock()
			}
		case _, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// wasExternallyRemoved reports whether path was observed removed since the
// watcher started.
func (dw *dirWatcher) wasExternallyRemoved(path string) bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.removed[filepath.Clean(path)]
}

func (dw *dirWatcher) close() {
	close(dw.stopCh)
	_ = dw.watcher.Close()
}
