// Package watch reports changes under a directory tree. Events are
// coalesced over a debounce window and delivered as one batch, so a
// burst of writes triggers a single re-verification.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jamesainslie/hasher/pkg/hasher/filter"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/scanner"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

var logger = logging.Get("watch")

// DefaultDebounce is used when Run is given a non-positive debounce.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a tree for changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	exclude filter.Predicate
	root    string
	paths   map[string]bool
	mu      sync.RWMutex
	closed  bool
}

// New creates a Watcher. Changes to paths matched by exclude are ignored.
func New(exclude filter.Predicate) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher: fsw,
		exclude: exclude,
		paths:   make(map[string]bool),
	}, nil
}

// Watch starts watching root and all its subdirectories. Symlinks are
// not followed.
func (w *Watcher) Watch(root string) error {
	absRoot, err := scanner.ValidateRoot(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	return w.addTree(absRoot)
}

// addTree adds dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Debug("skipping unreadable path", "path", path, "error", walkErr)
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() {
			return nil
		}
		return w.addWatch(path)
	})
}

// addWatch adds a single directory to the watch list.
func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}

	w.paths[path] = true
	return nil
}

// Watched returns the watched directories, sorted.
func (w *Watcher) Watched() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Run delivers batches of changed paths to onChange until ctx is
// cancelled. A batch is delivered once no event has arrived for the
// debounce interval. onChange runs on the Run goroutine; events that
// arrive meanwhile are queued for the next batch.
func (w *Watcher) Run(ctx context.Context, debounce time.Duration, onChange func(ctx context.Context, changed []string)) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handleEvent(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			slices.Sort(changed)

			logger.Debug("change batch", "paths", len(changed))
			if onChange != nil {
				onChange(ctx, changed)
			}
		}
	}
}

// handleEvent updates watches for the event and reports whether it is
// relevant to the manifest.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if types.IsManifestName(filepath.Base(event.Name)) {
		return false
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.handleRemove(event.Name)
	}

	if w.exclude != nil {
		w.mu.RLock()
		root := w.root
		w.mu.RUnlock()
		if rel, err := scanner.RelativePath(root, event.Name); err == nil && w.exclude(rel) {
			return false
		}
	}
	return true
}

// handleCreate adds watches for new directories.
func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = w.addTree(path)
}

// handleRemove drops watches for a removed directory and its children.
func (w *Watcher) handleRemove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
