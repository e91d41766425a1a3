// Package filesystem watches a local directory for documents to ingest.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/docgraph/internal/logger"
)

// ChangeType describes what happened to a file.
type ChangeType string

// Change types.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change is one file event under the watched root.
type Change struct {
	Type ChangeType
	Path string
}

// Watcher reports file changes below a root directory. Hidden files and
// directories are ignored.
type Watcher struct {
	rootPath string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// New creates a watcher for rootPath. Nothing is opened until Watch.
func New(rootPath string) *Watcher {
	return &Watcher{rootPath: rootPath}
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.rootPath
}

// Scan returns every visible regular file below the root, for an initial
// ingest before watching.
func (w *Watcher) Scan() ([]string, error) {
	if err := w.validateRoot(); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(w.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != w.rootPath && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", w.rootPath, err)
	}
	return files, nil
}

// Watch starts watching the root and every visible subdirectory. The
// channel is closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.New("watcher is closed")
	}
	if err := w.validateRoot(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := addTree(fsw, w.rootPath); err != nil {
		fsw.Close()
		return nil, err
	}
	w.watcher = fsw

	changes := make(chan Change, 64)
	go w.loop(ctx, fsw, changes)
	return changes, nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) validateRoot() error {
	info, err := os.Stat(w.rootPath)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", w.rootPath)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			// New subdirectories are watched as they appear.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.hidden(event.Name) {
					if err := addTree(fsw, event.Name); err != nil {
						logger.Warn("watch: %v", err)
					}
				}
			}
			change := w.handleFsEvent(event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch: %v", err)
		}
	}
}

// handleFsEvent maps an fsnotify event to a Change, or nil if it is ignored.
func (w *Watcher) handleFsEvent(event fsnotify.Event) *Change {
	if w.hidden(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &Change{Type: ChangeDeleted, Path: event.Name}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		typ := ChangeUpdated
		if event.Has(fsnotify.Create) {
			typ = ChangeCreated
		}
		return &Change{Type: typ, Path: event.Name}
	default:
		return nil
	}
}

// hidden applies isHidden to the part of path below the root, so a root
// such as ~/.docgraph/inbox can still be watched.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.rootPath, path)
	if err != nil {
		return isHidden(path)
	}
	return isHidden(rel)
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// isHidden reports whether any path element starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
