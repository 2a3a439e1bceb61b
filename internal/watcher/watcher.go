// Package watcher turns filesystem notifications into batches of changed and removed
// paths for incremental rebuilds.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bundlegraph/internal/module"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Removes reports whether the path no longer exists after the event
func (e EventType) Removes() bool {
	return e == EventDelete || e == EventRename
}

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// Classify maps a notification to an event type. Attribute-only changes are dropped.
func Classify(op fsnotify.Op) (EventType, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return EventDelete, true
	case op.Has(fsnotify.Rename):
		return EventRename, true
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	default:
		return 0, false
	}
}

// Handler is called with each batch; batches are delivered one at a time
type Handler func(ctx context.Context, changes ChangeSet) error

// Config contains watcher configuration
type Config struct {
	DebounceMs int
	// Ignore holds filepath.Match patterns tested against every path segment
	Ignore []string
}

// Sets are the paths to watch
type Sets struct {
	Files    module.FileSet
	Contexts module.FileSet
	Missing  module.FileSet
}

// Watcher watches the directories holding a set of paths
type Watcher struct {
	config  Config
	logger  *slog.Logger
	handler Handler
	fsw     *fsnotify.Watcher

	mu       sync.RWMutex
	sets     Sets
	watched  map[string]struct{}
	contexts []string
}

// New creates a watcher. Call Close when Run is not used.
func New(config Config, logger *slog.Logger, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		config:  config,
		logger:  logger,
		handler: handler,
		fsw:     fsw,
		sets:    Sets{Files: module.NewFileSet(), Contexts: module.NewFileSet(), Missing: module.NewFileSet()},
		watched: make(map[string]struct{}),
	}, nil
}

// Close stops the underlying notifier
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Update replaces the watched paths. Files are watched through their directory, missing
// paths through their nearest existing ancestor and contexts recursively.
func (w *Watcher) Update(sets Sets) error {
	dirs := make(map[string]struct{})
	for path := range sets.Files {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for path := range sets.Missing {
		if dir := existingAncestor(filepath.Dir(path)); dir != "" {
			dirs[dir] = struct{}{}
		}
	}
	contexts := sets.Contexts.Sorted()
	for _, root := range contexts {
		for _, dir := range w.subdirectories(root) {
			dirs[dir] = struct{}{}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.sets = sets
	w.contexts = contexts

	var added, removed int
	for dir := range w.watched {
		if _, keep := dirs[dir]; keep {
			continue
		}
		if err := w.fsw.Remove(dir); err != nil {
			w.logger.Debug("Failed to unwatch directory", "dir", dir, "error", err)
		}
		delete(w.watched, dir)
		removed++
	}
	for dir := range dirs {
		if _, ok := w.watched[dir]; ok || w.IsIgnored(dir) {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.watched[dir] = struct{}{}
		added++
	}
	if added > 0 || removed > 0 {
		w.logger.Debug("Updated watched directories", "added", added, "removed", removed, "total", len(w.watched))
	}
	return nil
}

// subdirectories returns root and every non-ignored directory below it
func (w *Watcher) subdirectories(root string) []string {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.IsIgnored(path) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

func existingAncestor(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Run delivers batches to the handler until ctx is done. Handler errors are logged.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	batches := make(chan ChangeSet, 16)
	batcher := NewBatcher(time.Duration(w.config.DebounceMs)*time.Millisecond, func(changes ChangeSet) {
		select {
		case batches <- changes:
		case <-ctx.Done():
		}
	})
	defer batcher.Cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case changes := <-batches:
				w.logger.Info("Changes detected", "modified", len(changes.Modified), "removed", len(changes.Removed))
				if err := w.handler(ctx, changes); err != nil {
					w.logger.Error("Rebuild failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	w.logger.Info("Watching for changes", "directories", w.WatchedCount(), "debounceMs", w.config.DebounceMs)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event, ok := w.accept(ev); ok {
				batcher.Add(event)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

// accept filters a notification down to the watched paths
func (w *Watcher) accept(ev fsnotify.Event) (Event, bool) {
	typ, ok := Classify(ev.Op)
	if !ok || w.IsIgnored(ev.Name) {
		return Event{}, false
	}
	path := filepath.Clean(ev.Name)

	if typ == EventCreate {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.watchNewDirectory(path)
		}
	}
	if !w.Relevant(path) {
		return Event{}, false
	}
	return Event{Type: typ, Path: path, Timestamp: time.Now()}, true
}

// watchNewDirectory extends a recursive context watch to a directory created below it
func (w *Watcher) watchNewDirectory(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !underAny(dir, w.contexts) {
		return
	}
	for _, sub := range w.subdirectories(dir) {
		if _, ok := w.watched[sub]; ok {
			continue
		}
		if err := w.fsw.Add(sub); err != nil {
			w.logger.Debug("Failed to watch new directory", "dir", sub, "error", err)
			continue
		}
		w.watched[sub] = struct{}{}
	}
}

// Relevant reports whether a change of path can affect the watched sets
func (w *Watcher) Relevant(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sets.Files.Has(path) || w.sets.Missing.Has(path) || underAny(path, w.contexts)
}

func underAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsIgnored checks whether a segment of path matches an ignore pattern
func (w *Watcher) IsIgnored(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == "" {
			continue
		}
		for _, pattern := range w.config.Ignore {
			if matched, _ := filepath.Match(pattern, segment); matched {
				return true
			}
		}
	}
	return false
}

// Watched returns the watched directories in lexical order
func (w *Watcher) Watched() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.watched))
	for dir := range w.watched {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// WatchedCount returns the number of watched directories
func (w *Watcher) WatchedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watched)
}
