// Package watcher re-runs build stages when files under the project change.
//
// A FileWatcher owns one fsnotify watcher over the project and a set of
// triggers. Every event is routed, by doublestar glob, to each trigger it
// matches; each trigger has its own Debouncer so a burst of events collapses
// to one action run after the quiescence window.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/buildwp/internal/logging"
)

// DefaultDelay is the quiescence window of every trigger.
const DefaultDelay = 300 * time.Millisecond

// FileWatcher watches a project tree and dispatches changes to triggers.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	delay    time.Duration
	triggers []*Trigger
	filters  []FileFilter
	logger   logging.Logger
	ctx      context.Context
	mutex    sync.RWMutex
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	Path string
	// Rel is Path relative to the watch root, slash separated.
	Rel string
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// NewFileWatcher creates a watcher for the project rooted at root. A zero
// delay uses DefaultDelay.
func NewFileWatcher(root string, delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &FileWatcher{
		watcher: watcher,
		root:    cleanRoot,
		delay:   delay,
		filters: make([]FileFilter, 0),
		logger:  logger.WithComponent("watcher"),
		ctx:     context.Background(),
	}, nil
}

// Root returns the absolute watch root.
func (fw *FileWatcher) Root() string {
	return fw.root
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddTrigger registers t and gives it a debouncer using the watcher delay.
func (fw *FileWatcher) AddTrigger(t *Trigger) {
	t.debouncer = NewDebouncer(fw.delay, func(events []ChangeEvent) {
		fw.run(t, events)
	})

	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.triggers = append(fw.triggers, t)
}

// Triggers returns the registered triggers.
func (fw *FileWatcher) Triggers() []*Trigger {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return append([]*Trigger(nil), fw.triggers...)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !fw.accept(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// validatePath cleans path and requires it to be an existing directory.
func validatePath(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return absPath, nil
}

// Start starts the file watcher. Trigger actions receive ctx; the watcher
// stops reading events once ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.Lock()
	fw.ctx = ctx
	fw.mutex.Unlock()

	go fw.watchLoop(ctx)
	return nil
}

// Stop stops pending debounce timers and closes the watcher.
func (fw *FileWatcher) Stop() error {
	for _, t := range fw.Triggers() {
		t.debouncer.Stop()
	}
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	// Permission changes alone never affect build output.
	if event.Op == fsnotify.Chmod {
		return
	}
	if !fw.accept(event.Name) {
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	if eventType == EventTypeCreated {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(fw.context(), err, "could not watch new directory", "path", event.Name)
			}
		}
	}

	fw.Dispatch(ChangeEvent{Type: eventType, Path: event.Name})
}

// Dispatch routes event to every matching trigger. Rel is derived from Path
// when empty.
func (fw *FileWatcher) Dispatch(event ChangeEvent) {
	if event.Rel == "" {
		rel, err := filepath.Rel(fw.root, event.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return
		}
		event.Rel = filepath.ToSlash(rel)
	}

	for _, t := range fw.Triggers() {
		if t.Matches(event.Rel) {
			t.debouncer.Add(event)
		}
	}
}

func (fw *FileWatcher) context() context.Context {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return fw.ctx
}

func (fw *FileWatcher) run(t *Trigger, events []ChangeEvent) {
	ctx := fw.context()
	if ctx.Err() != nil {
		return
	}
	fw.logger.Debug(ctx, "trigger fired", "trigger", t.Name, "events", len(events))
	t.Action(ctx, events)
	fw.logger.Info(ctx, "watching all files...")
}

// NoGitFilter rejects anything inside a .git directory.
func NoGitFilter(path string) bool {
	slashed := filepath.ToSlash(path)
	return !strings.HasPrefix(slashed, ".git/") && !strings.Contains(slashed, "/.git/") && filepath.Base(path) != ".git"
}

// NoTempFilter rejects editor swap and backup files.
func NoTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		base == ".DS_Store":
		return false
	}
	return true
}

// NoNodeModulesFilter rejects anything inside node_modules.
func NoNodeModulesFilter(path string) bool {
	slashed := filepath.ToSlash(path)
	return !strings.Contains(slashed, "/node_modules/") && filepath.Base(path) != "node_modules"
}

// matchAny reports whether rel matches one of the doublestar patterns.
func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
