// Package watcher implements the file system watching that drives the
// session state machine in watch mode.
package watcher

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
)

var _ ports.Watcher = (*Watcher)(nil)

// skipDirectories are directories whose contents never qualify as change
// events. The metadata directory is skipped so the scheduler's own pack
// writes do not feed back into the idle timer.
var skipDirectories = map[string]bool{
	".git":              true,
	".jj":               true,
	"node_modules":      true,
	domain.StashDirName: true,
}

const eventChannelBuffer = 100

// Watcher watches a directory tree recursively through fsnotify and emits
// normalized events.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    ports.Logger
	events    chan ports.WatchEvent
}

// NewWatcher creates a watcher. Errors from the underlying notification
// stream are reported through the logger and never stop the watch.
func NewWatcher(logger ports.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher: fsw,
		logger:    logger,
		events:    make(chan ports.WatchEvent, eventChannelBuffer),
	}, nil
}

// Start begins watching root recursively. Directories created later under
// root are picked up as they appear.
func (w *Watcher) Start(ctx context.Context, root string) error {
	for dir := range directoriesUnder(root) {
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
	}
	go w.pump(ctx)
	return nil
}

// Stop stops the watcher and releases all resources.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// Events returns an iterator over normalized events. The iterator ends
// when the watcher stops.
func (w *Watcher) Events() iter.Seq[ports.WatchEvent] {
	return func(yield func(ports.WatchEvent) bool) {
		for event := range w.events {
			if !yield(event) {
				return
			}
		}
	}
}

// directoriesUnder yields root and every watchable directory below it.
func directoriesUnder(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable subtrees are skipped, not fatal.
				return nil //nolint:nilerr
			}
			if !d.IsDir() {
				return nil
			}
			if skipDirectories[d.Name()] {
				return fs.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// pump converts raw fsnotify events until the context ends or the watcher
// closes.
func (w *Watcher) pump(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			event, ok := normalize(raw)
			if !ok {
				continue
			}
			select {
			case w.events <- event:
			case <-ctx.Done():
				return
			}
			if event.Operation == ports.OpCreate {
				w.followNewDirectory(raw.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("watch error: " + err.Error())
			}
		}
	}
}

// followNewDirectory extends the watch into a freshly created directory
// tree.
func (w *Watcher) followNewDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skipDirectories[info.Name()] {
		return
	}
	for dir := range directoriesUnder(path) {
		_ = w.fsWatcher.Add(dir)
	}
}

func normalize(event fsnotify.Event) (ports.WatchEvent, bool) {
	var op ports.WatchOp
	switch {
	case event.Op.Has(fsnotify.Write):
		op = ports.OpWrite
	case event.Op.Has(fsnotify.Create):
		op = ports.OpCreate
	case event.Op.Has(fsnotify.Remove):
		op = ports.OpRemove
	case event.Op.Has(fsnotify.Rename):
		op = ports.OpRename
	default:
		return ports.WatchEvent{}, false
	}
	return ports.WatchEvent{Path: event.Name, Operation: op}, true
}
