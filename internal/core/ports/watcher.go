package ports

import (
	"context"
	"iter"
)

// WatchOp classifies a file system change.
type WatchOp uint8

const (
	// OpCreate indicates a file or directory was created.
	OpCreate WatchOp = iota
	// OpWrite indicates a file was modified.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// WatchEvent is a single observed change under the watched root. Paths are
// absolute; the session maps them back onto dependency groups.
type WatchEvent struct {
	Path      string
	Operation WatchOp
}

// Watcher feeds file system changes into the cache session. Events ends
// when the watcher is stopped or its context is cancelled.
type Watcher interface {
	Start(ctx context.Context, root string) error
	Stop() error
	Events() iter.Seq[WatchEvent]
}
