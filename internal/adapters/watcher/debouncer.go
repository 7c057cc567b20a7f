package watcher

import (
	"sync"
	"time"

	"go.trai.ch/stash/internal/core/domain"
)

// Debouncer coalesces rapid file system events into batched change
// notifications. Paths are deduplicated while pending and delivered sorted
// once the window closes without new events.
type Debouncer struct {
	mu       sync.Mutex
	pending  domain.PathSet
	timer    *time.Timer
	window   time.Duration
	callback func(paths []string)
}

// NewDebouncer creates a debouncer with the given window and callback.
func NewDebouncer(window time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{
		pending:  make(domain.PathSet),
		window:   window,
		callback: callback,
	}
}

// Add records a changed path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending.Add(path)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// fire delivers the pending batch when the window expires.
func (d *Debouncer) fire() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		// Raced with Flush; nothing left to deliver.
		d.timer = nil
		d.mu.Unlock()
		return
	}
	paths := d.pending.Sorted()
	d.pending = make(domain.PathSet)
	d.timer = nil
	d.mu.Unlock()

	if d.callback != nil {
		go d.callback(paths)
	}
}

// Flush delivers any pending batch synchronously. It blocks until the
// callback returns, so shutdown can rely on the last batch being handled.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			// The timer already fired; let that delivery run alone.
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}
	paths := d.pending.Sorted()
	d.pending = make(domain.PathSet)
	d.mu.Unlock()

	if len(paths) > 0 && d.callback != nil {
		d.callback(paths)
	}
}
