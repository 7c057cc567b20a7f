// Package snapshot implements filesystem state capture and comparison for
// dependency sets, with per-operation mode selection and managed/immutable
// path short-circuiting.
package snapshot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

// Engine captures and compares snapshots of dependency sets.
type Engine struct {
	files    ports.FileReader
	packages ports.PackageReader
	class    *Classifier
	logger   ports.Logger
	workers  int
	now      func() time.Time
}

// NewEngine creates a snapshot engine.
func NewEngine(files ports.FileReader, packages ports.PackageReader, class *Classifier, logger ports.Logger) *Engine {
	return &Engine{
		files:    files,
		packages: packages,
		class:    class,
		logger:   logger,
		workers:  runtime.GOMAXPROCS(0),
		now:      time.Now,
	}
}

// WithClock overrides the capture clock. Used in tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Capture reads the current state of every path in deps according to mode.
// Managed paths record their package identity instead; immutable paths are
// omitted; missing dependencies record their absence.
func (e *Engine) Capture(ctx context.Context, deps *domain.DependencySet, mode domain.SnapshotMode) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot(mode)
	capturedAt := e.now().UnixNano()

	var mu sync.Mutex
	record := func(path string, state domain.PathState) {
		state.CapturedAt = capturedAt
		mu.Lock()
		snap.Record(path, state)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, path := range deps.Files.Sorted() {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state, track, err := e.captureFile(path, mode)
			if err != nil {
				return err
			}
			if track {
				record(path, state)
			}
			return nil
		})
	}

	for _, dir := range deps.Dirs.Sorted() {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state, err := e.captureDir(dir)
			if err != nil {
				return err
			}
			record(dir, state)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Missing paths need no I/O: their absence is the observation.
	for _, path := range deps.Missing.Sorted() {
		record(path, domain.PathState{Missing: true})
	}

	return snap, nil
}

// captureFile returns the observation for one file path and whether it
// should be tracked at all.
func (e *Engine) captureFile(path string, mode domain.SnapshotMode) (domain.PathState, bool, error) {
	switch e.class.Classify(path) {
	case ClassImmutable:
		return domain.PathState{}, false, nil
	case ClassManaged:
		if info, err := e.packages.Nearest(path); err == nil {
			return domain.PathState{PackageID: info.ID()}, true, nil
		}
		// No resolvable manifest: the managed assumption does not hold, so
		// fall through to full tracking rather than risk a wrong
		// "unchanged".
	}

	info, err := e.files.Stat(path)
	if err != nil {
		return domain.PathState{}, false, err
	}
	if !info.Exists {
		return domain.PathState{Missing: true}, true, nil
	}

	state := domain.PathState{MTime: info.MTimeNano}
	if mode == domain.ModeContentHash || mode == domain.ModeBoth {
		digest, err := e.files.Hash(path)
		if err != nil {
			return domain.PathState{}, false, err
		}
		state.Digest = digest
	}
	if mode == domain.ModeContentHash {
		state.MTime = 0
	}
	return state, true, nil
}

// captureDir records a directory's listing digest. A directory dependency
// tracks the listing, not the content of listed files, in every mode.
func (e *Engine) captureDir(dir string) (domain.PathState, error) {
	info, err := e.files.Stat(dir)
	if err != nil {
		return domain.PathState{}, err
	}
	if !info.Exists {
		return domain.PathState{Missing: true, Dir: true}, nil
	}

	digest, err := e.files.HashListing(dir)
	if err != nil {
		return domain.PathState{}, err
	}
	return domain.PathState{Dir: true, Digest: digest}, nil
}

// Result is the outcome of comparing a snapshot against the live filesystem.
type Result struct {
	// Changed lists every tracked path whose observation no longer holds,
	// in sorted order.
	Changed []string
}

// Unchanged reports whether nothing differed.
func (r Result) Unchanged() bool {
	return len(r.Changed) == 0
}

// Compare checks every path in snap against the live filesystem and returns
// the full changed set, so callers can re-process just the affected
// dependents. Read failures during comparison count as changed: when
// uncertain, invalidate.
func (e *Engine) Compare(ctx context.Context, snap *domain.Snapshot) (Result, error) {
	if snap == nil || snap.Len() == 0 {
		return Result{}, nil
	}

	var mu sync.Mutex
	var changed []string

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, path := range snap.Paths() {
		state, _ := snap.Lookup(path)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.pathChanged(path, state, snap.Mode) {
				mu.Lock()
				changed = append(changed, path)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	sort.Strings(changed)
	return Result{Changed: changed}, nil
}

// Valid reports whether the snapshot still matches the filesystem,
// short-circuiting on the first difference.
func (e *Engine) Valid(ctx context.Context, snap *domain.Snapshot) bool {
	if snap == nil {
		return true
	}
	for _, path := range snap.Paths() {
		if ctx.Err() != nil {
			return false
		}
		state, _ := snap.Lookup(path)
		if e.pathChanged(path, state, snap.Mode) {
			return false
		}
	}
	return true
}

// pathChanged re-validates a single observation.
func (e *Engine) pathChanged(path string, state domain.PathState, mode domain.SnapshotMode) bool {
	// A previously-missing path inverts the check: existing now means
	// changed.
	if state.Missing {
		info, err := e.files.Stat(path)
		if err != nil {
			e.warnUncertain(path, err)
			return true
		}
		return info.Exists
	}

	if state.PackageID != "" {
		info, err := e.packages.Nearest(path)
		if err != nil {
			e.warnUncertain(path, err)
			return true
		}
		return info.ID() != state.PackageID
	}

	info, err := e.files.Stat(path)
	if err != nil {
		e.warnUncertain(path, err)
		return true
	}
	if !info.Exists {
		return true
	}

	if state.Dir {
		digest, err := e.files.HashListing(path)
		if err != nil {
			e.warnUncertain(path, err)
			return true
		}
		return digest != state.Digest
	}

	switch mode {
	case domain.ModeTimestamp:
		return info.MTimeNano != state.MTime
	case domain.ModeContentHash:
		digest, err := e.files.Hash(path)
		if err != nil {
			e.warnUncertain(path, err)
			return true
		}
		return digest != state.Digest
	default: // ModeBoth
		if info.MTimeNano == state.MTime {
			// Timestamp intact: skip the digest recomputation entirely.
			return false
		}
		digest, err := e.files.Hash(path)
		if err != nil {
			e.warnUncertain(path, err)
			return true
		}
		return digest != state.Digest
	}
}

func (e *Engine) warnUncertain(path string, err error) {
	if e.logger != nil {
		e.logger.Warn(fmt.Sprintf("snapshot check failed for %s, treating as changed: %v", path, err))
	}
}
