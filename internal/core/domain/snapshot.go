package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// SnapshotMode selects how the state of a path is captured and compared.
type SnapshotMode uint8

const (
	// ModeTimestamp captures only the modification time. Cheap to capture,
	// blind to same-mtime content rewrites.
	ModeTimestamp SnapshotMode = iota
	// ModeContentHash captures only a content digest.
	ModeContentHash
	// ModeBoth captures both; comparison rechecks the digest only when the
	// timestamp already differs.
	ModeBoth
)

// ParseSnapshotMode parses a config-level mode selector.
func ParseSnapshotMode(s string) (SnapshotMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timestamp":
		return ModeTimestamp, nil
	case "hash", "content-hash":
		return ModeContentHash, nil
	case "timestamp+hash", "hash+timestamp":
		return ModeBoth, nil
	default:
		return ModeTimestamp, zerr.With(ErrInvalidSnapshotMode, "mode", s)
	}
}

// String returns the config-level spelling of the mode.
func (m SnapshotMode) String() string {
	switch m {
	case ModeContentHash:
		return "hash"
	case ModeBoth:
		return "timestamp+hash"
	default:
		return "timestamp"
	}
}

// PathState is the captured observation for a single path.
type PathState struct {
	// Missing records that the path did not exist at capture time.
	Missing bool
	// Dir records that the observation covers a directory listing rather
	// than file content.
	Dir bool
	// MTime is the modification time in UnixNano (0 when not captured).
	MTime int64
	// Digest is the xxhash of the file content or of the sorted directory
	// listing (0 when not captured).
	Digest uint64
	// PackageID replaces MTime/Digest for managed paths: the name@version of
	// the nearest enclosing package manifest.
	PackageID string
	// CapturedAt orders observations when snapshots are merged.
	CapturedAt int64
}

// Snapshot is the captured state of a DependencySet at a point in time.
// Snapshots taken at different times for overlapping path sets are merged
// with per-path latest-capture-wins semantics.
type Snapshot struct {
	Mode   SnapshotMode
	States map[InternedString]PathState
}

// NewSnapshot creates an empty snapshot for the given mode.
func NewSnapshot(mode SnapshotMode) *Snapshot {
	return &Snapshot{
		Mode:   mode,
		States: make(map[InternedString]PathState),
	}
}

// Record stores the observation for a path.
func (s *Snapshot) Record(path string, state PathState) {
	s.States[NewInternedString(path)] = state
}

// Lookup returns the observation for a path.
func (s *Snapshot) Lookup(path string) (PathState, bool) {
	st, ok := s.States[NewInternedString(path)]
	return st, ok
}

// Len returns the number of tracked paths.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.States)
}

// Paths returns the tracked paths in sorted order.
func (s *Snapshot) Paths() []string {
	set := make(PathSet, len(s.States))
	for p := range s.States {
		set[p] = struct{}{}
	}
	return set.Sorted()
}

// Merge unions the other snapshot into this one. For paths present in both,
// the most recent capture wins; ties break on the observation content so the
// result is independent of merge order. No tracked path is ever dropped.
func (s *Snapshot) Merge(other *Snapshot) {
	if other == nil {
		return
	}
	for path, theirs := range other.States {
		ours, ok := s.States[path]
		if !ok || newerState(theirs, ours) {
			s.States[path] = theirs
		}
	}
}

// newerState reports whether a should replace b when merging.
func newerState(a, b PathState) bool {
	if a.CapturedAt != b.CapturedAt {
		return a.CapturedAt > b.CapturedAt
	}
	// Same capture instant: order deterministically on content so merge
	// stays commutative.
	if a.Digest != b.Digest {
		return a.Digest > b.Digest
	}
	if a.MTime != b.MTime {
		return a.MTime > b.MTime
	}
	return a.PackageID > b.PackageID
}
