package domain

import "time"

// CacheKey is an opaque identifier for one cacheable unit of work. It is
// stable across runs iff the unit's semantic inputs are unchanged.
type CacheKey string

// CacheEntry is one cached artifact together with its validity metadata.
type CacheEntry struct {
	// Key identifies the unit of work that produced the payload.
	Key CacheKey
	// Etag is a digest over every contributor that determined Payload
	// (source content, loader versions, config). The entry is valid only
	// while a recomputed etag matches.
	Etag string
	// Payload is the cached artifact. It must carry a type registered with
	// the serialization registry to survive persistence.
	Payload any
	// LastAccessedAt is bumped on every etag-matched read and drives
	// garbage collection.
	LastAccessedAt time.Time
}

// Touch bumps the access time to now.
func (e *CacheEntry) Touch(now time.Time) {
	e.LastAccessedAt = now
}

// BuildDependency is a root file or directory declared as a dependency of
// the build process itself. A root ending in a path separator is a
// directory, resolved through package manifests; a plain path is a file,
// resolved through the transitive module-load graph.
type BuildDependency struct {
	// Name is the configured group name the root belongs to.
	Name string
	// Root is the configured path, trailing separator preserved.
	Root string
}

// IsDir reports whether the root denotes a directory.
func (b BuildDependency) IsDir() bool {
	if b.Root == "" {
		return false
	}
	last := b.Root[len(b.Root)-1]
	return last == '/' || last == '\\'
}
