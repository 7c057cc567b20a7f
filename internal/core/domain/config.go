package domain

import (
	"sort"
	"time"

	"go.trai.ch/zerr"
)

// CacheType selects between the persistent layered cache and a memory-only
// cache.
type CacheType string

const (
	// CacheFilesystem enables the persistent tier.
	CacheFilesystem CacheType = "filesystem"
	// CacheMemory keeps entries for the process lifetime only.
	CacheMemory CacheType = "memory"
)

// ParseCacheType parses the cache.type config selector.
func ParseCacheType(s string) (CacheType, error) {
	switch s {
	case "", string(CacheFilesystem):
		return CacheFilesystem, nil
	case string(CacheMemory):
		return CacheMemory, nil
	default:
		return CacheFilesystem, zerr.With(ErrInvalidCacheType, "type", s)
	}
}

// SnapshotModes carries the per-operation snapshot mode selection.
type SnapshotModes struct {
	// Resolve governs snapshots over resolution result dependencies.
	Resolve SnapshotMode
	// Module governs snapshots over module build dependencies.
	Module SnapshotMode
	// BuildDependencies governs the snapshot over the expanded build
	// dependency closure.
	BuildDependencies SnapshotMode
	// ResolveBuildDependencies governs snapshots taken while expanding
	// build dependency roots.
	ResolveBuildDependencies SnapshotMode
}

// Config is the loaded and validated stash configuration.
type Config struct {
	// Root is the directory containing the configuration file. All cache
	// state lives underneath it.
	Root string

	// Type selects persistent vs memory-only caching.
	Type CacheType
	// Version is the opaque exact-match gate: a mismatch against a
	// persisted pack invalidates the entire cache.
	Version string
	// Name selects the cache namespace. Distinct names are fully
	// independent caches.
	Name string

	// BuildDependencies maps group names to configured roots. Roots keep
	// their trailing separator: it distinguishes directories from files.
	BuildDependencies map[string][]string

	// IdleTimeout is the idle window before a flush.
	IdleTimeout time.Duration
	// IdleTimeoutForInitialStore applies before the first flush of a
	// session.
	IdleTimeoutForInitialStore time.Duration
	// MaxAge is the garbage collection retention window.
	MaxAge time.Duration

	// ManagedPaths are roots tracked by package identity.
	ManagedPaths []string
	// ImmutablePaths are content-addressed roots exempt from tracking.
	ImmutablePaths []string

	// Modes holds the per-operation snapshot mode selection.
	Modes SnapshotModes
}

// Persistent reports whether the persistent tier is enabled.
func (c *Config) Persistent() bool {
	return c.Type == CacheFilesystem
}

// NamespaceDir returns the pack directory for the configured cache name.
func (c *Config) NamespaceDir() string {
	return CacheNamespacePath(c.Root, c.Name)
}

// Roots flattens BuildDependencies into BuildDependency values, ordered by
// group name then root.
func (c *Config) Roots() []BuildDependency {
	names := make([]string, 0, len(c.BuildDependencies))
	for name := range c.BuildDependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []BuildDependency
	for _, name := range names {
		for _, root := range c.BuildDependencies[name] {
			out = append(out, BuildDependency{Name: name, Root: root})
		}
	}
	return out
}
