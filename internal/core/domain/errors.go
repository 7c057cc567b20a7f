package domain

import "go.trai.ch/zerr"

var (
	// ErrVersionMismatch is returned when the persisted cache version does not match the configured version.
	ErrVersionMismatch = zerr.New("cache version mismatch")

	// ErrSnapshotMismatch is returned when a recorded snapshot no longer matches the filesystem.
	ErrSnapshotMismatch = zerr.New("snapshot mismatch")

	// ErrEntryCorrupt is returned when a persisted cache entry cannot be decoded.
	ErrEntryCorrupt = zerr.New("cache entry corrupt")

	// ErrUnregisteredType is returned when no serializer is registered for a value's type.
	ErrUnregisteredType = zerr.New("no serializer registered for type")

	// ErrMissingBuildDependency is returned when a declared build dependency root cannot be resolved.
	ErrMissingBuildDependency = zerr.New("build dependency not found")

	// ErrEtagMismatch is returned when a cache entry's etag no longer matches its recomputation.
	ErrEtagMismatch = zerr.New("etag mismatch")

	// ErrCacheDisabled is returned when a persistent-cache operation is requested with a memory-only cache.
	ErrCacheDisabled = zerr.New("persistent cache is disabled")

	// ErrPackCorrupt is returned when a pack file header or body cannot be read.
	ErrPackCorrupt = zerr.New("pack file corrupt")

	// ErrPackWriteFailed is returned when a pack file cannot be written.
	ErrPackWriteFailed = zerr.New("failed to write pack file")

	// ErrPackReadFailed is returned when a pack file cannot be read.
	ErrPackReadFailed = zerr.New("failed to read pack file")

	// ErrStoreCreateFailed is returned when the cache directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create cache directory")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no stash.yaml can be found.
	ErrConfigNotFound = zerr.New("could not find stashfile")

	// ErrInvalidSnapshotMode is returned when a snapshot mode string is not recognized.
	ErrInvalidSnapshotMode = zerr.New("invalid snapshot mode, expected 'timestamp', 'hash' or 'timestamp+hash'")

	// ErrInvalidCacheType is returned when the cache type is not recognized.
	ErrInvalidCacheType = zerr.New("invalid cache type, expected 'memory' or 'filesystem'")

	// ErrPathStatFailed is returned when stating a path fails for a reason other than absence.
	ErrPathStatFailed = zerr.New("failed to stat path")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrDirListFailed is returned when reading a directory listing fails.
	ErrDirListFailed = zerr.New("failed to read directory listing")

	// ErrManifestReadFailed is returned when a package manifest cannot be read.
	ErrManifestReadFailed = zerr.New("failed to read package manifest")

	// ErrManifestParseFailed is returned when a package manifest cannot be parsed.
	ErrManifestParseFailed = zerr.New("failed to parse package manifest")

	// ErrManifestNotFound is returned when no enclosing package manifest exists for a path.
	ErrManifestNotFound = zerr.New("no enclosing package manifest")

	// ErrModuleLoadFailed is returned when the module loader cannot read a module source.
	ErrModuleLoadFailed = zerr.New("failed to load module source")

	// ErrFlushFailed is returned when a scheduled flush could not complete.
	ErrFlushFailed = zerr.New("cache flush failed")

	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = zerr.New("cache session already closed")
)
