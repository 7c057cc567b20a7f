package domain

import "path/filepath"

const (
	// StashDirName is the name of the internal metadata directory.
	StashDirName = ".stash"

	// CacheDirName is the name of the cache directory under StashDirName.
	CacheDirName = "cache"

	// DefaultCacheName is the namespace used when cache.name is not configured.
	DefaultCacheName = "default"

	// StashFileName is the name of the project configuration file.
	StashFileName = "stash.yaml"

	// PackFileExt is the file extension for cache pack files.
	PackFileExt = ".pack"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultStashPath returns the default root directory for stash metadata.
func DefaultStashPath() string {
	return StashDirName
}

// CacheNamespacePath returns the directory holding the pack files for the
// given cache name. Distinct names yield fully independent caches.
func CacheNamespacePath(root, name string) string {
	if name == "" {
		name = DefaultCacheName
	}
	return filepath.Join(root, StashDirName, CacheDirName, name)
}
