// Package ports defines the core interfaces for the application.
package ports

// FileInfo is the observable state of a path, as seen by the snapshot engine.
type FileInfo struct {
	// Exists reports whether the path exists. Absence is not an error:
	// missing paths are tracked dependencies in their own right.
	Exists bool
	// Dir reports whether the path is a directory.
	Dir bool
	// MTimeNano is the modification time in UnixNano (0 when absent).
	MTimeNano int64
	// Size is the file size in bytes (0 for directories and absent paths).
	Size int64
}

// FileReader abstracts the filesystem reads the snapshot engine performs,
// so capture and comparison can be driven by a virtual filesystem in tests.
//
//go:generate mockgen -source=filesystem.go -destination=mocks/mock_filesystem.go -package=mocks
type FileReader interface {
	// Stat returns the observable state of a path. A missing path yields
	// FileInfo{Exists: false} with a nil error.
	Stat(path string) (FileInfo, error)

	// Hash returns the content digest of a file.
	Hash(path string) (uint64, error)

	// HashListing returns the digest of a directory's sorted entry listing.
	// Comparing a context dependency means comparing the listing, not the
	// contents of the listed files.
	HashListing(dir string) (uint64, error)
}
