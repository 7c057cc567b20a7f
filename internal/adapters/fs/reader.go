// Package fs provides the os-backed filesystem reader used by the snapshot
// engine: stats, content digests, and directory-listing digests.
package fs

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.FileReader = (*Reader)(nil)

// Reader implements ports.FileReader against the local filesystem.
type Reader struct{}

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Stat returns the observable state of a path. Absence is reported through
// FileInfo.Exists, not as an error.
func (r *Reader) Stat(path string) (ports.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ports.FileInfo{}, nil
		}
		return ports.FileInfo{}, zerr.With(zerr.Wrap(err, domain.ErrPathStatFailed.Error()), "path", path)
	}

	fi := ports.FileInfo{
		Exists:    true,
		Dir:       info.IsDir(),
		MTimeNano: info.ModTime().UnixNano(),
	}
	if !info.IsDir() {
		fi.Size = info.Size()
	}
	return fi, nil
}

// Hash computes the XXHash of a file's content.
func (r *Reader) Hash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}
	return hasher.Sum64(), nil
}

// HashListing computes the XXHash of a directory's sorted entry names.
// Comparing a context dependency means comparing the listing, so renames,
// additions and removals inside the directory all change the digest while
// content edits to listed files do not.
func (r *Reader) HashListing(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrDirListFailed.Error()), "path", dir)
	}

	// os.ReadDir returns entries sorted by name already.
	hasher := xxhash.New()
	for _, entry := range entries {
		_, _ = hasher.WriteString(entry.Name())
		if entry.IsDir() {
			_, _ = hasher.Write([]byte{'/'})
		}
		_, _ = hasher.Write([]byte{0})
	}
	return hasher.Sum64(), nil
}
