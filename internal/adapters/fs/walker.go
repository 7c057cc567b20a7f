package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker yields the files under a root directory, skipping VCS metadata.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// skipDirectories are directory names never worth tracking.
var skipDirectories = map[string]bool{
	".git": true,
	".jj":  true,
}

// WalkFiles yields all file paths under root, skipping VCS directories and
// any directory matching one of the ignore patterns.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if skipDirectories[d.Name()] || matchesAny(d.Name(), ignores) {
					return filepath.SkipDir
				}
				return nil
			}

			if matchesAny(d.Name(), ignores) {
				return nil
			}

			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
