// Package manifest reads package-manager manifests (package.json) for
// managed-path identity checks and directory-rooted dependency expansion.
package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
)

// ManifestFileName is the manifest file looked up next to package roots.
const ManifestFileName = "package.json"

var _ ports.PackageReader = (*Reader)(nil)

// Reader implements ports.PackageReader over package.json files. Parsed
// manifests are memoized per directory for the lifetime of the reader;
// manifest files under managed roots change only on install operations, so
// a session-scoped memo is safe.
type Reader struct {
	mu   sync.Mutex
	memo map[string]*ports.PackageInfo
}

// NewReader creates a new manifest Reader.
func NewReader() *Reader {
	return &Reader{memo: make(map[string]*ports.PackageInfo)}
}

// manifestDTO is the subset of package.json the cache engine needs.
type manifestDTO struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Nearest returns the manifest of the nearest enclosing package for path.
func (r *Reader) Nearest(path string) (*ports.PackageInfo, error) {
	dir := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}

	for {
		info, err := r.readDir(dir)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, domain.ErrManifestNotFound) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, zerr.With(domain.ErrManifestNotFound, "path", path)
		}
		dir = parent
	}
}

// Resolve locates a dependency by name the way a module loader would:
// walking up from fromDir through node_modules directories.
func (r *Reader) Resolve(name, fromDir string) (*ports.PackageInfo, error) {
	dir := fromDir
	for {
		candidate := filepath.Join(dir, "node_modules", name)
		if info, err := r.readDir(candidate); err == nil {
			return info, nil
		} else if !errors.Is(err, domain.ErrManifestNotFound) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			err := zerr.With(domain.ErrManifestNotFound, "package", name)
			return nil, zerr.With(err, "from", fromDir)
		}
		dir = parent
	}
}

// readDir parses the manifest directly inside dir, if any.
func (r *Reader) readDir(dir string) (*ports.PackageInfo, error) {
	r.mu.Lock()
	if cached, ok := r.memo[dir]; ok {
		r.mu.Unlock()
		if cached == nil {
			return nil, zerr.With(domain.ErrManifestNotFound, "dir", dir)
		}
		return cached, nil
	}
	r.mu.Unlock()

	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path) //nolint:gosec // Path is derived from tracked roots
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.remember(dir, nil)
			return nil, zerr.With(domain.ErrManifestNotFound, "dir", dir)
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrManifestReadFailed.Error()), "path", path)
	}

	var dto manifestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrManifestParseFailed.Error()), "path", path)
	}

	info := &ports.PackageInfo{
		Name:         dto.Name,
		Version:      dto.Version,
		Dir:          dir,
		ManifestPath: path,
		Dependencies: dependencyNames(dto),
	}
	r.remember(dir, info)
	return info, nil
}

func (r *Reader) remember(dir string, info *ports.PackageInfo) {
	r.mu.Lock()
	r.memo[dir] = info
	r.mu.Unlock()
}

func dependencyNames(dto manifestDTO) []string {
	names := make(map[string]struct{}, len(dto.Dependencies)+len(dto.DevDependencies))
	for name := range dto.Dependencies {
		names[name] = struct{}{}
	}
	for name := range dto.DevDependencies {
		names[name] = struct{}{}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
