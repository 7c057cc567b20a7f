// Package resolve expands configured build dependency roots into the
// transitive closure of files that affect build-time code.
package resolve

import (
	"fmt"
	"strings"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
)

// Resolver turns build dependency roots into dependency sets. Directory
// roots expand through package manifests, file roots through the
// load-order module graph. Resolution fails softly: an unresolvable root
// is recorded as missing and reported, never fatal.
type Resolver struct {
	files    ports.FileReader
	packages ports.PackageReader
	loader   ports.ModuleLoader
	logger   ports.Logger
}

// NewResolver creates a resolver backed by the given readers.
func NewResolver(files ports.FileReader, packages ports.PackageReader, loader ports.ModuleLoader, logger ports.Logger) *Resolver {
	return &Resolver{
		files:    files,
		packages: packages,
		loader:   loader,
		logger:   logger,
	}
}

// Resolve expands the given roots into a single deduplicated
// DependencySet. Roots are processed independently; a root that cannot be
// resolved lands in the missing set and resolution continues with the
// rest.
func (r *Resolver) Resolve(roots []domain.BuildDependency) *domain.DependencySet {
	deps := domain.NewDependencySet()
	for _, root := range roots {
		if root.IsDir() {
			r.resolveDir(root, deps)
			continue
		}
		r.resolveFile(root, deps)
	}
	return deps
}

// resolveDir expands a directory root through its nearest enclosing
// package manifest, then recursively through the declared dependencies of
// that package. The directory itself becomes a context dependency so new
// entries invalidate the set even when no manifest changes.
func (r *Resolver) resolveDir(root domain.BuildDependency, deps *domain.DependencySet) {
	dir := strings.TrimRight(root.Root, `/\`)

	info, err := r.files.Stat(dir)
	if err != nil || !info.Exists {
		r.missing(root, dir, deps)
		return
	}
	deps.Dirs.Add(dir)

	pkg, err := r.packages.Nearest(dir)
	if err != nil {
		// No manifest: the listing is all we can track.
		return
	}
	seen := make(map[string]struct{})
	r.expandPackage(pkg, deps, seen)
}

// expandPackage records a package's directory and manifest file, then
// recurses into its declared dependencies. Visited packages are skipped so
// cyclic dependency declarations terminate. The manifest file is a tracked
// dependency in its own right: the listing does not change when a version
// is bumped or a dependency added, but the expansion derived from it does.
func (r *Resolver) expandPackage(pkg *ports.PackageInfo, deps *domain.DependencySet, seen map[string]struct{}) {
	if _, ok := seen[pkg.ID()]; ok {
		return
	}
	seen[pkg.ID()] = struct{}{}
	deps.Dirs.Add(pkg.Dir)
	if pkg.ManifestPath != "" {
		deps.Files.Add(pkg.ManifestPath)
	}

	for _, name := range pkg.Dependencies {
		dep, err := r.packages.Resolve(name, pkg.Dir)
		if err != nil {
			r.warn(fmt.Sprintf("build dependency %q of %s not installed", name, pkg.ID()))
			continue
		}
		r.expandPackage(dep, deps, seen)
	}
}

// resolveFile expands a file root by following the module-load graph the
// file exercises. Discovery is load-order based: only the paths actually
// touched when loading the root are tracked, so the closure reflects the
// current configuration rather than a static superset.
func (r *Resolver) resolveFile(root domain.BuildDependency, deps *domain.DependencySet) {
	info, err := r.files.Stat(root.Root)
	if err != nil || !info.Exists {
		r.missing(root, root.Root, deps)
		return
	}

	seen := make(map[string]struct{})
	queue := []string{root.Root}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		deps.Files.Add(path)

		imports, err := r.loader.Load(path)
		if err != nil {
			r.warn(fmt.Sprintf("failed to follow module %s: %v", path, err))
			continue
		}
		queue = append(queue, imports...)
	}
}

// missing records an unresolvable root. Absence is a dependency of its
// own: creating the path later must invalidate whatever depended on the
// resolution result.
func (r *Resolver) missing(root domain.BuildDependency, path string, deps *domain.DependencySet) {
	deps.Missing.Add(path)
	err := zerr.With(domain.ErrMissingBuildDependency, "path", path)
	r.warn(zerr.With(err, "name", root.Name).Error())
}

func (r *Resolver) warn(msg string) {
	if r.logger != nil {
		r.logger.Warn(msg)
	}
}
