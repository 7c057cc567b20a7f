package ports

// PackageInfo describes one package manifest.
type PackageInfo struct {
	// Name is the declared package name.
	Name string
	// Version is the declared package version.
	Version string
	// Dir is the directory containing the manifest.
	Dir string
	// ManifestPath is the manifest file the info was parsed from. Build
	// dependency resolution tracks it: the declared dependencies drive the
	// expansion, so an edit must invalidate the resolution.
	ManifestPath string
	// Dependencies lists the names of the package's declared dependencies.
	Dependencies []string
}

// ID returns the package identity used by managed-path tracking.
func (p PackageInfo) ID() string {
	return p.Name + "@" + p.Version
}

// PackageReader reads package-manager manifests. It backs both the
// managed-path classifier (identity reads) and directory-rooted build
// dependency resolution (declared dependency expansion).
//
//go:generate mockgen -source=manifest.go -destination=mocks/mock_manifest.go -package=mocks
type PackageReader interface {
	// Nearest returns the manifest of the nearest enclosing package for the
	// given path, or domain.ErrManifestNotFound.
	Nearest(path string) (*PackageInfo, error)

	// Resolve locates a dependency by name as it would be resolved from
	// fromDir, or domain.ErrManifestNotFound.
	Resolve(name, fromDir string) (*PackageInfo, error)
}
