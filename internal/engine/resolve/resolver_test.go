package resolve_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stash/internal/adapters/fs"
	"go.trai.ch/stash/internal/adapters/loader"
	"go.trai.ch/stash/internal/adapters/manifest"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/stash/internal/core/ports/mocks"
	"go.trai.ch/stash/internal/engine/resolve"
	"go.trai.ch/stash/internal/engine/snapshot"
	"go.uber.org/mock/gomock"
)

func newResolver() *resolve.Resolver {
	return resolve.NewResolver(fs.NewReader(), manifest.NewReader(), loader.NewLoader(), nil)
}

func write(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolve_FileRoot_TransitiveClosure(t *testing.T) {
	root := t.TempDir()
	cfg := write(t, root, "build.config.js", `const base = require("./base.config");`)
	base := write(t, root, "base.config.js", `const util = require("./lib/util");`)
	util := write(t, root, "lib/util.js", `module.exports = {};`)
	write(t, root, "unrelated.js", `require("./lib/util");`)

	deps := newResolver().Resolve([]domain.BuildDependency{{Name: "config", Root: cfg}})

	assert.ElementsMatch(t, []string{cfg, base, util}, deps.Files.Sorted())
	assert.Empty(t, deps.Missing)
}

func TestResolve_FileRoot_CyclicGraphTerminates(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "a.js", `require("./b");`)
	b := write(t, root, "b.js", `require("./a");`)

	deps := newResolver().Resolve([]domain.BuildDependency{{Name: "config", Root: a}})

	assert.ElementsMatch(t, []string{a, b}, deps.Files.Sorted())
}

func TestResolve_MissingRoot_FailsSoft(t *testing.T) {
	root := t.TempDir()
	present := write(t, root, "present.js", `module.exports = {};`)
	absent := filepath.Join(root, "absent.js")

	ctrl := gomock.NewController(t)
	lg := mocks.NewMockLogger(ctrl)
	lg.EXPECT().Warn(gomock.Any())

	r := resolve.NewResolver(fs.NewReader(), manifest.NewReader(), loader.NewLoader(), lg)
	deps := r.Resolve([]domain.BuildDependency{
		{Name: "config", Root: absent},
		{Name: "config", Root: present},
	})

	// The unresolvable root is tracked as absent; the rest still resolves.
	assert.Equal(t, []string{absent}, deps.Missing.Sorted())
	assert.Equal(t, []string{present}, deps.Files.Sorted())
}

func TestResolve_DirRoot_ManifestExpansion(t *testing.T) {
	root := t.TempDir()
	write(t, root, "tool/package.json", `{"name": "tool", "version": "1.0.0", "dependencies": {"lib-a": "^1.0.0"}}`)
	write(t, root, "tool/node_modules/lib-a/package.json", `{"name": "lib-a", "version": "1.2.0", "dependencies": {"lib-b": "^2.0.0"}}`)
	write(t, root, "tool/node_modules/lib-b/package.json", `{"name": "lib-b", "version": "2.1.0"}`)

	deps := newResolver().Resolve([]domain.BuildDependency{
		{Name: "tooling", Root: filepath.Join(root, "tool") + string(filepath.Separator)},
	})

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "tool"),
		filepath.Join(root, "tool", "node_modules", "lib-a"),
		filepath.Join(root, "tool", "node_modules", "lib-b"),
	}, deps.Dirs.Sorted())
	// Every visited manifest is a tracked file: the expansion is derived
	// from its declarations, not from the directory listings.
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "tool", "package.json"),
		filepath.Join(root, "tool", "node_modules", "lib-a", "package.json"),
		filepath.Join(root, "tool", "node_modules", "lib-b", "package.json"),
	}, deps.Files.Sorted())
	assert.Empty(t, deps.Missing)
}

func TestResolve_DirRoot_ManifestEditInvalidates(t *testing.T) {
	root := t.TempDir()
	manifestPath := write(t, root, "tool/package.json", `{"name": "tool", "version": "1.0.0"}`)

	deps := newResolver().Resolve([]domain.BuildDependency{
		{Name: "tooling", Root: filepath.Join(root, "tool") + string(filepath.Separator)},
	})
	require.Contains(t, deps.Files.Sorted(), manifestPath)

	eng := snapshot.NewEngine(fs.NewReader(), manifest.NewReader(), snapshot.NewClassifier(nil, nil), nil)
	snap, err := eng.Capture(t.Context(), deps, domain.ModeContentHash)
	require.NoError(t, err)

	// A version bump plus a new dependency changes the expansion without
	// touching the directory listing.
	write(t, root, "tool/package.json", `{"name": "tool", "version": "1.0.1", "dependencies": {"lib-a": "^1.0.0"}}`)

	result, err := eng.Compare(t.Context(), snap)
	require.NoError(t, err)
	assert.Contains(t, result.Changed, manifestPath)
}

func TestResolve_DirRoot_UninstalledDependencyWarns(t *testing.T) {
	root := t.TempDir()
	write(t, root, "tool/package.json", `{"name": "tool", "version": "1.0.0", "dependencies": {"ghost": "^1.0.0"}}`)

	ctrl := gomock.NewController(t)
	lg := mocks.NewMockLogger(ctrl)
	lg.EXPECT().Warn(gomock.Any())

	r := resolve.NewResolver(fs.NewReader(), manifest.NewReader(), loader.NewLoader(), lg)
	deps := r.Resolve([]domain.BuildDependency{
		{Name: "tooling", Root: filepath.Join(root, "tool") + string(filepath.Separator)},
	})

	assert.Equal(t, []string{filepath.Join(root, "tool")}, deps.Dirs.Sorted())
}

func TestResolve_DirRoot_CyclicPackagesTerminate(t *testing.T) {
	ctrl := gomock.NewController(t)

	files := mocks.NewMockFileReader(ctrl)
	files.EXPECT().Stat("/w/a").Return(ports.FileInfo{Exists: true, Dir: true}, nil)

	pkgA := &ports.PackageInfo{Name: "a", Version: "1", Dir: "/w/a", Dependencies: []string{"b"}}
	pkgB := &ports.PackageInfo{Name: "b", Version: "1", Dir: "/w/b", Dependencies: []string{"a"}}

	packages := mocks.NewMockPackageReader(ctrl)
	packages.EXPECT().Nearest("/w/a").Return(pkgA, nil)
	packages.EXPECT().Resolve("b", "/w/a").Return(pkgB, nil)
	packages.EXPECT().Resolve("a", "/w/b").Return(pkgA, nil)

	r := resolve.NewResolver(files, packages, mocks.NewMockModuleLoader(ctrl), nil)
	deps := r.Resolve([]domain.BuildDependency{{Name: "tooling", Root: "/w/a/"}})

	assert.ElementsMatch(t, []string{"/w/a", "/w/b"}, deps.Dirs.Sorted())
}
