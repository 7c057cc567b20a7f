// Package loader implements the module-load graph scanner for JavaScript
// build files. Given a module it reports the paths loading it touches, which
// the build-dependency resolver expands into a transitive closure. The
// discovery follows the specifiers the file actually declares, so the
// closure covers the code paths the current configuration exercises rather
// than a static superset.
package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ModuleLoader = (*Loader)(nil)

// specifier patterns covering CommonJS and ES module syntax.
var (
	requireRe = regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	importRe  = regexp.MustCompile(`(?m)^\s*(?:import|export)\b[^'"\n]*['"]([^'"]+)['"]`)
	dynamicRe = regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`)
)

// resolveExtensions are tried, in order, when a specifier has no extension.
var resolveExtensions = []string{"", ".js", ".cjs", ".mjs", ".json"}

// Loader implements ports.ModuleLoader for JavaScript sources.
type Loader struct{}

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load returns the direct dependencies of the module at path, resolved to
// filesystem paths. Specifiers that cannot be resolved (e.g. node built-ins)
// are skipped; the module itself being unreadable is an error.
func (l *Loader) Load(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from configured roots
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrModuleLoadFailed.Error()), "path", path)
	}

	source := string(data)
	dir := filepath.Dir(path)

	seen := make(map[string]struct{})
	var deps []string
	for _, re := range []*regexp.Regexp{requireRe, importRe, dynamicRe} {
		for _, match := range re.FindAllStringSubmatch(source, -1) {
			spec := match[1]
			resolved, ok := l.resolve(spec, dir)
			if !ok {
				continue
			}
			if _, dup := seen[resolved]; dup {
				continue
			}
			seen[resolved] = struct{}{}
			deps = append(deps, resolved)
		}
	}
	return deps, nil
}

// resolve maps a specifier to a file path, or reports false for specifiers
// outside the filesystem (node built-ins, unresolvable packages).
func (l *Loader) resolve(spec, fromDir string) (string, bool) {
	if strings.HasPrefix(spec, "node:") {
		return "", false
	}
	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return resolveFile(filepath.Join(fromDir, spec))
	}
	return l.resolvePackage(spec, fromDir)
}

// resolvePackage resolves a bare specifier through node_modules, walking up
// from fromDir the way the runtime loader does.
func (l *Loader) resolvePackage(spec, fromDir string) (string, bool) {
	name, subpath := splitPackageSpec(spec)

	dir := fromDir
	for {
		pkgDir := filepath.Join(dir, "node_modules", name)
		if info, err := os.Stat(pkgDir); err == nil && info.IsDir() {
			if subpath != "" {
				return resolveFile(filepath.Join(pkgDir, subpath))
			}
			return resolveEntry(pkgDir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// splitPackageSpec splits "pkg/sub/path" into package name and subpath,
// keeping "@scope/pkg" together.
func splitPackageSpec(spec string) (name, subpath string) {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 {
			return spec, ""
		}
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			subpath = parts[2]
		}
		return name, subpath
	}
	name = parts[0]
	if len(parts) > 1 {
		subpath = strings.Join(parts[1:], "/")
	}
	return name, subpath
}

// resolveEntry finds a package's entry module: the manifest's main field,
// falling back to index.js.
func resolveEntry(pkgDir string) (string, bool) {
	manifestPath := filepath.Join(pkgDir, "package.json")
	if data, err := os.ReadFile(manifestPath); err == nil { //nolint:gosec // Derived from tracked roots
		var dto struct {
			Main string `json:"main"`
		}
		if json.Unmarshal(data, &dto) == nil && dto.Main != "" {
			if path, ok := resolveFile(filepath.Join(pkgDir, dto.Main)); ok {
				return path, true
			}
		}
	}
	return resolveFile(filepath.Join(pkgDir, "index.js"))
}

// resolveFile tries extension and index resolution for a candidate path.
func resolveFile(candidate string) (string, bool) {
	for _, ext := range resolveExtensions {
		path := candidate + ext
		if info, err := os.Stat(path); err == nil {
			if info.IsDir() {
				if idx, ok := resolveFile(filepath.Join(path, "index")); ok {
					return idx, true
				}
				continue
			}
			return path, true
		}
	}
	return "", false
}
