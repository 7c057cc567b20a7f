// Package config provides the configuration loader for stash.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	defaultIdleTimeout = 60 * time.Second
	defaultMaxAge      = 30 * 24 * time.Hour
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load discovers stash.yaml walking up from cwd and returns the validated
// configuration.
func (l *Loader) Load(cwd string) (*domain.Config, error) {
	configPath, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	var stashfile Stashfile
	if err := readAndUnmarshalYAML(configPath, &stashfile); err != nil {
		return nil, err
	}

	return l.buildConfig(configPath, &stashfile)
}

func (l *Loader) findConfiguration(cwd string) (string, error) {
	currentDir := cwd

	for {
		stashfilePath := filepath.Join(currentDir, domain.StashFileName)
		if _, err := os.Stat(stashfilePath); err == nil {
			return stashfilePath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

func (l *Loader) buildConfig(configPath string, stashfile *Stashfile) (*domain.Config, error) {
	root := filepath.Clean(filepath.Dir(configPath))

	cacheType, err := domain.ParseCacheType(stashfile.Cache.Type)
	if err != nil {
		return nil, err
	}

	name := stashfile.Cache.Name
	if name == "" {
		name = domain.DefaultCacheName
	}

	idleTimeout, err := parseDuration(stashfile.Cache.IdleTimeout, "cache.idleTimeout", defaultIdleTimeout)
	if err != nil {
		return nil, err
	}
	initialTimeout, err := parseDuration(stashfile.Cache.IdleTimeoutForInitialStore, "cache.idleTimeoutForInitialStore", 0)
	if err != nil {
		return nil, err
	}
	maxAge, err := parseDuration(stashfile.Cache.MaxAge, "cache.maxAge", defaultMaxAge)
	if err != nil {
		return nil, err
	}

	modes, err := parseModes(&stashfile.Snapshot)
	if err != nil {
		return nil, err
	}

	if cacheType == domain.CacheMemory && (stashfile.Cache.IdleTimeout != "" || stashfile.Cache.MaxAge != "") {
		l.Logger.Warn(fmt.Sprintf("persistence settings in %s have no effect with a memory cache", domain.StashFileName))
	}

	buildDeps := make(map[string][]string, len(stashfile.Cache.BuildDependencies))
	for group, roots := range stashfile.Cache.BuildDependencies {
		resolved := make([]string, 0, len(roots))
		for _, r := range roots {
			resolved = append(resolved, absolutize(root, r))
		}
		buildDeps[group] = resolved
	}

	return &domain.Config{
		Root:                       root,
		Type:                       cacheType,
		Version:                    stashfile.Cache.Version,
		Name:                       name,
		BuildDependencies:          buildDeps,
		IdleTimeout:                idleTimeout,
		IdleTimeoutForInitialStore: initialTimeout,
		MaxAge:                     maxAge,
		ManagedPaths:               absolutizeAll(root, stashfile.Snapshot.ManagedPaths),
		ImmutablePaths:             absolutizeAll(root, stashfile.Snapshot.ImmutablePaths),
		Modes:                      modes,
	}, nil
}

func parseModes(dto *SnapshotDTO) (domain.SnapshotModes, error) {
	var modes domain.SnapshotModes
	for _, field := range []struct {
		raw  string
		name string
		dst  *domain.SnapshotMode
	}{
		{dto.Resolve, "snapshot.resolve", &modes.Resolve},
		{dto.Module, "snapshot.module", &modes.Module},
		{dto.BuildDependencies, "snapshot.buildDependencies", &modes.BuildDependencies},
		{dto.ResolveBuildDependencies, "snapshot.resolveBuildDependencies", &modes.ResolveBuildDependencies},
	} {
		mode, err := domain.ParseSnapshotMode(field.raw)
		if err != nil {
			return modes, zerr.With(err, "field", field.name)
		}
		*field.dst = mode
	}
	return modes, nil
}

func parseDuration(raw, field string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "field", field)
	}
	if d < 0 {
		return 0, zerr.With(domain.ErrConfigParseFailed, "field", field)
	}
	return d, nil
}

// absolutize resolves a configured path against the project root. A trailing
// separator marks a directory root and survives cleaning.
func absolutize(root, path string) string {
	isDir := strings.HasSuffix(path, "/") || strings.HasSuffix(path, "\\")

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)

	if isDir {
		resolved += string(filepath.Separator)
	}
	return resolved
}

func absolutizeAll(root string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, absolutize(root, p))
	}
	return out
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is validated by caller
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}
