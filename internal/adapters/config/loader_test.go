package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/stash/internal/adapters/config"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports/mocks"
)

func newLoader(t *testing.T) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	lg := mocks.NewMockLogger(ctrl)
	lg.EXPECT().Warn(gomock.Any()).AnyTimes()
	return config.NewLoader(lg)
}

func writeStashfile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, domain.StashFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache:\n  version: \"v1\"\n")

	cfg, err := newLoader(t).Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, domain.CacheFilesystem, cfg.Type)
	assert.True(t, cfg.Persistent())
	assert.Equal(t, "v1", cfg.Version)
	assert.Equal(t, domain.DefaultCacheName, cfg.Name)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeoutForInitialStore)
	assert.Equal(t, 30*24*time.Hour, cfg.MaxAge)
	assert.Equal(t, domain.ModeTimestamp, cfg.Modes.Resolve)
	assert.Equal(t, domain.ModeTimestamp, cfg.Modes.Module)
}

func TestLoad_FullSurface(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, `
cache:
  type: filesystem
  version: "2024.1"
  name: ci
  idleTimeout: 30s
  idleTimeoutForInitialStore: 5s
  maxAge: 168h
  buildDependencies:
    compiler:
      - tools/compile.js
      - vendor/toolchain/
snapshot:
  managedPaths:
    - node_modules/
  immutablePaths:
    - .pnpm-store/
  resolve: hash
  module: timestamp+hash
  buildDependencies: timestamp
  resolveBuildDependencies: hash
`)

	cfg, err := newLoader(t).Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "2024.1", cfg.Version)
	assert.Equal(t, "ci", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.IdleTimeoutForInitialStore)
	assert.Equal(t, 168*time.Hour, cfg.MaxAge)

	assert.Equal(t, domain.ModeContentHash, cfg.Modes.Resolve)
	assert.Equal(t, domain.ModeBoth, cfg.Modes.Module)
	assert.Equal(t, domain.ModeTimestamp, cfg.Modes.BuildDependencies)
	assert.Equal(t, domain.ModeContentHash, cfg.Modes.ResolveBuildDependencies)

	sep := string(filepath.Separator)
	assert.Equal(t, []string{filepath.Join(dir, "node_modules") + sep}, cfg.ManagedPaths)
	assert.Equal(t, []string{filepath.Join(dir, ".pnpm-store") + sep}, cfg.ImmutablePaths)

	require.Contains(t, cfg.BuildDependencies, "compiler")
	assert.Equal(t, []string{
		filepath.Join(dir, "tools", "compile.js"),
		filepath.Join(dir, "vendor", "toolchain") + sep,
	}, cfg.BuildDependencies["compiler"])
}

func TestLoad_RootsFlattened(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, `
cache:
  buildDependencies:
    b:
      - beta.js
    a:
      - alpha.js
`)

	cfg, err := newLoader(t).Load(dir)
	require.NoError(t, err)

	roots := cfg.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].Name)
	assert.Equal(t, filepath.Join(dir, "alpha.js"), roots[0].Root)
	assert.False(t, roots[0].IsDir())
	assert.Equal(t, "b", roots[1].Name)
}

func TestLoad_WalksUpToConfiguration(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache:\n  name: outer\n")
	nested := filepath.Join(dir, "packages", "web", "src")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	cfg, err := newLoader(t).Load(nested)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "outer", cfg.Name)
}

func TestLoad_NearestConfigurationWins(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache:\n  name: outer\n")
	inner := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(inner, 0o750))
	writeStashfile(t, inner, "cache:\n  name: inner\n")

	cfg, err := newLoader(t).Load(inner)
	require.NoError(t, err)

	assert.Equal(t, inner, cfg.Root)
	assert.Equal(t, "inner", cfg.Name)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := newLoader(t).Load(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache: [unclosed\n")

	_, err := newLoader(t).Load(dir)
	assert.ErrorContains(t, err, domain.ErrConfigParseFailed.Error())
}

func TestLoad_InvalidCacheType(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache:\n  type: s3\n")

	_, err := newLoader(t).Load(dir)
	assert.ErrorIs(t, err, domain.ErrInvalidCacheType)
}

func TestLoad_InvalidSnapshotMode(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "snapshot:\n  resolve: checksum\n")

	_, err := newLoader(t).Load(dir)
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshotMode)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache:\n  idleTimeout: soon\n")

	_, err := newLoader(t).Load(dir)
	assert.ErrorContains(t, err, domain.ErrConfigParseFailed.Error())
}

func TestLoad_MemoryCacheWarnsOnPersistenceSettings(t *testing.T) {
	dir := t.TempDir()
	writeStashfile(t, dir, "cache:\n  type: memory\n  idleTimeout: 10s\n")

	ctrl := gomock.NewController(t)
	lg := mocks.NewMockLogger(ctrl)
	lg.EXPECT().Warn(gomock.Any())

	cfg, err := config.NewLoader(lg).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, domain.CacheMemory, cfg.Type)
	assert.False(t, cfg.Persistent())
}
