package persist_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stash/internal/codec"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/engine/persist"
)

func newRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	reg := codec.NewRegistry()
	persist.RegisterTypes(reg)
	return reg
}

func entry(key, etag string, accessed time.Time) *domain.CacheEntry {
	return &domain.CacheEntry{
		Key:            domain.CacheKey(key),
		Etag:           etag,
		Payload:        "payload-" + key,
		LastAccessedAt: accessed,
	}
}

func TestPack_RoundTrip(t *testing.T) {
	reg := newRegistry(t)
	path := filepath.Join(t.TempDir(), "0000"+domain.PackFileExt)

	snap := domain.NewSnapshot(domain.ModeBoth)
	snap.Record("/repo/stash.yaml", domain.PathState{MTime: 42, Digest: 7, CapturedAt: 1})
	snap.Record("/repo/missing.js", domain.PathState{Missing: true, CapturedAt: 1})

	accessed := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	in := &persist.Pack{
		Version: "v1",
		Snapshots: map[string]*domain.Snapshot{
			"buildDependencies": snap,
		},
		Entries: []*domain.CacheEntry{
			entry("module:a", "etag-a", accessed),
			entry("module:b", "etag-b", accessed),
		},
	}
	require.NoError(t, persist.WritePack(path, in, reg))

	out, err := persist.ReadPack(path, reg)
	require.NoError(t, err)
	assert.Equal(t, "v1", out.Version)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, domain.CacheKey("module:a"), out.Entries[0].Key)
	assert.Equal(t, "payload-module:a", out.Entries[0].Payload)
	assert.Equal(t, accessed, out.Entries[0].LastAccessedAt)

	got := out.Snapshots["buildDependencies"]
	require.NotNil(t, got)
	assert.Equal(t, domain.ModeBoth, got.Mode)
	state, ok := got.Lookup("/repo/missing.js")
	require.True(t, ok)
	assert.True(t, state.Missing)
}

func TestPack_HeaderOnly(t *testing.T) {
	reg := newRegistry(t)
	path := filepath.Join(t.TempDir(), "0000"+domain.PackFileExt)

	in := &persist.Pack{
		Version: "v2",
		Entries: []*domain.CacheEntry{
			entry("b", "e", time.Now()),
			entry("a", "e", time.Now()),
		},
	}
	require.NoError(t, persist.WritePack(path, in, reg))

	head, err := persist.ReadHeader(path, reg)
	require.NoError(t, err)
	assert.Equal(t, "v2", head.Version)
	assert.Equal(t, []string{"a", "b"}, head.Keys)
	assert.False(t, head.CreatedAt.IsZero())
}

func TestPack_SharedPayloadIdentity(t *testing.T) {
	reg := newRegistry(t)
	path := filepath.Join(t.TempDir(), "0000"+domain.PackFileExt)

	shared := domain.NewDependencySet()
	shared.Files.Add("/repo/shared.js")
	in := &persist.Pack{
		Version: "v1",
		Entries: []*domain.CacheEntry{
			{Key: "a", Etag: "e", Payload: shared, LastAccessedAt: time.Now()},
			{Key: "b", Etag: "e", Payload: shared, LastAccessedAt: time.Now()},
		},
	}
	require.NoError(t, persist.WritePack(path, in, reg))

	out, err := persist.ReadPack(path, reg)
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)
	// The shared payload survives as one instance, not two copies.
	assert.Same(t, out.Entries[0].Payload, out.Entries[1].Payload)
}

func TestPack_MissingFile(t *testing.T) {
	reg := newRegistry(t)
	path := filepath.Join(t.TempDir(), "0000"+domain.PackFileExt)

	_, err := persist.ReadHeader(path, reg)
	require.ErrorIs(t, err, domain.ErrPackReadFailed)

	_, err = persist.ReadPack(path, reg)
	require.ErrorIs(t, err, domain.ErrPackReadFailed)
}

func TestPack_CorruptFile(t *testing.T) {
	reg := newRegistry(t)
	path := filepath.Join(t.TempDir(), "0000"+domain.PackFileExt)
	require.NoError(t, os.WriteFile(path, []byte("not a pack"), 0o644))

	_, err := persist.ReadHeader(path, reg)
	require.ErrorIs(t, err, domain.ErrPackCorrupt)

	_, err = persist.ReadPack(path, reg)
	require.ErrorIs(t, err, domain.ErrPackCorrupt)
}

func TestPack_TruncatedBody(t *testing.T) {
	reg := newRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "0000"+domain.PackFileExt)

	in := &persist.Pack{
		Version: "v1",
		Entries: []*domain.CacheEntry{entry("a", "e", time.Now())},
	}
	require.NoError(t, persist.WritePack(path, in, reg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-4], 0o644))

	// The header survives; the body does not.
	_, err = persist.ReadHeader(path, reg)
	require.NoError(t, err)
	_, err = persist.ReadPack(path, reg)
	require.ErrorIs(t, err, domain.ErrPackCorrupt)
}

func TestPack_WriteLeavesNoTempFiles(t *testing.T) {
	reg := newRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "0000"+domain.PackFileExt)

	in := &persist.Pack{Version: "v1", Entries: []*domain.CacheEntry{entry("a", "e", time.Now())}}
	require.NoError(t, persist.WritePack(path, in, reg))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Base(path), files[0].Name())
}
