package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/engine/store"
	"go.trai.ch/zerr"
)

type fakeHydrator struct {
	mu    sync.Mutex
	packs map[domain.CacheKey][]*domain.CacheEntry
	err   error
	calls int
}

func (f *fakeHydrator) Hydrate(key domain.CacheKey) ([]*domain.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.packs[key], nil
}

func entry(key, etag string) *domain.CacheEntry {
	return &domain.CacheEntry{Key: domain.CacheKey(key), Etag: etag, Payload: "payload-" + key}
}

func TestGet_MemoryTier(t *testing.T) {
	s := store.NewLayered(nil, nil)
	s.Put(t.Context(), "k1", "e1", "v1")

	got, ok := s.Get(t.Context(), "k1", "e1")
	require.True(t, ok)
	assert.Equal(t, "v1", got.Payload)

	_, ok = s.Get(t.Context(), "absent", "e1")
	assert.False(t, ok)
}

func TestGet_EtagMismatchIsMiss(t *testing.T) {
	s := store.NewLayered(nil, nil)
	s.Put(t.Context(), "k1", "e1", "v1")

	_, ok := s.Get(t.Context(), "k1", "different")
	assert.False(t, ok)

	// The stale entry is gone, not returned under its old etag either.
	_, ok = s.Get(t.Context(), "k1", "e1")
	assert.False(t, ok)
}

func TestGet_HydratesWholePack(t *testing.T) {
	h := &fakeHydrator{packs: map[domain.CacheKey][]*domain.CacheEntry{
		"k1": {entry("k1", "e1"), entry("k2", "e2")},
	}}
	s := store.NewLayered(h, nil)

	got, ok := s.Get(t.Context(), "k1", "e1")
	require.True(t, ok)
	assert.Equal(t, "payload-k1", got.Payload)

	// k2 arrived with k1's pack; no second disk read.
	got, ok = s.Get(t.Context(), "k2", "e2")
	require.True(t, ok)
	assert.Equal(t, "payload-k2", got.Payload)
	assert.Equal(t, 1, h.calls)
}

func TestGet_MissProbedOnce(t *testing.T) {
	h := &fakeHydrator{}
	s := store.NewLayered(h, nil)

	_, ok := s.Get(t.Context(), "k1", "e1")
	assert.False(t, ok)
	_, ok = s.Get(t.Context(), "k1", "e1")
	assert.False(t, ok)
	assert.Equal(t, 1, h.calls)
}

func TestDrop_BlocksHydration(t *testing.T) {
	h := &fakeHydrator{packs: map[domain.CacheKey][]*domain.CacheEntry{
		"k1": {entry("k1", "e1")},
	}}
	s := store.NewLayered(h, nil)

	// Dropped before any lookup: the persisted copy must not resurface.
	s.Drop("k1")

	_, ok := s.Get(t.Context(), "k1", "e1")
	assert.False(t, ok)
	assert.Equal(t, 0, h.calls)
}

func TestGet_MemoryWinsOverPersisted(t *testing.T) {
	h := &fakeHydrator{packs: map[domain.CacheKey][]*domain.CacheEntry{
		"k1": {entry("k1", "old"), entry("k2", "e2")},
	}}
	s := store.NewLayered(h, nil)
	s.Put(t.Context(), "k2", "fresh", "new-v2")

	// Hydration of k1's pack must not clobber the session's k2 write.
	_, ok := s.Get(t.Context(), "k1", "old")
	require.True(t, ok)
	got, ok := s.Get(t.Context(), "k2", "fresh")
	require.True(t, ok)
	assert.Equal(t, "new-v2", got.Payload)
}

func TestGet_CorruptPackIsMiss(t *testing.T) {
	h := &fakeHydrator{err: zerr.New("truncated pack")}
	s := store.NewLayered(h, nil)

	_, ok := s.Get(t.Context(), "k1", "e1")
	assert.False(t, ok)
}

func TestGet_TouchMarksDirty(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	s := store.NewLayered(nil, nil).WithClock(func() time.Time { return clock })

	s.Put(t.Context(), "k1", "e1", "v1")
	s.Snapshot()
	require.False(t, s.Dirty())

	clock = base.Add(time.Hour)
	got, ok := s.Get(t.Context(), "k1", "e1")
	require.True(t, ok)
	assert.Equal(t, clock, got.LastAccessedAt)
	assert.True(t, s.Dirty())
}

func TestProvide_SingleFlight(t *testing.T) {
	s := store.NewLayered(nil, nil)

	var computations atomic.Int32
	release := make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Provide(context.Background(), "k1", "e1", func(context.Context) (any, error) {
				computations.Add(1)
				<-release
				return "computed", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	// Let every caller reach the store before releasing the computation.
	assert.Eventually(t, func() bool { return computations.Load() >= 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computations.Load())
	for _, v := range results {
		assert.Equal(t, "computed", v)
	}
}

func TestProvide_ComputeErrorNotCached(t *testing.T) {
	s := store.NewLayered(nil, nil)
	boom := zerr.New("compute failed")

	_, err := s.Provide(t.Context(), "k1", "e1", func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// The failure left nothing behind; the next call recomputes.
	v, err := s.Provide(t.Context(), "k1", "e1", func(context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSnapshot_DeterministicAndClearsDirty(t *testing.T) {
	s := store.NewLayered(nil, nil)
	s.Put(t.Context(), "b", "e", 2)
	s.Put(t.Context(), "a", "e", 1)
	s.Put(t.Context(), "c", "e", 3)

	require.True(t, s.Dirty())
	entries := s.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, domain.CacheKey("a"), entries[0].Key)
	assert.Equal(t, domain.CacheKey("b"), entries[1].Key)
	assert.Equal(t, domain.CacheKey("c"), entries[2].Key)
	assert.False(t, s.Dirty())
}

func TestMarkDirty_RearmsFlush(t *testing.T) {
	s := store.NewLayered(nil, nil)
	s.Put(t.Context(), "k1", "e1", "v1")
	s.Snapshot()
	require.False(t, s.Dirty())

	s.MarkDirty("k1")
	assert.True(t, s.Dirty())
}
