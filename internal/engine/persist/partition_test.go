package persist_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/engine/persist"
)

func sizedEntry(key string, payloadSize int, accessed time.Time) *domain.CacheEntry {
	return &domain.CacheEntry{
		Key:            domain.CacheKey(key),
		Etag:           "e",
		Payload:        strings.Repeat("x", payloadSize),
		LastAccessedAt: accessed,
	}
}

func TestPartition_UsedAndUnusedNeverMix(t *testing.T) {
	reg := newRegistry(t)
	sessionStart := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	var entries []*domain.CacheEntry
	used := make(map[domain.CacheKey]bool)
	for i := range 20 {
		key := fmt.Sprintf("k%02d", i)
		accessed := sessionStart.Add(-time.Hour)
		if i%3 == 0 {
			accessed = sessionStart.Add(time.Minute)
			used[domain.CacheKey(key)] = true
		}
		entries = append(entries, sizedEntry(key, 10, accessed))
	}

	batches, err := persist.Partition(entries, sessionStart, persist.PartitionOptions{}, reg)
	require.NoError(t, err)

	for _, batch := range batches {
		require.NotEmpty(t, batch)
		want := used[batch[0].Key]
		for _, e := range batch {
			assert.Equal(t, want, used[e.Key], "pack mixes used and unused entries")
		}
	}
}

func TestPartition_EntryCap(t *testing.T) {
	reg := newRegistry(t)
	now := time.Now()

	var entries []*domain.CacheEntry
	for i := range 25 {
		entries = append(entries, sizedEntry(fmt.Sprintf("k%02d", i), 10, now))
	}

	batches, err := persist.Partition(entries, now.Add(-time.Hour), persist.PartitionOptions{
		MinPackSize:    1, // size never blocks a split
		MaxPackEntries: 10,
	}, reg)
	require.NoError(t, err)

	total := 0
	for _, batch := range batches {
		assert.LessOrEqual(t, len(batch), 10)
		total += len(batch)
	}
	assert.Equal(t, 25, total)
}

func TestPartition_MinSizeKeepsSmallCacheWhole(t *testing.T) {
	reg := newRegistry(t)
	now := time.Now()

	entries := []*domain.CacheEntry{
		sizedEntry("a", 100, now),
		sizedEntry("b", 100, now),
		sizedEntry("c", 100, now),
	}

	// Total size is far below the minimum: one pack, no subdivision.
	batches, err := persist.Partition(entries, now.Add(-time.Hour), persist.PartitionOptions{}, reg)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestPartition_SplitsLargeGroupAtMinSize(t *testing.T) {
	reg := newRegistry(t)
	now := time.Now()

	var entries []*domain.CacheEntry
	for i := range 10 {
		entries = append(entries, sizedEntry(fmt.Sprintf("k%d", i), 600, now))
	}

	// ~6 KB of entries against a 2 KB minimum: multiple packs, each at or
	// above the minimum except possibly a folded remainder.
	batches, err := persist.Partition(entries, now.Add(-time.Hour), persist.PartitionOptions{
		MinPackSize:    2048,
		MaxPackEntries: 100,
	}, reg)
	require.NoError(t, err)
	assert.Greater(t, len(batches), 1)

	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	assert.Equal(t, 10, total)
}

func TestPartition_Empty(t *testing.T) {
	reg := newRegistry(t)
	batches, err := persist.Partition(nil, time.Now(), persist.PartitionOptions{}, reg)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
