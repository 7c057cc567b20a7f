package persist

import (
	"time"

	"go.trai.ch/stash/internal/codec"
	"go.trai.ch/stash/internal/core/domain"
)

const (
	// DefaultMinPackSize is the size below which pack files are not
	// subdivided, to avoid excessive small-file overhead.
	DefaultMinPackSize = int64(1 << 20)
	// DefaultMaxPackEntries caps entries per pack file to bound the cost of
	// rewriting any single file.
	DefaultMaxPackEntries = 50_000
	// DefaultMaxAge is the garbage collection retention window.
	DefaultMaxAge = 30 * 24 * time.Hour
)

// PartitionOptions tunes how flushed entries are spread across pack files.
type PartitionOptions struct {
	MinPackSize    int64
	MaxPackEntries int
}

func (o PartitionOptions) withDefaults() PartitionOptions {
	if o.MinPackSize <= 0 {
		o.MinPackSize = DefaultMinPackSize
	}
	if o.MaxPackEntries <= 0 {
		o.MaxPackEntries = DefaultMaxPackEntries
	}
	return o
}

// Partition groups entries into pack-sized batches. Used entries (accessed
// at or after usedSince) never share a pack with unused ones, so rewriting
// hot packs does not churn cold data. Within each group, packs are split
// at MaxPackEntries; a trailing pack smaller than MinPackSize is folded
// into its neighbor when the entry cap allows.
func Partition(entries []*domain.CacheEntry, usedSince time.Time, opts PartitionOptions, reg *codec.Registry) ([][]*domain.CacheEntry, error) {
	opts = opts.withDefaults()

	var used, unused []*domain.CacheEntry
	for _, entry := range entries {
		if entry.LastAccessedAt.Before(usedSince) {
			unused = append(unused, entry)
		} else {
			used = append(used, entry)
		}
	}

	var out [][]*domain.CacheEntry
	for _, group := range [][]*domain.CacheEntry{used, unused} {
		chunks, err := chunkGroup(group, opts, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// chunkGroup splits one usage class into packs. A pack closes once it
// holds MinPackSize worth of serialized entries or hits MaxPackEntries,
// whichever comes first; a trailing pack below MinPackSize is folded into
// its neighbor when the entry cap allows, so splitting never produces an
// undersized file unless the whole group is undersized.
func chunkGroup(group []*domain.CacheEntry, opts PartitionOptions, reg *codec.Registry) ([][]*domain.CacheEntry, error) {
	if len(group) == 0 {
		return nil, nil
	}

	var (
		chunks  [][]*domain.CacheEntry
		sizes   []int64
		current []*domain.CacheEntry
		size    int64
	)
	seal := func() {
		chunks = append(chunks, current)
		sizes = append(sizes, size)
		current, size = nil, 0
	}
	for _, entry := range group {
		n, err := entrySize(entry, reg)
		if err != nil {
			return nil, err
		}
		current = append(current, entry)
		size += n
		if size >= opts.MinPackSize || len(current) >= opts.MaxPackEntries {
			seal()
		}
	}
	if len(current) > 0 {
		seal()
	}
	if len(chunks) < 2 {
		return chunks, nil
	}

	last := chunks[len(chunks)-1]
	prev := chunks[len(chunks)-2]
	if sizes[len(sizes)-1] < opts.MinPackSize && len(prev)+len(last) <= opts.MaxPackEntries {
		chunks[len(chunks)-2] = append(append([]*domain.CacheEntry{}, prev...), last...)
		chunks = chunks[:len(chunks)-1]
	}
	return chunks, nil
}

// entrySize measures one entry's uncompressed serialized size. Compression
// makes per-pack sizes smaller than the sum, so packs err on the large
// side of the minimum, which is the safe direction.
func entrySize(entry *domain.CacheEntry, reg *codec.Registry) (int64, error) {
	var c countingWriter
	if err := codec.NewWriter(&c, reg).Write(entry); err != nil {
		return 0, err
	}
	return c.n, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
