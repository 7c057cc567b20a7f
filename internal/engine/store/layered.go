// Package store implements the two-tier cache store: an in-memory tier for
// the current process and a lazily hydrated persistent tier behind it.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// Hydrator loads persisted entries on a memory-tier miss. Hydrating the
// pack that holds one key surfaces all of that pack's entries at once, so
// the store populates its memory tier with everything returned.
type Hydrator interface {
	// Hydrate returns the persisted entries co-located with key, or nil
	// when no persisted pack covers it. A decode failure for the pack is
	// returned as an error and treated as a miss by the caller.
	Hydrate(key domain.CacheKey) ([]*domain.CacheEntry, error)
}

// Layered is the two-tier store. Reads check memory first and fall back to
// the persistent tier; writes land in memory synchronously and reach disk
// only through the scheduler's asynchronous flush. The memory tier is
// therefore always at least as fresh as the persistent tier for any key
// written this session.
type Layered struct {
	mu      sync.Mutex
	entries map[domain.CacheKey]*domain.CacheEntry
	// dirty tracks keys whose entry changed since the last flush: fresh
	// writes and access-time bumps alike.
	dirty map[domain.CacheKey]struct{}
	// hydrated tracks keys already probed against the persistent tier so a
	// confirmed miss is not re-read from disk on every lookup.
	hydrated map[domain.CacheKey]struct{}

	flight   singleflight.Group
	hydrator Hydrator
	logger   ports.Logger
	now      func() time.Time
}

var _ ports.EntryStore = (*Layered)(nil)

// NewLayered creates a store backed by the given hydrator. A nil hydrator
// yields a memory-only store.
func NewLayered(hydrator Hydrator, logger ports.Logger) *Layered {
	return &Layered{
		entries:  make(map[domain.CacheKey]*domain.CacheEntry),
		dirty:    make(map[domain.CacheKey]struct{}),
		hydrated: make(map[domain.CacheKey]struct{}),
		hydrator: hydrator,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the access-time source, for tests.
func (s *Layered) WithClock(now func() time.Time) *Layered {
	s.now = now
	return s
}

// Get returns the entry for key iff its stored etag matches. A mismatch, a
// missing entry, or an undecodable persisted entry all present as a miss;
// a matched read bumps the entry's access time.
func (s *Layered) Get(_ context.Context, key domain.CacheKey, etag string) (*domain.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key, etag)
}

// lookup is Get without locking; the caller holds s.mu.
func (s *Layered) lookup(key domain.CacheKey, etag string) (*domain.CacheEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		entry, ok = s.hydrate(key)
	}
	if !ok {
		return nil, false
	}
	if entry.Etag != etag {
		// Stale payload. Keeping it would only delay garbage collection;
		// the slot is overwritten by the recomputation anyway.
		s.warn(zerr.With(domain.ErrEtagMismatch, "key", string(key)))
		delete(s.entries, key)
		s.dirty[key] = struct{}{}
		return nil, false
	}
	entry.Touch(s.now())
	s.dirty[key] = struct{}{}
	return entry, true
}

// hydrate pulls the persisted pack covering key into the memory tier.
// Entries already present in memory win over their persisted versions.
func (s *Layered) hydrate(key domain.CacheKey) (*domain.CacheEntry, bool) {
	if s.hydrator == nil {
		return nil, false
	}
	if _, probed := s.hydrated[key]; probed {
		return nil, false
	}
	s.hydrated[key] = struct{}{}

	loaded, err := s.hydrator.Hydrate(key)
	if err != nil {
		s.warn(zerr.Wrap(err, domain.ErrEntryCorrupt.Error()))
		return nil, false
	}
	for _, entry := range loaded {
		s.hydrated[entry.Key] = struct{}{}
		if _, exists := s.entries[entry.Key]; !exists {
			s.entries[entry.Key] = entry
		}
	}
	entry, ok := s.entries[key]
	return entry, ok
}

// Put stores a freshly computed payload in the memory tier.
func (s *Layered) Put(_ context.Context, key domain.CacheKey, etag string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &domain.CacheEntry{
		Key:            key,
		Etag:           etag,
		Payload:        payload,
		LastAccessedAt: s.now(),
	}
	s.dirty[key] = struct{}{}
}

// Provide returns the cached payload for key or runs compute to produce
// it. At most one computation per key is in flight; concurrent callers for
// the same key join it instead of duplicating work.
func (s *Layered) Provide(ctx context.Context, key domain.CacheKey, etag string, compute func(context.Context) (any, error)) (any, error) {
	if entry, ok := s.Get(ctx, key, etag); ok {
		return entry.Payload, nil
	}
	payload, err, _ := s.flight.Do(string(key), func() (any, error) {
		// Recheck under the flight: a joined caller may arrive after the
		// winner already stored the result.
		if entry, ok := s.Get(ctx, key, etag); ok {
			return entry.Payload, nil
		}
		payload, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		s.Put(ctx, key, etag, payload)
		return payload, nil
	})
	return payload, err
}

// Dirty reports whether anything changed since the last completed flush.
func (s *Layered) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// Snapshot returns every entry currently in the memory tier, sorted by key
// so flush output is deterministic, and clears dirty tracking. The caller
// owns persisting what it received; entries written after Snapshot returns
// mark the store dirty again.
func (s *Layered) Snapshot() []*domain.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CacheEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	s.dirty = make(map[domain.CacheKey]struct{})
	return out
}

// MarkDirty re-flags keys for the next flush. The scheduler uses it when a
// pack write fails, so the affected entries are retried instead of lost.
func (s *Layered) MarkDirty(keys ...domain.CacheKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.dirty[key] = struct{}{}
	}
}

// Drop removes an entry, for invalidation and garbage collection. The key
// is marked as probed so a persisted copy cannot resurface through
// hydration within this session.
func (s *Layered) Drop(key domain.CacheKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.hydrated[key] = struct{}{}
}

// Len returns the number of entries in the memory tier.
func (s *Layered) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Layered) warn(err error) {
	if s.logger != nil {
		s.logger.Warn(err.Error())
	}
}
