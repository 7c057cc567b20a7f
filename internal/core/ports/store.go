package ports

import (
	"context"

	"go.trai.ch/stash/internal/core/domain"
)

// EntryStore is the layered cache store the build consults per unit of work.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type EntryStore interface {
	// Get returns the entry for key iff its stored etag matches etag.
	// An etag mismatch, a missing entry, or an undecodable persisted entry
	// all present as a miss.
	Get(ctx context.Context, key domain.CacheKey, etag string) (*domain.CacheEntry, bool)

	// Put stores a freshly computed payload in the memory tier. The
	// persistent tier is only ever updated by the scheduler's flush.
	Put(ctx context.Context, key domain.CacheKey, etag string, payload any)

	// Provide returns the cached payload for key or computes it, ensuring at
	// most one in-flight computation per key; concurrent callers for the
	// same key join the same computation.
	Provide(ctx context.Context, key domain.CacheKey, etag string, compute func(context.Context) (any, error)) (any, error)
}
