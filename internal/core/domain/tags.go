package domain

// Stable serialization tags. The persistence layer registers the matching
// encode/decode pairs; the tags themselves live here so they change only
// when the types do.
const (
	TagSnapshot      = "stash.snapshot"
	TagCacheEntry    = "stash.entry"
	TagDependencySet = "stash.deps"
	TagResolution    = "stash.resolution"
)

// TypeTag identifies Snapshot in serialized streams.
func (s *Snapshot) TypeTag() string { return TagSnapshot }

// TypeTag identifies CacheEntry in serialized streams.
func (e *CacheEntry) TypeTag() string { return TagCacheEntry }

// TypeTag identifies DependencySet in serialized streams.
func (d *DependencySet) TypeTag() string { return TagDependencySet }

// TypeTag identifies Resolution in serialized streams.
func (r *Resolution) TypeTag() string { return TagResolution }
