package persist

import (
	"sync"
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/stash/internal/engine/store"
	"go.trai.ch/zerr"
)

const (
	// DefaultIdleTimeout is the idle window before a flush fires.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultInitialIdleTimeout applies before the first flush of a
	// session, so a cold cache reaches disk as soon as the build quiets.
	DefaultInitialIdleTimeout = 0
)

// SchedulerConfig carries the timing and partitioning knobs.
type SchedulerConfig struct {
	Version            string
	IdleTimeout        time.Duration
	InitialIdleTimeout time.Duration
	MaxAge             time.Duration
	Partition          PartitionOptions

	// OnFlush, when set, is invoked at the start of every non-skipped
	// flush. The session controller uses it to track its persisting state.
	OnFlush func()
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.InitialIdleTimeout < 0 {
		c.InitialIdleTimeout = DefaultInitialIdleTimeout
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	return c
}

// Scheduler defers serialization and disk I/O out of the build's critical
// path: a flush runs only after the session has been idle for the
// configured window. Every qualifying event resets the timer. Shutdown
// calls Flush for a synchronous final write.
type Scheduler struct {
	entries   *store.Layered
	packs     *Packs
	cfg       SchedulerConfig
	logger    ports.Logger
	snapshots func() map[string]*domain.Snapshot

	mu           sync.Mutex
	timer        *time.Timer
	flushedOnce  bool
	closed       bool
	sessionStart time.Time
	now          func() time.Time
	flushMu      sync.Mutex
}

// NewScheduler creates a scheduler flushing entries into packs. The
// snapshots callback supplies the session snapshots recorded in every pack
// header at flush time.
func NewScheduler(entries *store.Layered, packs *Packs, cfg SchedulerConfig, snapshots func() map[string]*domain.Snapshot, logger ports.Logger) *Scheduler {
	now := time.Now
	return &Scheduler{
		entries:      entries,
		packs:        packs,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		snapshots:    snapshots,
		sessionStart: now(),
		now:          now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	s.sessionStart = now()
	return s
}

// Notify records build or filesystem activity: the pending flush, if any,
// is pushed back by a full idle window.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	window := s.cfg.IdleTimeout
	if !s.flushedOnce {
		window = s.cfg.InitialIdleTimeout
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(window, func() {
		if err := s.flush(); err != nil {
			s.warn(err)
		}
	})
}

// Flush cancels any pending timer and flushes synchronously. Used for
// shutdown and for explicit gc runs.
func (s *Scheduler) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.flush()
}

// Close stops the scheduler without flushing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// flush serializes the store's entries, merged with the still-persisted
// entries no lookup hydrated this session, into pack files. Skipped
// entirely when nothing changed since the last flush. Entries outside the
// retention window are dropped here; GC is evaluated only at flush time.
func (s *Scheduler) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if !s.entries.Dirty() {
		return nil
	}

	s.mu.Lock()
	s.flushedOnce = true
	s.mu.Unlock()

	if s.cfg.OnFlush != nil {
		s.cfg.OnFlush()
	}

	all := s.entries.Snapshot()
	have := make(map[domain.CacheKey]struct{}, len(all))
	for _, entry := range all {
		have[entry.Key] = struct{}{}
	}
	// Packs from earlier flushes may hold entries this session never
	// hydrated; fold them in so rewriting the pack set cannot lose them.
	all = append(all, s.packs.Residual(have)...)

	keep, expired := s.collect(all)
	for _, entry := range expired {
		s.entries.Drop(entry.Key)
		s.warn(zerr.With(zerr.New("cache entry expired"), "key", string(entry.Key)))
	}

	batches, err := Partition(keep, s.sessionStart, s.cfg.Partition, s.packs.reg)
	if err != nil {
		s.entries.MarkDirty(keysOf(keep)...)
		return zerr.Wrap(err, domain.ErrFlushFailed.Error())
	}

	failed, err := s.packs.Write(s.cfg.Version, s.sessionSnapshots(), batches)
	if err != nil {
		s.entries.MarkDirty(keysOf(keep)...)
		return err
	}
	if len(failed) > 0 {
		// Only the affected packs retry next flush; the rest is on disk.
		s.entries.MarkDirty(failed...)
	}
	return nil
}

// collect splits entries into retained and expired by the retention
// window.
func (s *Scheduler) collect(entries []*domain.CacheEntry) (keep, expired []*domain.CacheEntry) {
	cutoff := s.now().Add(-s.cfg.MaxAge)
	for _, entry := range entries {
		if entry.LastAccessedAt.Before(cutoff) {
			expired = append(expired, entry)
			continue
		}
		keep = append(keep, entry)
	}
	return keep, expired
}

func (s *Scheduler) sessionSnapshots() map[string]*domain.Snapshot {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots()
}

func keysOf(entries []*domain.CacheEntry) []domain.CacheKey {
	keys := make([]domain.CacheKey, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return keys
}

func (s *Scheduler) warn(err error) {
	if s.logger != nil {
		s.logger.Warn(err.Error())
	}
}
