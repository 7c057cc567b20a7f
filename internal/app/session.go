package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/stash/internal/codec"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/stash/internal/engine/persist"
	"go.trai.ch/stash/internal/engine/resolve"
	"go.trai.ch/stash/internal/engine/snapshot"
	"go.trai.ch/stash/internal/engine/store"
	"go.trai.ch/zerr"
)

// buildDepsSnapshotName is the pack-header name of the merged snapshot over
// every build dependency group.
const buildDepsSnapshotName = "buildDependencies"

// resolveSnapshotName returns the pack-header name of the per-group
// resolution snapshot.
func resolveSnapshotName(group string) string {
	return "resolve:" + group
}

// groupKey is the cache key for a group's resolution entry.
func groupKey(group string) domain.CacheKey {
	return domain.CacheKey("resolve:" + group)
}

// Session drives one cache session through the controller's state machine:
// startup validation, warm or cold build, activity tracking, and idle
// persistence. A Session belongs to a single process; concurrent processes
// sharing a cache namespace are unsupported.
type Session struct {
	cfg      *domain.Config
	logger   ports.Logger
	tracer   ports.Tracer
	reg      *codec.Registry
	engine   *snapshot.Engine
	resolver *resolve.Resolver
	store    *store.Layered
	packs    *persist.Packs
	sched    *persist.Scheduler
	start    time.Time

	mu    sync.RWMutex
	state State
	snaps map[string]*domain.Snapshot
}

// NewSession assembles the engines for one session from the validated
// configuration. The persistent tier is wired only when cfg enables it.
func NewSession(
	cfg *domain.Config,
	files ports.FileReader,
	packages ports.PackageReader,
	modules ports.ModuleLoader,
	logger ports.Logger,
	tracer ports.Tracer,
) *Session {
	reg := codec.NewRegistry()
	persist.RegisterTypes(reg)

	class := snapshot.NewClassifier(cfg.ManagedPaths, cfg.ImmutablePaths)

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		reg:      reg,
		engine:   snapshot.NewEngine(files, packages, class, logger),
		resolver: resolve.NewResolver(files, packages, modules, logger),
		start:    time.Now(),
		state:    StateUninitialized,
		snaps:    make(map[string]*domain.Snapshot),
	}

	if cfg.Persistent() {
		s.packs = persist.NewPacks(cfg.NamespaceDir(), reg, logger)
		s.store = store.NewLayered(s.packs, logger)
		s.sched = persist.NewScheduler(s.store, s.packs, persist.SchedulerConfig{
			Version:            cfg.Version,
			IdleTimeout:        cfg.IdleTimeout,
			InitialIdleTimeout: cfg.IdleTimeoutForInitialStore,
			MaxAge:             cfg.MaxAge,
			OnFlush:            s.onFlush,
		}, s.sessionSnapshots, logger)
	} else {
		s.store = store.NewLayered(nil, logger)
	}

	return s
}

// State returns the controller's current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Store exposes the layered store consulted per unit of work.
func (s *Session) Store() ports.EntryStore {
	return s.store
}

// Validate runs startup validation and settles the session into either
// StateWarmBuild or StateColdBuild. Validation order: pack headers present,
// version equality, build-dependency snapshot, then per-group resolution
// snapshots with targeted re-resolution of only the affected groups.
// Validation never fails the session; every invalidation degrades to a
// cold build.
func (s *Session) Validate(ctx context.Context) State {
	ctx, span := s.startSpan(ctx, "validate")
	defer span.End()

	s.setState(StateValidating)

	if !s.cfg.Persistent() {
		s.logger.Info("persistent cache disabled, starting cold")
		return s.cold(false)
	}

	headers, err := s.packs.Open()
	if err != nil {
		s.logger.Warn(zerr.Wrap(err, "cache unreadable, starting cold").Error())
		span.RecordError(err)
		return s.cold(true)
	}
	if len(headers) == 0 {
		s.logger.Info("no cache packs found, starting cold")
		return s.cold(false)
	}

	for _, h := range headers {
		if h.Version != s.cfg.Version {
			err := zerr.With(domain.ErrVersionMismatch, "expected", s.cfg.Version)
			err = zerr.With(err, "found", h.Version)
			err = zerr.With(err, "pack", h.Path)
			s.logger.Warn(err.Error())
			span.RecordError(err)
			return s.cold(true)
		}
	}

	recorded := mergeHeaderSnapshots(headers)

	if bd := recorded[buildDepsSnapshotName]; bd != nil && !s.engine.Valid(ctx, bd) {
		err := zerr.With(domain.ErrSnapshotMismatch, "scope", buildDepsSnapshotName)
		s.logger.Warn(err.Error())
		span.RecordError(err)
		return s.cold(true)
	}

	if state := s.validateGroups(ctx, recorded, span); state == StateColdBuild {
		return state
	}

	s.setState(StateWarmBuild)
	return StateWarmBuild
}

// validateGroups compares every recorded per-group resolution snapshot and
// re-resolves only the affected groups. A re-resolution that changes the
// dependency set itself escalates to a cold build.
func (s *Session) validateGroups(ctx context.Context, recorded map[string]*domain.Snapshot, span ports.Span) State {
	s.mu.Lock()
	for name, snap := range recorded {
		s.snaps[name] = snap
	}
	s.mu.Unlock()

	for _, group := range s.groupNames() {
		name := resolveSnapshotName(group)
		rec := recorded[name]
		if rec == nil {
			// Group added since the last persist; resolved on first use.
			continue
		}

		result, err := s.engine.Compare(ctx, rec)
		if err == nil && result.Unchanged() {
			continue
		}

		mismatch := zerr.With(domain.ErrSnapshotMismatch, "group", group)
		if err != nil {
			mismatch = zerr.Wrap(err, mismatch.Error())
		} else {
			mismatch = zerr.With(mismatch, "changed", len(result.Changed))
		}
		s.logger.Warn(mismatch.Error())
		span.RecordError(mismatch)

		res, err := s.resolveGroup(ctx, group)
		if err != nil {
			return s.cold(true)
		}
		if !samePaths(res.State, rec) {
			s.logger.Warn(zerr.With(domain.ErrSnapshotMismatch, "group", group).Error())
			return s.cold(true)
		}

		// Same dependency set, moved file states: refresh the recorded
		// snapshot and drop only this group's entry.
		s.mu.Lock()
		s.snaps[name] = res.State
		s.mu.Unlock()
		s.store.Drop(groupKey(group))
	}

	return StateWarmBuild
}

// cold settles into StateColdBuild. When invalidate is set the persisted
// packs are removed: the whole cache is invalid, not merely absent.
func (s *Session) cold(invalidate bool) State {
	if invalidate && s.packs != nil {
		if err := s.packs.Clear(); err != nil {
			s.logger.Warn(err.Error())
		}
	}
	s.mu.Lock()
	s.snaps = make(map[string]*domain.Snapshot)
	s.mu.Unlock()
	s.setState(StateColdBuild)
	return StateColdBuild
}

// Begin marks the build as active.
func (s *Session) Begin() {
	s.setState(StateRunning)
	if s.sched != nil {
		s.sched.Notify()
	}
}

// Refresh resolves every configured group through the store, joining
// concurrent requests per key, and recaptures the merged build-dependency
// snapshot. On a warm session this hydrates persisted resolutions; on a
// cold one it computes them.
func (s *Session) Refresh(ctx context.Context) error {
	if s.State() == StateExiting {
		return domain.ErrSessionClosed
	}
	ctx, span := s.startSpan(ctx, "resolve")
	defer span.End()

	for _, group := range s.groupNames() {
		if _, err := s.provideGroup(ctx, group); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if err := s.captureBuildDeps(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	if s.sched != nil {
		s.sched.Notify()
	}
	return nil
}

// OnEvent feeds a debounced batch of changed paths into the state machine:
// the session returns to StateRunning, groups whose dependency set covers a
// changed path are re-resolved, and the idle window restarts.
func (s *Session) OnEvent(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	s.setState(StateRunning)

	affected := s.affectedGroups(paths)
	for _, group := range affected {
		s.store.Drop(groupKey(group))
		s.mu.Lock()
		delete(s.snaps, resolveSnapshotName(group))
		s.mu.Unlock()
		if _, err := s.provideGroup(ctx, group); err != nil {
			s.logger.Warn(err.Error())
		}
	}
	if len(affected) > 0 {
		if err := s.captureBuildDeps(ctx); err != nil {
			s.logger.Warn(err.Error())
		}
	}

	if s.sched != nil {
		s.sched.Notify()
	}
}

// Flush forces a synchronous flush, bypassing the idle window.
func (s *Session) Flush() error {
	if s.State() == StateExiting {
		return domain.ErrSessionClosed
	}
	if s.sched == nil {
		return domain.ErrCacheDisabled
	}
	return s.sched.Flush()
}

// Shutdown flushes outstanding state and moves to StateExiting.
func (s *Session) Shutdown() {
	if s.sched != nil {
		if err := s.sched.Flush(); err != nil {
			s.logger.Warn(err.Error())
		}
		s.sched.Close()
	}
	s.setState(StateExiting)
}

// Clean removes the cache namespace directory.
func (s *Session) Clean() error {
	if s.packs == nil {
		return domain.ErrCacheDisabled
	}
	return s.packs.Clear()
}

// provideGroup returns the group's resolution from the store, computing it
// at most once per key across concurrent callers.
func (s *Session) provideGroup(ctx context.Context, group string) (*domain.Resolution, error) {
	payload, err := s.store.Provide(ctx, groupKey(group), s.groupEtag(group), func(ctx context.Context) (any, error) {
		return s.resolveGroup(ctx, group)
	})
	if err != nil {
		return nil, err
	}
	res, ok := payload.(*domain.Resolution)
	if !ok {
		return nil, zerr.With(domain.ErrEntryCorrupt, "key", string(groupKey(group)))
	}
	s.mu.Lock()
	s.snaps[resolveSnapshotName(group)] = res.State
	s.mu.Unlock()
	return res, nil
}

// resolveGroup expands the group's roots and captures a snapshot over the
// resulting dependency set.
func (s *Session) resolveGroup(ctx context.Context, group string) (*domain.Resolution, error) {
	roots := s.groupRoots(group)
	deps := s.resolver.Resolve(roots)
	snap, err := s.engine.Capture(ctx, deps, s.cfg.Modes.ResolveBuildDependencies)
	if err != nil {
		return nil, err
	}
	return &domain.Resolution{Root: group, Deps: deps, State: snap}, nil
}

// captureBuildDeps recaptures the merged snapshot over every group's
// dependency set, recorded in every pack header at flush time.
func (s *Session) captureBuildDeps(ctx context.Context) error {
	merged := domain.NewDependencySet()
	for _, group := range s.groupNames() {
		res, err := s.provideGroup(ctx, group)
		if err != nil {
			return err
		}
		merged.Merge(res.Deps)
	}
	snap, err := s.engine.Capture(ctx, merged, s.cfg.Modes.BuildDependencies)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snaps[buildDepsSnapshotName] = snap
	s.mu.Unlock()
	return nil
}

// affectedGroups returns the groups whose recorded snapshot covers any of
// the changed paths, or whose directory roots enclose one.
func (s *Session) affectedGroups(paths []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, group := range s.groupNames() {
		snap := s.snaps[resolveSnapshotName(group)]
		if s.groupTouches(group, snap, paths) {
			out = append(out, group)
		}
	}
	return out
}

func (s *Session) groupTouches(group string, snap *domain.Snapshot, paths []string) bool {
	for _, p := range paths {
		if snap != nil {
			if _, ok := snap.Lookup(p); ok {
				return true
			}
		}
		for _, root := range s.groupRoots(group) {
			dir := strings.TrimRight(root.Root, `/\`)
			if p == dir || strings.HasPrefix(p, dir+"/") {
				return true
			}
		}
	}
	return false
}

// GC hydrates every persisted entry, drops those outside the retention
// window, and rewrites the packs.
func (s *Session) GC(ctx context.Context) error {
	if s.packs == nil {
		return domain.ErrCacheDisabled
	}
	_, span := s.startSpan(ctx, "gc")
	defer span.End()

	headers, err := s.packs.Open()
	if err != nil {
		span.RecordError(err)
		return err
	}

	var all []*domain.CacheEntry
	seen := make(map[domain.CacheKey]struct{})
	for _, h := range headers {
		if len(h.Keys) == 0 {
			continue
		}
		entries, err := s.packs.Hydrate(domain.CacheKey(h.Keys[0]))
		if err != nil {
			s.logger.Warn(err.Error())
			span.RecordError(err)
			continue
		}
		for _, entry := range entries {
			if _, dup := seen[entry.Key]; dup {
				continue
			}
			seen[entry.Key] = struct{}{}
			all = append(all, entry)
		}
	}

	cutoff := time.Now().Add(-s.cfg.MaxAge)
	var keep []*domain.CacheEntry
	for _, entry := range all {
		if entry.LastAccessedAt.Before(cutoff) {
			s.logger.Warn(zerr.With(zerr.New("cache entry expired"), "key", string(entry.Key)).Error())
			continue
		}
		keep = append(keep, entry)
	}

	batches, err := persist.Partition(keep, s.start, persist.PartitionOptions{}, s.reg)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := s.packs.Write(s.cfg.Version, mergeHeaderSnapshots(headers), batches); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info(fmt.Sprintf("gc kept %d of %d entries", len(keep), len(all)))
	return nil
}

// Status reports the persisted and in-memory condition of the cache
// without mutating anything on disk.
func (s *Session) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		State:         s.State(),
		CacheDir:      s.cfg.NamespaceDir(),
		Name:          s.cfg.Name,
		Persistent:    s.cfg.Persistent(),
		MemoryEntries: s.store.Len(),
	}
	if s.packs == nil {
		return st, nil
	}

	headers, err := s.packs.Open()
	if err != nil {
		return nil, err
	}
	for _, h := range headers {
		valid := h.Version == s.cfg.Version
		if valid {
			for _, snap := range h.Snapshots {
				if !s.engine.Valid(ctx, snap) {
					valid = false
					break
				}
			}
		}
		st.Packs = append(st.Packs, PackStatus{
			Path:      h.Path,
			Version:   h.Version,
			CreatedAt: h.CreatedAt,
			Entries:   len(h.Keys),
			Valid:     valid,
		})
	}
	return st, nil
}

// Status is the session's cache report.
type Status struct {
	State         State        `json:"state"`
	Name          string       `json:"name"`
	CacheDir      string       `json:"cacheDir"`
	Persistent    bool         `json:"persistent"`
	MemoryEntries int          `json:"memoryEntries"`
	Packs         []PackStatus `json:"packs"`
}

// PackStatus describes one persisted pack file.
type PackStatus struct {
	Path      string    `json:"path"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Entries   int       `json:"entries"`
	Valid     bool      `json:"valid"`
}

// onFlush tracks the idle-then-persist transition driven by the
// scheduler's timer.
func (s *Session) onFlush() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateIdle
	}
	if s.state == StateIdle {
		s.state = StatePersisting
	}
	s.mu.Unlock()
}

// sessionSnapshots supplies the snapshots recorded in pack headers.
func (s *Session) sessionSnapshots() map[string]*domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.Snapshot, len(s.snaps))
	for name, snap := range s.snaps {
		out[name] = snap
	}
	return out
}

// groupEtag digests everything that determines a group's resolution beyond
// its tracked files: cache version, group name, and snapshot mode.
func (s *Session) groupEtag(group string) string {
	h := xxhash.New()
	_, _ = h.WriteString(s.cfg.Version)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(group)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(s.cfg.Modes.ResolveBuildDependencies.String())
	return fmt.Sprintf("%016x", h.Sum64())
}

func (s *Session) groupNames() []string {
	names := make([]string, 0, len(s.cfg.BuildDependencies))
	for name := range s.cfg.BuildDependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) groupRoots(group string) []domain.BuildDependency {
	roots := make([]domain.BuildDependency, 0, len(s.cfg.BuildDependencies[group]))
	for _, root := range s.cfg.BuildDependencies[group] {
		roots = append(roots, domain.BuildDependency{Name: group, Root: root})
	}
	return roots
}

func (s *Session) startSpan(ctx context.Context, name string) (context.Context, ports.Span) {
	if s.tracer == nil {
		return ctx, noSpan{}
	}
	return s.tracer.Start(ctx, name)
}

// mergeHeaderSnapshots unions the recorded snapshots across pack headers by
// name. Headers are read in sorted path order, so later packs win ties.
func mergeHeaderSnapshots(headers []*persist.Header) map[string]*domain.Snapshot {
	out := make(map[string]*domain.Snapshot)
	for _, h := range headers {
		for name, snap := range h.Snapshots {
			if existing := out[name]; existing != nil {
				existing.Merge(snap)
				continue
			}
			out[name] = snap
		}
	}
	return out
}

// samePaths reports whether two snapshots track the same path set.
func samePaths(a, b *domain.Snapshot) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, p := range a.Paths() {
		if _, ok := b.Lookup(p); !ok {
			return false
		}
	}
	return true
}

type noSpan struct{}

func (noSpan) End()                     {}
func (noSpan) RecordError(error)        {}
func (noSpan) SetAttribute(string, any) {}
