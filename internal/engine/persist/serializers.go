// Package persist owns the persistent side of the cache: pack files on
// disk, flush partitioning, garbage collection, and the idle-driven
// scheduler that decides when serialization work is allowed to run.
package persist

import (
	"go.trai.ch/stash/internal/codec"
	"go.trai.ch/stash/internal/core/domain"
)

// RegisterTypes registers the cache domain types with the serialization
// registry. It must run before any pack I/O.
func RegisterTypes(reg *codec.Registry) {
	reg.MustRegister(domain.TagSnapshot, encodeSnapshot, decodeSnapshot)
	reg.MustRegister(domain.TagCacheEntry, encodeEntry, decodeEntry)
	reg.MustRegister(domain.TagDependencySet, encodeDeps, decodeDeps)
	reg.MustRegister(domain.TagResolution, encodeResolution, decodeResolution)
}

// Snapshots encode their states in sorted path order so identical
// snapshots serialize to identical bytes.
func encodeSnapshot(w *codec.Writer, v any) error {
	snap := v.(*domain.Snapshot)
	if err := w.Write(int64(snap.Mode)); err != nil {
		return err
	}
	paths := snap.Paths()
	if err := w.Write(int64(len(paths))); err != nil {
		return err
	}
	for _, path := range paths {
		state, _ := snap.Lookup(path)
		if err := w.Write(path); err != nil {
			return err
		}
		if err := w.Write(state.Missing); err != nil {
			return err
		}
		if err := w.Write(state.Dir); err != nil {
			return err
		}
		if err := w.Write(state.MTime); err != nil {
			return err
		}
		if err := w.Write(state.Digest); err != nil {
			return err
		}
		if err := w.Write(state.PackageID); err != nil {
			return err
		}
		if err := w.Write(state.CapturedAt); err != nil {
			return err
		}
	}
	return nil
}

func decodeSnapshot(r *codec.Reader) (any, error) {
	mode, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	snap := domain.NewSnapshot(domain.SnapshotMode(mode))
	for range count {
		path, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		var state domain.PathState
		if state.Missing, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if state.Dir, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if state.MTime, err = r.ReadInt64(); err != nil {
			return nil, err
		}
		if state.Digest, err = r.ReadUint64(); err != nil {
			return nil, err
		}
		if state.PackageID, err = r.ReadString(); err != nil {
			return nil, err
		}
		if state.CapturedAt, err = r.ReadInt64(); err != nil {
			return nil, err
		}
		snap.Record(path, state)
	}
	return snap, nil
}

func encodeEntry(w *codec.Writer, v any) error {
	entry := v.(*domain.CacheEntry)
	if err := w.Write(string(entry.Key)); err != nil {
		return err
	}
	if err := w.Write(entry.Etag); err != nil {
		return err
	}
	if err := w.Write(entry.LastAccessedAt); err != nil {
		return err
	}
	// Recursive write: payloads shared between entries are emitted once and
	// back-referenced afterwards.
	return w.Write(entry.Payload)
}

func decodeEntry(r *codec.Reader) (any, error) {
	key, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	etag, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	accessed, err := r.ReadTime()
	if err != nil {
		return nil, err
	}
	payload, err := r.Read()
	if err != nil {
		return nil, err
	}
	return &domain.CacheEntry{
		Key:            domain.CacheKey(key),
		Etag:           etag,
		Payload:        payload,
		LastAccessedAt: accessed,
	}, nil
}

func encodeDeps(w *codec.Writer, v any) error {
	deps := v.(*domain.DependencySet)
	if err := w.Write(deps.Files.Sorted()); err != nil {
		return err
	}
	if err := w.Write(deps.Dirs.Sorted()); err != nil {
		return err
	}
	return w.Write(deps.Missing.Sorted())
}

func decodeDeps(r *codec.Reader) (any, error) {
	files, err := r.ReadStrings()
	if err != nil {
		return nil, err
	}
	dirs, err := r.ReadStrings()
	if err != nil {
		return nil, err
	}
	missing, err := r.ReadStrings()
	if err != nil {
		return nil, err
	}
	return &domain.DependencySet{
		Files:   domain.NewPathSet(files...),
		Dirs:    domain.NewPathSet(dirs...),
		Missing: domain.NewPathSet(missing...),
	}, nil
}

func encodeResolution(w *codec.Writer, v any) error {
	res := v.(*domain.Resolution)
	if err := w.Write(res.Root); err != nil {
		return err
	}
	if err := w.Write(res.Deps); err != nil {
		return err
	}
	return w.Write(res.State)
}

func decodeResolution(r *codec.Reader) (any, error) {
	root, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	deps, err := r.Read()
	if err != nil {
		return nil, err
	}
	state, err := r.Read()
	if err != nil {
		return nil, err
	}
	res := &domain.Resolution{Root: root}
	if deps != nil {
		set, ok := deps.(*domain.DependencySet)
		if !ok {
			return nil, domain.ErrEntryCorrupt
		}
		res.Deps = set
	}
	if state != nil {
		snap, ok := state.(*domain.Snapshot)
		if !ok {
			return nil, domain.ErrEntryCorrupt
		}
		res.State = snap
	}
	return res, nil
}
