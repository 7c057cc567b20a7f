package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.trai.ch/stash/internal/codec"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
)

// Packs manages one cache namespace directory. It serves hydration lookups
// for the layered store and receives the scheduler's flush output. A pack
// that cannot be read is skipped with a warning, never fatal: the cache
// degrades to recomputation.
type Packs struct {
	dir    string
	reg    *codec.Registry
	logger ports.Logger

	mu sync.Mutex
	// index maps each persisted key to the pack file holding it.
	index map[domain.CacheKey]string
}

// NewPacks creates a pack manager over the given namespace directory.
func NewPacks(dir string, reg *codec.Registry, logger ports.Logger) *Packs {
	return &Packs{
		dir:    dir,
		reg:    reg,
		logger: logger,
		index:  make(map[domain.CacheKey]string),
	}
}

// Dir returns the namespace directory.
func (p *Packs) Dir() string {
	return p.dir
}

// Open scans the namespace directory and returns the readable pack
// headers, building the key index for hydration. A missing directory is an
// empty cache.
func (p *Packs) Open() ([]*Header, error) {
	paths, err := p.packFiles()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = make(map[domain.CacheKey]string)

	headers := make([]*Header, 0, len(paths))
	for _, path := range paths {
		head, err := ReadHeader(path, p.reg)
		if err != nil {
			p.warn(err)
			continue
		}
		for _, key := range head.Keys {
			p.index[domain.CacheKey(key)] = path
		}
		headers = append(headers, head)
	}
	return headers, nil
}

// Hydrate returns the entries of the pack holding key, or nil when no pack
// covers it. Implements the store's hydrator contract: a pack decode
// failure drops the whole pack from the index so it is not retried per
// key.
func (p *Packs) Hydrate(key domain.CacheKey) ([]*domain.CacheEntry, error) {
	p.mu.Lock()
	path, ok := p.index[key]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}

	pack, err := ReadPack(path, p.reg)
	if err != nil {
		p.mu.Lock()
		for k, held := range p.index {
			if held == path {
				delete(p.index, k)
			}
		}
		p.mu.Unlock()
		return nil, err
	}
	return pack.Entries, nil
}

// Write persists the partitioned batches as the namespace's new pack set.
// Batch files never reuse the name of a live pack, so a write cannot
// clobber the data it is meant to replace. Each batch is written
// independently: a failed batch is reported through the returned keys
// (which must stay dirty) without aborting the rest, and the pack
// previously covering those keys survives the stale sweep.
func (p *Packs) Write(version string, snapshots map[string]*domain.Snapshot, batches [][]*domain.CacheEntry) (failed []domain.CacheKey, err error) {
	if err := os.MkdirAll(p.dir, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	next, err := p.nextPackIndex()
	if err != nil {
		return nil, err
	}

	retained := make(map[string]struct{}, len(batches))
	index := make(map[domain.CacheKey]string)
	for i, batch := range batches {
		path := filepath.Join(p.dir, fmt.Sprintf("%04d%s", next+i, domain.PackFileExt))
		pack := &Pack{Version: version, Snapshots: snapshots, Entries: batch}
		if err := WritePack(path, pack, p.reg); err != nil {
			p.warn(zerr.With(err, "path", path))
			for _, entry := range batch {
				failed = append(failed, entry.Key)
			}
			continue
		}
		retained[filepath.Base(path)] = struct{}{}
		for _, entry := range batch {
			index[entry.Key] = path
		}
	}

	p.mu.Lock()
	// Keys whose batch failed keep hydrating from their previous pack.
	for _, key := range failed {
		if prev, ok := p.index[key]; ok {
			index[key] = prev
			retained[filepath.Base(prev)] = struct{}{}
		}
	}
	p.index = index
	p.mu.Unlock()

	p.removeStale(retained)
	return failed, nil
}

// Residual returns the persisted entries whose keys are not in have. The
// flush folds them into its output, so entries written by earlier sessions
// survive the pack set rewrite even when nothing hydrated them.
func (p *Packs) Residual(have map[domain.CacheKey]struct{}) []*domain.CacheEntry {
	p.mu.Lock()
	covering := make(map[string]struct{})
	for key, path := range p.index {
		if _, ok := have[key]; ok {
			continue
		}
		covering[path] = struct{}{}
	}
	p.mu.Unlock()

	paths := make([]string, 0, len(covering))
	for path := range covering {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var out []*domain.CacheEntry
	for _, path := range paths {
		pack, err := ReadPack(path, p.reg)
		if err != nil {
			p.warn(err)
			continue
		}
		for _, entry := range pack.Entries {
			if _, ok := have[entry.Key]; ok {
				continue
			}
			out = append(out, entry)
		}
	}
	return out
}

// nextPackIndex returns the first numbering slot past every pack file
// currently on disk.
func (p *Packs) nextPackIndex() (int, error) {
	paths, err := p.packFiles()
	if err != nil {
		return 0, err
	}
	next := 0
	for _, path := range paths {
		n, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(path), domain.PackFileExt))
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// Clear removes the namespace directory entirely.
func (p *Packs) Clear() error {
	p.mu.Lock()
	p.index = make(map[domain.CacheKey]string)
	p.mu.Unlock()
	return os.RemoveAll(p.dir)
}

// removeStale deletes pack files whose content the latest write replaced.
// Retained names cover both the freshly written packs and any previous
// pack still serving keys a batch failed to rewrite.
func (p *Packs) removeStale(retained map[string]struct{}) {
	paths, err := p.packFiles()
	if err != nil {
		p.warn(err)
		return
	}
	for _, path := range paths {
		if _, ok := retained[filepath.Base(path)]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			p.warn(zerr.Wrap(err, "failed to remove stale pack"))
		}
	}
}

func (p *Packs) packFiles() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrPackCorrupt.Error())
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), domain.PackFileExt) {
			continue
		}
		paths = append(paths, filepath.Join(p.dir, entry.Name()))
	}
	return paths, nil
}

func (p *Packs) warn(err error) {
	if p.logger != nil {
		p.logger.Warn(err.Error())
	}
}
