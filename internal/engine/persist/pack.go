package persist

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.trai.ch/stash/internal/codec"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/zerr"
)

// Pack file layout: the magic bytes, then an uncompressed codec stream for
// the header (format version, cache version, creation time, session
// snapshots, key list), then a zstd-compressed codec stream holding the
// entries. The header is readable without touching the body, so startup
// validation and hydration lookups never pay for decompression.
const (
	packMagic         = "STSHPK\x00\x01"
	packFormatVersion = uint64(1)
)

// Pack is the in-memory form of one cache file.
type Pack struct {
	// Version is the configured cache.version the pack was written under.
	Version string
	// Snapshots are the session snapshots recorded at flush time, keyed by
	// role (build dependencies, resolutions).
	Snapshots map[string]*domain.Snapshot
	// Entries are the persisted cache entries.
	Entries []*domain.CacheEntry
}

// Header is the cheap-to-read prefix of a pack file.
type Header struct {
	Path          string
	FormatVersion uint64
	Version       string
	CreatedAt     time.Time
	Snapshots     map[string]*domain.Snapshot
	Keys          []string
}

// WritePack serializes the pack to path. The file is written next to its
// final location and renamed into place, so a reader never observes a
// partial pack and an interrupted write never corrupts an existing one.
func WritePack(path string, pack *Pack, reg *codec.Registry) error {
	var buf bytes.Buffer
	if err := encodePack(&buf, pack, time.Now(), reg); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "pack-*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrPackWriteFailed.Error())
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return zerr.Wrap(err, domain.ErrPackWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return zerr.Wrap(err, domain.ErrPackWriteFailed.Error())
	}
	if err := os.Chmod(tmpPath, domain.FilePerm); err != nil {
		_ = os.Remove(tmpPath)
		return zerr.Wrap(err, domain.ErrPackWriteFailed.Error())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return zerr.Wrap(err, domain.ErrPackWriteFailed.Error())
	}
	return nil
}

func encodePack(out io.Writer, pack *Pack, createdAt time.Time, reg *codec.Registry) error {
	if _, err := out.Write([]byte(packMagic)); err != nil {
		return err
	}

	head := codec.NewWriter(out, reg)
	if err := head.Write(packFormatVersion); err != nil {
		return err
	}
	if err := head.Write(pack.Version); err != nil {
		return err
	}
	if err := head.Write(createdAt); err != nil {
		return err
	}
	if err := writeSnapshots(head, pack.Snapshots); err != nil {
		return err
	}
	keys := make([]string, len(pack.Entries))
	for i, entry := range pack.Entries {
		keys[i] = string(entry.Key)
	}
	sort.Strings(keys)
	if err := head.Write(keys); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	body := codec.NewWriter(enc, reg)
	if err := body.Write(int64(len(pack.Entries))); err != nil {
		enc.Close()
		return err
	}
	for _, entry := range pack.Entries {
		if err := body.Write(entry); err != nil {
			enc.Close()
			return err
		}
	}
	return enc.Close()
}

// writeSnapshots emits the snapshot map in key order. Each snapshot goes
// through the registry, so the header and the store share one wire format.
func writeSnapshots(w *codec.Writer, snaps map[string]*domain.Snapshot) error {
	names := make([]string, 0, len(snaps))
	for name := range snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := w.Write(int64(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := w.Write(name); err != nil {
			return err
		}
		if err := w.Write(snaps[name]); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader reads only the pack's header.
func ReadHeader(path string, reg *codec.Registry) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrPackReadFailed.Error())
	}
	defer f.Close()

	head, err := readHeader(bufio.NewReader(f), reg)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrPackCorrupt.Error()), "path", path)
	}
	head.Path = path
	return head, nil
}

// ReadPack reads the whole pack: header plus decompressed entries.
func ReadPack(path string, reg *codec.Registry) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrPackReadFailed.Error())
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := readHeader(br, reg)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrPackCorrupt.Error()), "path", path)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrPackCorrupt.Error()), "path", path)
	}
	defer dec.Close()

	body := codec.NewReader(dec, reg)
	count, err := body.ReadInt64()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrPackCorrupt.Error()), "path", path)
	}
	entries := make([]*domain.CacheEntry, 0, count)
	for range count {
		v, err := body.Read()
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrPackCorrupt.Error()), "path", path)
		}
		entry, ok := v.(*domain.CacheEntry)
		if !ok {
			return nil, zerr.With(domain.ErrPackCorrupt, "path", path)
		}
		entries = append(entries, entry)
	}

	return &Pack{
		Version:   head.Version,
		Snapshots: head.Snapshots,
		Entries:   entries,
	}, nil
}

func readHeader(br *bufio.Reader, reg *codec.Registry) (*Header, error) {
	magic := make([]byte, len(packMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, err
	}
	if string(magic) != packMagic {
		return nil, zerr.New("bad pack magic")
	}

	r := codec.NewReader(br, reg)
	format, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if format != packFormatVersion {
		return nil, zerr.With(zerr.New("unsupported pack format"), "format", format)
	}
	version, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	createdAt, err := r.ReadTime()
	if err != nil {
		return nil, err
	}
	snaps, err := readSnapshots(r)
	if err != nil {
		return nil, err
	}
	keys, err := r.ReadStrings()
	if err != nil {
		return nil, err
	}

	return &Header{
		FormatVersion: format,
		Version:       version,
		CreatedAt:     createdAt,
		Snapshots:     snaps,
		Keys:          keys,
	}, nil
}

func readSnapshots(r *codec.Reader) (map[string]*domain.Snapshot, error) {
	count, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	snaps := make(map[string]*domain.Snapshot, count)
	for range count {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.Read()
		if err != nil {
			return nil, err
		}
		snap, ok := v.(*domain.Snapshot)
		if !ok {
			return nil, zerr.With(zerr.New("pack header snapshot has wrong type"), "name", name)
		}
		snaps[name] = snap
	}
	return snaps, nil
}
