package codec

import (
	"encoding/binary"
	"io"
	"math"
	"regexp"
	"sort"
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/zerr"
)

// Stream kinds. The kind byte precedes every encoded value.
const (
	kindNil byte = iota
	kindFalse
	kindTrue
	kindInt
	kindUint
	kindFloat
	kindString
	kindBytes
	kindSeq
	kindStrings
	kindSet
	kindMap
	kindRegexp
	kindError
	kindTime
	kindObject
	kindBackref
)

// Writer encodes values into a stream. Each registered object written
// through it is assigned a monotonically increasing index on first write;
// repeats emit a back-reference instead of re-serializing, so shared
// sub-objects between cache entries are stored once.
type Writer struct {
	out io.Writer
	reg *Registry
	ids map[any]uint64
	buf [binary.MaxVarintLen64]byte
}

// NewWriter creates a Writer over out, resolving tagged types through reg.
func NewWriter(out io.Writer, reg *Registry) *Writer {
	return &Writer{
		out: out,
		reg: reg,
		ids: make(map[any]uint64),
	}
}

// Write encodes a single value. Built-in kinds are handled directly; any
// other value must implement Taggable and have its tag registered, else
// domain.ErrUnregisteredType is returned.
func (w *Writer) Write(v any) error {
	switch val := v.(type) {
	case nil:
		return w.writeKind(kindNil)
	case bool:
		if val {
			return w.writeKind(kindTrue)
		}
		return w.writeKind(kindFalse)
	case int:
		return w.writeInt(int64(val))
	case int64:
		return w.writeInt(val)
	case uint64:
		if err := w.writeKind(kindUint); err != nil {
			return err
		}
		return w.writeUvarint(val)
	case float64:
		if err := w.writeKind(kindFloat); err != nil {
			return err
		}
		var fixed [8]byte
		binary.LittleEndian.PutUint64(fixed[:], math.Float64bits(val))
		_, err := w.out.Write(fixed[:])
		return err
	case string:
		if err := w.writeKind(kindString); err != nil {
			return err
		}
		return w.writeString(val)
	case []byte:
		if err := w.writeKind(kindBytes); err != nil {
			return err
		}
		if err := w.writeUvarint(uint64(len(val))); err != nil {
			return err
		}
		_, err := w.out.Write(val)
		return err
	case []string:
		return w.writeStrings(val)
	case []any:
		if err := w.writeKind(kindSeq); err != nil {
			return err
		}
		if err := w.writeUvarint(uint64(len(val))); err != nil {
			return err
		}
		for _, item := range val {
			if err := w.Write(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]struct{}:
		return w.writeSet(val)
	case map[string]any:
		return w.writeMap(val)
	case *regexp.Regexp:
		if err := w.writeKind(kindRegexp); err != nil {
			return err
		}
		return w.writeString(val.String())
	case error:
		if err := w.writeKind(kindError); err != nil {
			return err
		}
		return w.writeString(val.Error())
	case time.Time:
		if err := w.writeKind(kindTime); err != nil {
			return err
		}
		return w.writeInt64(val.UnixNano())
	case Taggable:
		return w.writeObject(val)
	default:
		return zerr.With(domain.ErrUnregisteredType, "value", v)
	}
}

// writeObject writes a tagged object, or a back-reference if the exact
// instance was already written to this stream.
func (w *Writer) writeObject(v Taggable) error {
	if id, seen := w.ids[any(v)]; seen {
		if err := w.writeKind(kindBackref); err != nil {
			return err
		}
		return w.writeUvarint(id)
	}

	ser, err := w.reg.lookup(v.TypeTag())
	if err != nil {
		return err
	}

	// Assign the index before encoding fields so self-references inside the
	// object resolve to it.
	w.ids[any(v)] = uint64(len(w.ids))

	if err := w.writeKind(kindObject); err != nil {
		return err
	}
	if err := w.writeString(v.TypeTag()); err != nil {
		return err
	}
	return ser.encode(w, v)
}

// writeSet writes set members in sorted order so equal sets always produce
// identical bytes.
func (w *Writer) writeSet(set map[string]struct{}) error {
	if err := w.writeKind(kindSet); err != nil {
		return err
	}
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	if err := w.writeUvarint(uint64(len(members))); err != nil {
		return err
	}
	for _, m := range members {
		if err := w.writeString(m); err != nil {
			return err
		}
	}
	return nil
}

// writeMap writes entries in key order for determinism.
func (w *Writer) writeMap(m map[string]any) error {
	if err := w.writeKind(kindMap); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := w.writeUvarint(uint64(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.writeString(k); err != nil {
			return err
		}
		if err := w.Write(m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeStrings(vals []string) error {
	if err := w.writeKind(kindStrings); err != nil {
		return err
	}
	if err := w.writeUvarint(uint64(len(vals))); err != nil {
		return err
	}
	for _, s := range vals {
		if err := w.writeString(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeInt(v int64) error {
	if err := w.writeKind(kindInt); err != nil {
		return err
	}
	return w.writeInt64(v)
}

func (w *Writer) writeInt64(v int64) error {
	n := binary.PutVarint(w.buf[:], v)
	_, err := w.out.Write(w.buf[:n])
	return err
}

func (w *Writer) writeUvarint(v uint64) error {
	n := binary.PutUvarint(w.buf[:], v)
	_, err := w.out.Write(w.buf[:n])
	return err
}

func (w *Writer) writeString(s string) error {
	if err := w.writeUvarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w.out, s)
	return err
}

func (w *Writer) writeKind(k byte) error {
	_, err := w.out.Write([]byte{k})
	return err
}
