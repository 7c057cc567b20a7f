package codec

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"regexp"
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/zerr"
)

// maxStringLen bounds decoded string/byte lengths to reject corrupt length
// prefixes before attempting a giant allocation.
const maxStringLen = 1 << 30

// Reader decodes a stream produced by Writer. It mirrors the writer's index
// assignment order: each decoded object occupies the next slot in the
// identity table, so back-references resolve to the same instance.
type Reader struct {
	in      *countingReader
	reg     *Registry
	objects []any
	// pending is the slot reserved for the object currently being decoded.
	// -1 when no object decode is in flight.
	pending int
}

// NewReader creates a Reader over in, resolving tags through reg.
func NewReader(in io.Reader, reg *Registry) *Reader {
	return &Reader{
		in:      &countingReader{r: in},
		reg:     reg,
		pending: -1,
	}
}

// Read decodes the next value from the stream.
func (r *Reader) Read() (any, error) {
	kind, err := r.readKind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindNil:
		return nil, nil
	case kindFalse:
		return false, nil
	case kindTrue:
		return true, nil
	case kindInt:
		return binary.ReadVarint(r.in)
	case kindUint:
		return binary.ReadUvarint(r.in)
	case kindFloat:
		var fixed [8]byte
		if _, err := io.ReadFull(r.in, fixed[:]); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(fixed[:])), nil
	case kindString:
		return r.readString()
	case kindBytes:
		return r.readBytes()
	case kindSeq:
		return r.readSeq()
	case kindStrings:
		return r.readStrings()
	case kindSet:
		return r.readSet()
	case kindMap:
		return r.readMap()
	case kindRegexp:
		pattern, err := r.readString()
		if err != nil {
			return nil, err
		}
		return regexp.Compile(pattern)
	case kindError:
		msg, err := r.readString()
		if err != nil {
			return nil, err
		}
		return errors.New(msg), nil
	case kindTime:
		nanos, err := binary.ReadVarint(r.in)
		if err != nil {
			return nil, err
		}
		return time.Unix(0, nanos), nil
	case kindObject:
		return r.readObject()
	case kindBackref:
		idx, err := binary.ReadUvarint(r.in)
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(r.objects)) {
			return nil, zerr.With(domain.ErrEntryCorrupt, "backref", idx)
		}
		return r.objects[idx], nil
	default:
		return nil, zerr.With(domain.ErrEntryCorrupt, "kind", kind)
	}
}

// Intern fills the identity-table slot for the object currently being
// decoded. Decoders of types whose instances can participate in cycles call
// this immediately after allocating, before reading fields, so inner
// back-references resolve to the instance under construction.
func (r *Reader) Intern(v any) {
	if r.pending >= 0 && r.pending < len(r.objects) {
		r.objects[r.pending] = v
	}
}

func (r *Reader) readObject() (any, error) {
	tag, err := r.readString()
	if err != nil {
		return nil, err
	}
	ser, err := r.reg.lookup(tag)
	if err != nil {
		return nil, err
	}

	// Reserve the slot first to mirror the writer's index assignment.
	r.objects = append(r.objects, nil)
	slot := len(r.objects) - 1

	prev := r.pending
	r.pending = slot
	v, err := ser.decode(r)
	r.pending = prev
	if err != nil {
		return nil, err
	}
	// Patch the slot unless the decoder interned itself already.
	if r.objects[slot] == nil {
		r.objects[slot] = v
	}
	return r.objects[slot], nil
}

func (r *Reader) readSeq() ([]any, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, n)
	for range n {
		v, err := r.Read()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Reader) readStrings() ([]string, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for range n {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Reader) readSet() (map[string]struct{}, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, n)
	for range n {
		m, err := r.readString()
		if err != nil {
			return nil, err
		}
		out[m] = struct{}{}
	}
	return out, nil
}

func (r *Reader) readMap() (map[string]any, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, n)
	for range n {
		k, err := r.readString()
		if err != nil {
			return nil, err
		}
		v, err := r.Read()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (r *Reader) readLen() (int, error) {
	n, err := binary.ReadUvarint(r.in)
	if err != nil {
		return 0, err
	}
	if n > maxStringLen {
		return 0, zerr.With(domain.ErrEntryCorrupt, "length", n)
	}
	return int(n), nil
}

func (r *Reader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) readBytes() ([]byte, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.in, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) readKind() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(r.in, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

// countingReader adapts an io.Reader to io.ByteReader for varint decoding.
type countingReader struct {
	r   io.Reader
	one [1]byte
}

func (c *countingReader) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *countingReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(c.r, c.one[:]); err != nil {
		return 0, err
	}
	return c.one[0], nil
}
