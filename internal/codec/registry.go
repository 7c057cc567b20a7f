// Package codec implements the serialization registry: a mapping from
// stable type tags to encode/decode function pairs, plus a binary stream
// format with per-stream identity interning so shared and self-referential
// object graphs survive persistence without duplication.
package codec

import (
	"sync"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/zerr"
)

// Taggable is implemented by values that can be persisted through the
// registry. The tag is an explicit, stable identifier embedded by the
// producing component; dispatch never relies on reflective type discovery.
type Taggable interface {
	TypeTag() string
}

// EncodeFunc writes every field of v, in a fixed deterministic order, to w.
type EncodeFunc func(w *Writer, v any) error

// DecodeFunc reads fields in the exact order EncodeFunc wrote them and
// returns the reconstructed value. Order symmetry is the correctness
// contract: a decoder that reads fields out of order corrupts the stream.
type DecodeFunc func(r *Reader) (any, error)

type serializer struct {
	encode EncodeFunc
	decode DecodeFunc
}

// Registry maps type tags to serializer pairs. It must be fully populated
// before any cache I/O begins; registration after streams are open is safe
// but entries written earlier cannot use the new tag.
type Registry struct {
	mu   sync.RWMutex
	tags map[string]serializer
}

// NewRegistry creates a registry with no tagged types. Built-in kinds
// (primitives, sequences, sets, maps, patterns, errors, timestamps) need no
// registration.
func NewRegistry() *Registry {
	return &Registry{tags: make(map[string]serializer)}
}

// Register associates a type tag with an encode/decode pair. Registering a
// tag twice is a programming error and returns an error rather than
// silently replacing the previous pair.
func (reg *Registry) Register(tag string, enc EncodeFunc, dec DecodeFunc) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.tags[tag]; exists {
		return zerr.With(zerr.New("type tag already registered"), "tag", tag)
	}
	reg.tags[tag] = serializer{encode: enc, decode: dec}
	return nil
}

// MustRegister is Register for process-wide init paths where a duplicate
// tag is unrecoverable.
func (reg *Registry) MustRegister(tag string, enc EncodeFunc, dec DecodeFunc) {
	if err := reg.Register(tag, enc, dec); err != nil {
		panic(err)
	}
}

func (reg *Registry) lookup(tag string) (serializer, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	ser, ok := reg.tags[tag]
	if !ok {
		return serializer{}, zerr.With(domain.ErrUnregisteredType, "tag", tag)
	}
	return ser, nil
}
