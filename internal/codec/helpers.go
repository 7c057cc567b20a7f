package codec

import (
	"time"

	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/zerr"
)

// Typed read helpers for registered decoders. Each reads the next value and
// enforces its kind, turning a stream/type mismatch into ErrEntryCorrupt.

// ReadString reads the next value as a string.
func (r *Reader) ReadString() (string, error) {
	return readAs[string](r)
}

// ReadBool reads the next value as a bool.
func (r *Reader) ReadBool() (bool, error) {
	return readAs[bool](r)
}

// ReadInt64 reads the next value as an int64.
func (r *Reader) ReadInt64() (int64, error) {
	return readAs[int64](r)
}

// ReadUint64 reads the next value as a uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	return readAs[uint64](r)
}

// ReadTime reads the next value as a time.Time.
func (r *Reader) ReadTime() (time.Time, error) {
	return readAs[time.Time](r)
}

// ReadStrings reads the next value as a []string.
func (r *Reader) ReadStrings() ([]string, error) {
	return readAs[[]string](r)
}

// ReadSet reads the next value as a string set.
func (r *Reader) ReadSet() (map[string]struct{}, error) {
	return readAs[map[string]struct{}](r)
}

func readAs[T any](r *Reader) (T, error) {
	var zero T
	v, err := r.Read()
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, zerr.With(domain.ErrEntryCorrupt, "value", v)
	}
	return typed, nil
}
