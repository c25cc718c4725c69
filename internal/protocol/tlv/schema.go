package tlv

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/danmuck/lnpnet/internal/protocol/strict"
)

// Entry binds one TLV type id to a field of record type R.
//
// Present reports whether the field differs from its default and must be
// written. Reset restores the default before decoding, so type ids absent
// from the stream leave the field empty.
type Entry[R any] struct {
	Type    uint16
	Present func(*R) bool
	Encode  func(*R, *strict.Encoder)
	Decode  func(*R, *strict.Decoder) error
	Reset   func(*R)
}

// Schema is the ordered TLV table of a record type. Build it once with
// NewSchema and share it; it is read-only after construction.
type Schema[R any] struct {
	entries []Entry[R]
	unknown func(*R) *Stream
}

// NewSchema sorts entries by type id and rejects repeated ids.
func NewSchema[R any](entries ...Entry[R]) (*Schema[R], error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry[R]) int {
		return cmp.Compare(a.Type, b.Type)
	})
	for i, ent := range sorted {
		if ent.Present == nil || ent.Encode == nil || ent.Decode == nil || ent.Reset == nil {
			return nil, fmt.Errorf("tlv: schema entry 0x%04x is incomplete", ent.Type)
		}
		if i > 0 && ent.Type == sorted[i-1].Type {
			return nil, fmt.Errorf("%w: schema declares 0x%04x twice", ErrDuplicateType, ent.Type)
		}
	}
	return &Schema[R]{entries: sorted}, nil
}

// MustSchema is NewSchema for package-level tables; it panics on error.
func MustSchema[R any](entries ...Entry[R]) *Schema[R] {
	s, err := NewSchema(entries...)
	if err != nil {
		panic(err)
	}
	return s
}

// WithUnknown declares the record's unknown bucket. Without one, decoding a
// type id the schema does not list fails with *UnknownTypeError.
func (s *Schema[R]) WithUnknown(field func(*R) *Stream) *Schema[R] {
	s.unknown = field
	return s
}

// Types returns the known type ids in ascending order.
func (s *Schema[R]) Types() []uint16 {
	out := make([]uint16, len(s.entries))
	for i, ent := range s.entries {
		out[i] = ent.Type
	}
	return out
}

func (s *Schema[R]) lookup(typ uint16) (Entry[R], bool) {
	i, ok := slices.BinarySearchFunc(s.entries, typ, func(ent Entry[R], t uint16) int {
		return cmp.Compare(ent.Type, t)
	})
	if !ok {
		return Entry[R]{}, false
	}
	return s.entries[i], true
}

// Encode writes the TLV stream of r: every non-default known field plus the
// unknown bucket, in ascending type order.
func (s *Schema[R]) Encode(e *strict.Encoder, r *R) {
	fields := make([]Field, 0, len(s.entries))
	sub := strict.NewEncoder()
	for _, ent := range s.entries {
		if !ent.Present(r) {
			continue
		}
		sub.Reset()
		ent.Encode(r, sub)
		if err := sub.Err(); err != nil {
			e.Fail(fmt.Errorf("tlv: type 0x%04x: %w", ent.Type, err))
			return
		}
		fields = append(fields, Field{Type: ent.Type, Value: slices.Clone(sub.Bytes())})
	}
	if s.unknown != nil {
		for _, f := range s.unknown(r).Fields() {
			if _, known := s.lookup(f.Type); known {
				e.Fail(fmt.Errorf("%w: unknown bucket holds known type 0x%04x", ErrDuplicateType, f.Type))
				return
			}
			fields = append(fields, f)
		}
	}
	EncodeFields(e, fields)
}

// Decode reads a TLV stream into r. Known fields missing from the stream are
// reset to their defaults. Each value must be consumed exactly.
func (s *Schema[R]) Decode(d *strict.Decoder, r *R) error {
	for _, ent := range s.entries {
		ent.Reset(r)
	}
	var bucket *Stream
	if s.unknown != nil {
		bucket = s.unknown(r)
		*bucket = nil
	}

	fields, err := DecodeFields(d)
	if err != nil {
		return err
	}
	for _, f := range fields {
		ent, ok := s.lookup(f.Type)
		if !ok {
			if bucket == nil {
				return &UnknownTypeError{Type: f.Type}
			}
			bucket.put(f)
			continue
		}
		vd := strict.NewDecoder(f.Value)
		if err := ent.Decode(r, vd); err != nil {
			return fmt.Errorf("tlv: type 0x%04x: %w", f.Type, err)
		}
		if err := vd.Finish(); err != nil {
			return fmt.Errorf("tlv: type 0x%04x: %w", f.Type, err)
		}
	}
	return nil
}
