package tlv

import (
	"cmp"

	"github.com/danmuck/lnpnet/internal/protocol/strict"
)

// Optional maps a pointer field. A nil pointer is omitted; a set pointer is
// written as the raw value with no option tag.
func Optional[R, T any](typ uint16, field func(*R) **T, write func(*strict.Encoder, T), read func(*strict.Decoder) (T, error)) Entry[R] {
	return Entry[R]{
		Type:    typ,
		Present: func(r *R) bool { return *field(r) != nil },
		Encode:  func(r *R, e *strict.Encoder) { write(e, **field(r)) },
		Decode: func(r *R, d *strict.Decoder) error {
			v, err := read(d)
			if err != nil {
				return err
			}
			*field(r) = &v
			return nil
		},
		Reset: func(r *R) { *field(r) = nil },
	}
}

// Value maps a comparable field that is omitted when it equals its zero
// value.
func Value[R any, T comparable](typ uint16, field func(*R) *T, write func(*strict.Encoder, T), read func(*strict.Decoder) (T, error)) Entry[R] {
	return Entry[R]{
		Type: typ,
		Present: func(r *R) bool {
			var zero T
			return *field(r) != zero
		},
		Encode: func(r *R, e *strict.Encoder) { write(e, *field(r)) },
		Decode: func(r *R, d *strict.Decoder) (err error) {
			*field(r), err = read(d)
			return err
		},
		Reset: func(r *R) {
			var zero T
			*field(r) = zero
		},
	}
}

// Bytes maps a byte slice, omitted when empty and written length-prefixed.
func Bytes[R any](typ uint16, field func(*R) *[]byte) Entry[R] {
	return Entry[R]{
		Type:    typ,
		Present: func(r *R) bool { return len(*field(r)) > 0 },
		Encode:  func(r *R, e *strict.Encoder) { e.WriteLenBytes(*field(r)) },
		Decode: func(r *R, d *strict.Decoder) (err error) {
			*field(r), err = d.ReadLenBytes()
			return err
		},
		Reset: func(r *R) { *field(r) = nil },
	}
}

// String maps a text field, omitted when empty and written length-prefixed.
func String[R any](typ uint16, field func(*R) *string) Entry[R] {
	return Entry[R]{
		Type:    typ,
		Present: func(r *R) bool { return *field(r) != "" },
		Encode:  func(r *R, e *strict.Encoder) { e.WriteString(*field(r)) },
		Decode: func(r *R, d *strict.Decoder) (err error) {
			*field(r), err = d.ReadString()
			return err
		},
		Reset: func(r *R) { *field(r) = "" },
	}
}

// Seq maps a slice field, omitted when empty.
func Seq[R, T any](typ uint16, field func(*R) *[]T, write func(*strict.Encoder, T), read func(*strict.Decoder) (T, error)) Entry[R] {
	return Entry[R]{
		Type:    typ,
		Present: func(r *R) bool { return len(*field(r)) > 0 },
		Encode:  func(r *R, e *strict.Encoder) { strict.WriteSeq(e, *field(r), write) },
		Decode: func(r *R, d *strict.Decoder) (err error) {
			*field(r), err = strict.ReadSeq(d, read)
			return err
		},
		Reset: func(r *R) { *field(r) = nil },
	}
}

// Map maps an ordered map field, omitted when empty.
func Map[R any, K cmp.Ordered, V any](
	typ uint16,
	field func(*R) *map[K]V,
	writeKey func(*strict.Encoder, K),
	writeVal func(*strict.Encoder, V),
	readKey func(*strict.Decoder) (K, error),
	readVal func(*strict.Decoder) (V, error),
) Entry[R] {
	return Entry[R]{
		Type:    typ,
		Present: func(r *R) bool { return len(*field(r)) > 0 },
		Encode:  func(r *R, e *strict.Encoder) { strict.WriteMap(e, *field(r), writeKey, writeVal) },
		Decode: func(r *R, d *strict.Decoder) (err error) {
			*field(r), err = strict.ReadMap(d, readKey, readVal)
			return err
		},
		Reset: func(r *R) { *field(r) = nil },
	}
}
