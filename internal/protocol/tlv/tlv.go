package tlv

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/danmuck/lnpnet/internal/protocol/strict"
)

var (
	ErrOutOfOrder    = errors.New("tlv: type ids not strictly ascending")
	ErrDuplicateType = errors.New("tlv: duplicate type id")
	ErrUnknownType   = errors.New("tlv: unknown type id")
	ErrValueTooLarge = errors.New("tlv: value exceeds u16 length")
)

// OrderError reports a stream entry whose type id is not greater than the
// entry before it. A repeated id matches both ErrOutOfOrder and
// ErrDuplicateType.
type OrderError struct {
	Prev uint16
	Type uint16
}

func (e *OrderError) Error() string {
	if e.Prev == e.Type {
		return fmt.Sprintf("tlv: duplicate type id 0x%04x", e.Type)
	}
	return fmt.Sprintf("tlv: type id 0x%04x follows 0x%04x", e.Type, e.Prev)
}

func (e *OrderError) Is(target error) bool {
	switch target {
	case ErrOutOfOrder:
		return true
	case ErrDuplicateType:
		return e.Prev == e.Type
	}
	return false
}

// UnknownTypeError is returned by schemas without an unknown bucket when the
// stream carries a type id no field claims.
type UnknownTypeError struct {
	Type uint16
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("tlv: unknown type id 0x%04x", e.Type)
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType
}

// Field is one entry of a TLV stream.
type Field struct {
	Type  uint16
	Value []byte
}

// EncodeFields writes the stream count followed by every field in ascending
// type order. The input slice is not modified.
func EncodeFields(e *strict.Encoder, fields []Field) {
	sorted := slices.Clone(fields)
	slices.SortFunc(sorted, func(a, b Field) int {
		return int(a.Type) - int(b.Type)
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Type == sorted[i-1].Type {
			e.Fail(fmt.Errorf("%w: 0x%04x", ErrDuplicateType, sorted[i].Type))
			return
		}
	}
	if !e.WriteLen(len(sorted)) {
		return
	}
	for _, f := range sorted {
		if len(f.Value) > math.MaxUint16 {
			e.Fail(fmt.Errorf("%w: type 0x%04x has %d bytes", ErrValueTooLarge, f.Type, len(f.Value)))
			return
		}
		e.WriteU16(f.Type)
		e.WriteLenBytes(f.Value)
	}
}

// DecodeFields reads a stream written by EncodeFields. Entries must arrive in
// strictly ascending type order; anything else is rejected with an
// *OrderError.
func DecodeFields(d *strict.Decoder) ([]Field, error) {
	n, err := d.ReadLen()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	fields := make([]Field, 0, min(n, d.Remaining()/4))
	for i := 0; i < n; i++ {
		typ, err := d.ReadU16()
		if err != nil {
			return nil, err
		}
		if i > 0 && typ <= fields[i-1].Type {
			return nil, &OrderError{Prev: fields[i-1].Type, Type: typ}
		}
		val, err := d.ReadLenBytes()
		if err != nil {
			return nil, fmt.Errorf("tlv: type 0x%04x value: %w", typ, err)
		}
		fields = append(fields, Field{Type: typ, Value: val})
	}
	return fields, nil
}

// GetField returns the field with the given type id.
func GetField(fields []Field, typ uint16) (Field, bool) {
	for _, f := range fields {
		if f.Type == typ {
			return f, true
		}
	}
	return Field{}, false
}

// Stream holds raw TLV values keyed by type id. It is used as the unknown
// bucket of forward-compatible records and re-encodes in ascending order.
// An empty value decodes as a present key holding nil.
type Stream map[uint16][]byte

// Fields returns the stream entries sorted by type id.
func (s Stream) Fields() []Field {
	out := make([]Field, 0, len(s))
	for typ, val := range s {
		out = append(out, Field{Type: typ, Value: val})
	}
	slices.SortFunc(out, func(a, b Field) int {
		return int(a.Type) - int(b.Type)
	})
	return out
}

func (s Stream) EncodeStrict(e *strict.Encoder) {
	EncodeFields(e, s.Fields())
}

func (s *Stream) DecodeStrict(d *strict.Decoder) error {
	fields, err := DecodeFields(d)
	if err != nil {
		return err
	}
	*s = nil
	for _, f := range fields {
		s.put(f)
	}
	return nil
}

func (s *Stream) put(f Field) {
	if *s == nil {
		*s = make(Stream)
	}
	(*s)[f.Type] = f.Value
}
