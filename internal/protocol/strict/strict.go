package strict

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Encodable is implemented by values with a canonical strict encoding.
type Encodable interface {
	EncodeStrict(e *Encoder)
}

// Decodable is implemented by values that can be rebuilt from their strict
// encoding.
type Decodable interface {
	DecodeStrict(d *Decoder) error
}

// Marshal returns the strict encoding of v.
func Marshal(v Encodable) ([]byte, error) {
	e := NewEncoder()
	v.EncodeStrict(e)
	if err := e.Err(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Unmarshal decodes data into v and requires every byte to be consumed.
func Unmarshal(data []byte, v Decodable) error {
	d := NewDecoder(data)
	if err := v.DecodeStrict(d); err != nil {
		return err
	}
	return d.Finish()
}

// WriteSeq writes a u16 count followed by each item.
func WriteSeq[T any](e *Encoder, items []T, write func(*Encoder, T)) {
	if !e.WriteLen(len(items)) {
		return
	}
	for _, item := range items {
		write(e, item)
	}
}

// ReadSeq reads a u16 count followed by that many items. An empty sequence
// decodes to nil.
func ReadSeq[T any](d *Decoder, read func(*Decoder) (T, error)) ([]T, error) {
	n, err := d.ReadLen()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	// every item takes at least one byte, so a hostile count cannot make us
	// allocate past the input size
	out := make([]T, 0, min(n, d.Remaining()))
	for i := 0; i < n; i++ {
		item, err := read(d)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// WriteMap writes a u16 count followed by key/value pairs in ascending key
// order.
func WriteMap[K cmp.Ordered, V any](e *Encoder, m map[K]V, writeKey func(*Encoder, K), writeVal func(*Encoder, V)) {
	if !e.WriteLen(len(m)) {
		return
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		writeKey(e, k)
		writeVal(e, m[k])
	}
}

// ReadMap reads a map written by WriteMap. Keys must be strictly ascending;
// repeated or reordered keys are rejected with ErrUnorderedKeys.
func ReadMap[K cmp.Ordered, V any](d *Decoder, readKey func(*Decoder) (K, error), readVal func(*Decoder) (V, error)) (map[K]V, error) {
	n, err := d.ReadLen()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make(map[K]V, min(n, d.Remaining()))
	var prev K
	for i := 0; i < n; i++ {
		k, err := readKey(d)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		if i > 0 && cmp.Compare(k, prev) <= 0 {
			return nil, fmt.Errorf("%w: entry %d", ErrUnorderedKeys, i)
		}
		v, err := readVal(d)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[k] = v
		prev = k
	}
	return out, nil
}

// WriteOption writes 0x00 for nil, or 0x01 followed by *v.
func WriteOption[T any](e *Encoder, v *T, write func(*Encoder, T)) {
	if v == nil {
		e.WriteU8(0x00)
		return
	}
	e.WriteU8(0x01)
	write(e, *v)
}

// ReadOption reads a value written by WriteOption.
func ReadOption[T any](d *Decoder, read func(*Decoder) (T, error)) (*T, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0x00:
		return nil, nil
	case 0x01:
		v, err := read(d)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidOption, tag)
	}
}
