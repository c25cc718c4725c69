package strict

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Encoder appends strict-encoded values to an internal buffer.
//
// Writes never fail individually. The first encoding error is kept and
// reported by Err; later writes after a failure are still appended but the
// output must be discarded.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder creates an encoder with a small initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Reset empties the encoder, keeping the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	e.err = nil
}

// Bytes returns the encoded bytes. The slice is valid until the next write.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

// Err returns the first error recorded while encoding.
func (e *Encoder) Err() error {
	return e.err
}

// Fail records err unless an earlier error is already recorded.
func (e *Encoder) Fail(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) WriteI8(v int8) {
	e.WriteU8(uint8(v))
}

func (e *Encoder) WriteI16(v int16) {
	e.WriteU16(uint16(v))
}

func (e *Encoder) WriteI32(v int32) {
	e.WriteU32(uint32(v))
}

func (e *Encoder) WriteI64(v int64) {
	e.WriteU64(uint64(v))
}

// WriteBool appends 0x01 for true and 0x00 for false.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 0x01)
		return
	}
	e.buf = append(e.buf, 0x00)
}

// WriteFixed appends b verbatim, without a length prefix. Used for fixed-size
// arrays whose length is implied by the schema.
func (e *Encoder) WriteFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteLen appends a u16 element count. It reports false and records
// ErrLengthOverflow when n does not fit.
func (e *Encoder) WriteLen(n int) bool {
	if n < 0 || n > math.MaxUint16 {
		e.Fail(fmt.Errorf("%w: %d", ErrLengthOverflow, n))
		return false
	}
	e.WriteU16(uint16(n))
	return true
}

// WriteLenBytes appends a u16 length prefix followed by b.
func (e *Encoder) WriteLenBytes(b []byte) {
	if !e.WriteLen(len(b)) {
		return
	}
	e.buf = append(e.buf, b...)
}

// WriteString appends a u16 length prefix followed by the UTF-8 bytes of s.
func (e *Encoder) WriteString(s string) {
	if !utf8.ValidString(s) {
		e.Fail(ErrInvalidUTF8)
		return
	}
	if !e.WriteLen(len(s)) {
		return
	}
	e.buf = append(e.buf, s...)
}
