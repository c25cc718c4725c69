// Package strict implements the canonical binary codec used by every LNP
// payload.
//
// Fixed-width integers are little-endian. Byte strings, text, sequences and
// maps carry a u16 length prefix; map entries are written in ascending key
// order. Decoding is exhaustive: Unmarshal fails if any input byte is left
// after the value is built.
package strict
