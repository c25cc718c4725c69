package strict

import "errors"

var (
	ErrUnexpectedEOF  = errors.New("strict: unexpected end of data")
	ErrTrailingBytes  = errors.New("strict: trailing bytes after value")
	ErrLengthOverflow = errors.New("strict: length exceeds u16 range")
	ErrInvalidBool    = errors.New("strict: invalid bool value")
	ErrInvalidUTF8    = errors.New("strict: invalid utf-8 string")
	ErrInvalidOption  = errors.New("strict: invalid option tag")
	ErrUnorderedKeys  = errors.New("strict: map keys not strictly ascending")
)
