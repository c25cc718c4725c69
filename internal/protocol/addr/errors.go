package addr

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownScheme       = errors.New("addr: unknown url scheme")
	ErrMalformedURL        = errors.New("addr: malformed url")
	ErrMalformedIP         = errors.New("addr: malformed ip address (dns names are not accepted)")
	ErrInvalidPubkey       = errors.New("addr: invalid node public key")
	ErrHostRequired        = errors.New("addr: host required")
	ErrPortRequired        = errors.New("addr: port required")
	ErrUnexpectedAuthority = errors.New("addr: unexpected node id")
	ErrUnexpectedHost      = errors.New("addr: unexpected host")
	ErrUnexpectedPort      = errors.New("addr: unexpected port")
	ErrInvalidZmqAPI       = errors.New("addr: unsupported zmq api (want rpc, p2p, sub or esb)")
	ErrZmqAPIRequired      = errors.New("addr: zmq api required")
	ErrNodeIDRequired      = errors.New("addr: node id required")
	ErrUnsupported         = errors.New("addr: unsupported address form")
)

// Error reports which input failed to parse and why.
type Error struct {
	Input string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Input)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(input string, err error) error {
	return &Error{Input: input, Err: err}
}
