package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/lnpnet/internal/protocol"
)

// HeaderLen is the size of the little-endian length prefix before each frame.
const HeaderLen = 2

var (
	ErrShortHeader   = errors.New("frame: short length prefix")
	ErrShortFrame    = errors.New("frame: stream ended inside frame body")
	ErrFrameTooLarge = errors.New("frame: frame too large")
)

// Limits constrains frame sizes on both read and write.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: protocol.MaxMsgLen}
}

func (l Limits) max() int {
	if l.MaxFrameBytes <= 0 || l.MaxFrameBytes > protocol.MaxMsgLen {
		return protocol.MaxMsgLen
	}
	return l.MaxFrameBytes
}

// ReadFrame reads one length-prefixed frame. A stream that ends cleanly
// before the prefix returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [HeaderLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	n := int(binary.LittleEndian.Uint16(prefix[:]))
	if n > limits.max() {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limits.max())
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrShortFrame
			}
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes the prefix and payload in a single Write call so
// concurrent writers on separate frames never interleave partial prefixes.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) > limits.max() {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), limits.max())
	}
	buf := make([]byte, HeaderLen+len(payload))
	binary.LittleEndian.PutUint16(buf[:HeaderLen], uint16(len(payload)))
	copy(buf[HeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}
