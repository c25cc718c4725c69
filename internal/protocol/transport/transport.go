// Package transport moves whole frames over the supported substrates.
//
// Every connection is a Duplex: one goroutine may call SendRaw while another
// calls RecvRaw. Timeouts surface as ErrTimeout and a peer that went away
// surfaces as ErrClosed, regardless of the substrate.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

var (
	ErrUnsupportedTransport = errors.New("transport: unsupported transport")
	ErrTimeout              = errors.New("transport: timeout")
	ErrClosed               = errors.New("transport: connection closed")
)

// Kind names the substrate under a Duplex.
type Kind string

const (
	KindFTCP      Kind = "ftcp"
	KindPosix     Kind = "posix"
	KindZMQ       Kind = "zmq"
	KindWebSocket Kind = "websocket"
	KindPipe      Kind = "pipe"
)

// Duplex is one of *StreamConn, *ZmqConn, *WSConn or *PipeConn.
type Duplex interface {
	SendRaw(frame []byte) error
	RecvRaw() ([]byte, error)
	Close() error
	Kind() Kind
	RemoteAddr() string
	duplex()
}

// Listener yields inbound connections for one bound address.
type Listener interface {
	Accept(ctx context.Context) (Duplex, error)
	Close() error
	Addr() string
}

// Timeouts bounds connection setup and every frame read or write. Zero
// disables the corresponding limit.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// CheckSupported fails fast for reserved kinds without an implementation.
func CheckSupported(p addr.Proto) error {
	switch p {
	case addr.ProtoFTCP, addr.ProtoZMQ, addr.ProtoPosix, addr.ProtoWebSocket:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTransport, p)
	}
}

// mapErr folds substrate errors into ErrTimeout and ErrClosed. Other errors
// pass through unchanged.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrClosed) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, frame.ErrShortHeader),
		errors.Is(err, frame.ErrShortFrame),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure),
		errors.Is(err, websocket.ErrCloseSent):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
