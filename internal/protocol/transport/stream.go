package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol/frame"
)

// StreamConn carries length-prefixed frames over a TCP or unix stream.
type StreamConn struct {
	kind     Kind
	conn     net.Conn
	reader   *bufio.Reader
	timeouts Timeouts
	limits   frame.Limits

	rmu sync.Mutex
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps an established stream.
func NewStreamConn(kind Kind, conn net.Conn, timeouts Timeouts) *StreamConn {
	return &StreamConn{
		kind:     kind,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		timeouts: timeouts,
		limits:   frame.DefaultLimits(),
	}
}

func (c *StreamConn) SendRaw(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline(c.timeouts.Write)); err != nil {
		return mapErr(err)
	}
	return mapErr(frame.WriteFrame(c.conn, b, c.limits))
}

func (c *StreamConn) RecvRaw() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if err := c.conn.SetReadDeadline(deadline(c.timeouts.Read)); err != nil {
		return nil, mapErr(err)
	}
	b, err := frame.ReadFrame(c.reader, c.limits)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *StreamConn) Kind() Kind { return c.kind }

func (c *StreamConn) RemoteAddr() string {
	if a := c.conn.RemoteAddr(); a != nil && a.String() != "" {
		return a.String()
	}
	return c.conn.LocalAddr().String()
}

func (*StreamConn) duplex() {}

func streamNetwork(kind Kind) (string, error) {
	switch kind {
	case KindFTCP:
		return "tcp", nil
	case KindPosix:
		return "unix", nil
	default:
		return "", fmt.Errorf("%w: %s is not a stream kind", ErrUnsupportedTransport, kind)
	}
}

// DialStream connects to a framed TCP (KindFTCP) or unix (KindPosix)
// endpoint.
func DialStream(ctx context.Context, kind Kind, address string, timeouts Timeouts) (*StreamConn, error) {
	network, err := streamNetwork(kind)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: timeouts.Connect}
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, mapErr(err)
	}
	return NewStreamConn(kind, conn, timeouts), nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// StreamListener accepts framed stream connections.
type StreamListener struct {
	kind     Kind
	ln       net.Listener
	timeouts Timeouts
}

func ListenStream(kind Kind, address string, timeouts Timeouts) (*StreamListener, error) {
	network, err := streamNetwork(kind)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &StreamListener{kind: kind, ln: ln, timeouts: timeouts}, nil
}

// Accept waits for the next connection or until ctx is done.
func (l *StreamListener) Accept(ctx context.Context) (Duplex, error) {
	dl, ok := l.ln.(deadliner)
	if ok {
		if err := dl.SetDeadline(time.Time{}); err != nil {
			return nil, mapErr(err)
		}
		stop := context.AfterFunc(ctx, func() {
			_ = dl.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}
	conn, err := l.ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, mapErr(ctxErr)
		}
		return nil, mapErr(err)
	}
	return NewStreamConn(l.kind, conn, l.timeouts), nil
}

func (l *StreamListener) Close() error { return l.ln.Close() }

func (l *StreamListener) Addr() string { return l.ln.Addr().String() }
