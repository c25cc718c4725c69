package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/frame"
	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
)

var (
	ErrZmqContextClosed = errors.New("transport: zmq context closed")
	errMalformedRouted  = errors.New("transport: malformed routed frame")
	errNoRouteHop       = errors.New("transport: router has no peer to reply to")
)

// ZmqContext owns every ZMQ socket created through it. Process setup code
// creates one and passes it to whatever needs ZMQ sockets; Close tears all
// of them down.
type ZmqContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	sockets map[*ZmqConn]struct{}
	closed  bool
}

func NewZmqContext(parent context.Context) *ZmqContext {
	ctx, cancel := context.WithCancel(parent)
	return &ZmqContext{ctx: ctx, cancel: cancel, sockets: make(map[*ZmqConn]struct{})}
}

// Close closes every socket still open and refuses new ones.
func (z *ZmqContext) Close() error {
	z.mu.Lock()
	if z.closed {
		z.mu.Unlock()
		return nil
	}
	z.closed = true
	open := make([]*ZmqConn, 0, len(z.sockets))
	for c := range z.sockets {
		open = append(open, c)
	}
	z.mu.Unlock()

	var errs []error
	for _, c := range open {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	z.cancel()
	return errors.Join(errs...)
}

func (z *ZmqContext) track(c *ZmqConn) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return ErrZmqContextClosed
	}
	z.sockets[c] = struct{}{}
	return nil
}

func (z *ZmqContext) forget(c *ZmqConn) {
	z.mu.Lock()
	delete(z.sockets, c)
	z.mu.Unlock()
}

// Open returns the number of sockets still owned by the context.
func (z *ZmqContext) Open() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return len(z.sockets)
}

// RoutedFrame is a message travelling over a router based bus. Hop is the
// identity of the directly connected peer the frame came from or goes to;
// Src and Dst are the end-to-end identities.
type RoutedFrame struct {
	Hop []byte
	Src []byte
	Dst []byte
	Msg []byte
}

// ZmqConn is a ZMQ socket used as a Duplex.
type ZmqConn struct {
	zctx     *ZmqContext
	sock     zmq4.Socket
	api      addr.ZmqAPI
	bound    bool
	endpoint string
	identity []byte
	peer     []byte
	timeouts Timeouts

	rmu sync.Mutex
	wmu sync.Mutex

	hopMu   sync.Mutex
	lastHop []byte

	closeOnce sync.Once
	closeErr  error
}

// ZmqOption adjusts a socket before it connects or binds.
type ZmqOption func(*ZmqConn)

// WithIdentity sets the bus identity of the local socket.
func WithIdentity(id []byte) ZmqOption {
	return func(c *ZmqConn) { c.identity = id }
}

// WithPeerIdentity sets the default destination used by SendRaw on a bus.
func WithPeerIdentity(id []byte) ZmqOption {
	return func(c *ZmqConn) { c.peer = id }
}

// WithZmqTimeouts bounds connection setup, reads and sends.
func WithZmqTimeouts(t Timeouts) ZmqOption {
	return func(c *ZmqConn) { c.timeouts = t }
}

// newSocket picks the socket pattern for api. Connecting and binding sides
// of an api use matching patterns.
func (z *ZmqContext) newSocket(api addr.ZmqAPI, bind bool, c *ZmqConn) (zmq4.Socket, error) {
	opts := []zmq4.Option{}
	if len(c.identity) > 0 {
		opts = append(opts, zmq4.WithID(zmq4.SocketIdentity(c.identity)))
	}
	if c.timeouts.Connect > 0 {
		opts = append(opts, zmq4.WithDialerTimeout(c.timeouts.Connect))
	}
	if c.timeouts.Write > 0 {
		opts = append(opts, zmq4.WithTimeout(c.timeouts.Write))
	}
	switch api {
	case addr.ZmqRPC:
		if bind {
			return zmq4.NewRep(z.ctx, opts...), nil
		}
		return zmq4.NewReq(z.ctx, opts...), nil
	case addr.ZmqP2P:
		return zmq4.NewPair(z.ctx, opts...), nil
	case addr.ZmqSub:
		if bind {
			return zmq4.NewPub(z.ctx, opts...), nil
		}
		return zmq4.NewSub(z.ctx, opts...), nil
	case addr.ZmqESB:
		if bind {
			return zmq4.NewRouter(z.ctx, opts...), nil
		}
		return zmq4.NewDealer(z.ctx, opts...), nil
	default:
		return nil, fmt.Errorf("%w: zmq api %s", ErrUnsupportedTransport, api)
	}
}

func (z *ZmqContext) open(api addr.ZmqAPI, endpoint string, bind bool, opts []ZmqOption) (*ZmqConn, error) {
	c := &ZmqConn{zctx: z, api: api, bound: bind, endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	if err := z.track(c); err != nil {
		return nil, err
	}
	sock, err := z.newSocket(api, bind, c)
	if err != nil {
		z.forget(c)
		return nil, err
	}
	c.sock = sock

	if bind {
		err = sock.Listen(endpoint)
	} else {
		err = sock.Dial(endpoint)
	}
	if err == nil && api == addr.ZmqSub && !bind {
		err = sock.SetOption(zmq4.OptionSubscribe, "")
	}
	if err != nil {
		_ = sock.Close()
		z.forget(c)
		return nil, mapErr(err)
	}
	log.Debug().Str("endpoint", endpoint).Stringer("api", api).Bool("bind", bind).Msg("zmq socket open")
	return c, nil
}

// Connect dials a ZMQ endpoint such as tcp://127.0.0.1:6000.
func (z *ZmqContext) Connect(api addr.ZmqAPI, endpoint string, opts ...ZmqOption) (*ZmqConn, error) {
	return z.open(api, endpoint, false, opts)
}

// Bind listens on a ZMQ endpoint.
func (z *ZmqContext) Bind(api addr.ZmqAPI, endpoint string, opts ...ZmqOption) (*ZmqConn, error) {
	return z.open(api, endpoint, true, opts)
}

func (c *ZmqConn) SendRaw(b []byte) error {
	if len(b) > protocol.MaxMsgLen {
		return fmt.Errorf("%w: %d", frame.ErrFrameTooLarge, len(b))
	}
	if c.api == addr.ZmqESB {
		c.hopMu.Lock()
		hop := c.lastHop
		c.hopMu.Unlock()
		return c.SendRouted(RoutedFrame{Hop: hop, Src: c.identity, Dst: c.peer, Msg: b})
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return mapErr(c.sock.Send(zmq4.NewMsg(b)))
}

func (c *ZmqConn) RecvRaw() ([]byte, error) {
	if c.api == addr.ZmqESB {
		f, err := c.RecvRouted()
		if err != nil {
			return nil, err
		}
		return f.Msg, nil
	}
	msg, err := c.recv()
	if err != nil {
		return nil, err
	}
	if len(msg.Frames) != 1 {
		return nil, fmt.Errorf("transport: expected single part zmq message, got %d parts", len(msg.Frames))
	}
	return msg.Frames[0], nil
}

// SendRouted sends a frame over a bus socket. A bound router addresses
// f.Hop; a connecting socket always sends to the router it is attached to.
func (c *ZmqConn) SendRouted(f RoutedFrame) error {
	if c.api != addr.ZmqESB {
		return fmt.Errorf("%w: routed frames need the esb api", ErrUnsupportedTransport)
	}
	frames := [][]byte{f.Src, f.Dst, f.Msg}
	if c.bound {
		if len(f.Hop) == 0 {
			return errNoRouteHop
		}
		frames = append([][]byte{f.Hop}, frames...)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return mapErr(c.sock.SendMulti(zmq4.NewMsgFrom(frames...)))
}

// RecvRouted receives a bus frame. On a bound router the sending peer is
// remembered so SendRaw can answer it.
func (c *ZmqConn) RecvRouted() (RoutedFrame, error) {
	if c.api != addr.ZmqESB {
		return RoutedFrame{}, fmt.Errorf("%w: routed frames need the esb api", ErrUnsupportedTransport)
	}
	msg, err := c.recv()
	if err != nil {
		return RoutedFrame{}, err
	}
	parts := msg.Frames
	var hop []byte
	if c.bound {
		if len(parts) != 4 {
			return RoutedFrame{}, fmt.Errorf("%w: %d parts", errMalformedRouted, len(parts))
		}
		hop, parts = parts[0], parts[1:]
		c.hopMu.Lock()
		c.lastHop = hop
		c.hopMu.Unlock()
	} else if len(parts) != 3 {
		return RoutedFrame{}, fmt.Errorf("%w: %d parts", errMalformedRouted, len(parts))
	}
	return RoutedFrame{Hop: hop, Src: parts[0], Dst: parts[1], Msg: parts[2]}, nil
}

type zmqResult struct {
	msg zmq4.Msg
	err error
}

// recv honors the read timeout by closing the socket when it expires; the
// pending Recv then returns and the connection is finished. zmq4 has no
// receive deadline, so a timed read costs one goroutine that ends with
// that Recv. rmu keeps it to one per connection.
func (c *ZmqConn) recv() (zmq4.Msg, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.timeouts.Read <= 0 {
		msg, err := c.sock.Recv()
		return msg, mapErr(err)
	}
	ch := make(chan zmqResult, 1)
	go func() {
		msg, err := c.sock.Recv()
		ch <- zmqResult{msg: msg, err: err}
	}()
	t := time.NewTimer(c.timeouts.Read)
	defer t.Stop()
	select {
	case r := <-ch:
		return r.msg, mapErr(r.err)
	case <-t.C:
		_ = c.Close()
		return zmq4.Msg{}, fmt.Errorf("%w: zmq read after %s", ErrTimeout, c.timeouts.Read)
	}
}

func (c *ZmqConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sock.Close()
		c.zctx.forget(c)
	})
	return c.closeErr
}

func (*ZmqConn) Kind() Kind { return KindZMQ }

func (c *ZmqConn) RemoteAddr() string { return c.endpoint }

// API returns the socket pattern of the connection.
func (c *ZmqConn) API() addr.ZmqAPI { return c.api }

func (*ZmqConn) duplex() {}

// zmqListener hands out its bound socket once; ZMQ multiplexes peers on
// that socket itself.
type zmqListener struct {
	conn   *ZmqConn
	mu     sync.Mutex
	handed bool
}

// ListenZmq binds a socket and wraps it as a Listener.
func ListenZmq(z *ZmqContext, api addr.ZmqAPI, endpoint string, opts ...ZmqOption) (Listener, error) {
	c, err := z.Bind(api, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return &zmqListener{conn: c}, nil
}

func (l *zmqListener) Accept(ctx context.Context) (Duplex, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, mapErr(err)
	}
	if l.handed {
		return nil, fmt.Errorf("%w: zmq listener yields a single bound socket", ErrClosed)
	}
	l.handed = true
	return l.conn, nil
}

// Close releases the bound socket unless Accept already handed it out.
func (l *zmqListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handed {
		return nil
	}
	l.handed = true
	return l.conn.Close()
}

func (l *zmqListener) Addr() string { return l.conn.endpoint }
