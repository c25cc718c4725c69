package session

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/observability"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/transcoder"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
	"github.com/rs/zerolog/log"
)

// Node connects and accepts sessions on behalf of one local identity.
type Node struct {
	local   *LocalNode
	cfg     Config
	zmq     *transport.ZmqContext
	tracker *Tracker
}

type Option func(*Node)

// WithZmqContext supplies the context ZMQ addresses are opened in. Without
// it ZMQ addresses fail with ErrZmqContextRequired.
func WithZmqContext(z *transport.ZmqContext) Option {
	return func(n *Node) { n.zmq = z }
}

// WithTracker records every session the node opens until it closes.
func WithTracker(t *Tracker) Option {
	return func(n *Node) { n.tracker = t }
}

func NewNode(local *LocalNode, cfg Config, opts ...Option) (*Node, error) {
	if local == nil || local.PrivateKey == nil {
		return nil, ErrIdentityRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Node{local: local, cfg: cfg}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Node) Local() *LocalNode { return n.local }

func (n *Node) Config() Config { return n.cfg }

// Tracker is nil unless the node was built WithTracker.
func (n *Node) Tracker() *Tracker { return n.tracker }

func (n *Node) check(target addr.NodeAddr) error {
	if target == nil {
		return fmt.Errorf("%w: nil address", transport.ErrUnsupportedTransport)
	}
	if err := transport.CheckSupported(target.Proto()); err != nil {
		return err
	}
	if target.Proto() == addr.ProtoZMQ && n.zmq == nil {
		return ErrZmqContextRequired
	}
	return n.cfg.ValidateTarget(target)
}

func (n *Node) zmqOptions(peer *btcec.PublicKey) []transport.ZmqOption {
	opts := []transport.ZmqOption{
		transport.WithIdentity(n.local.NodeID().SerializeCompressed()),
		transport.WithZmqTimeouts(n.cfg.Timeouts()),
	}
	if peer != nil {
		opts = append(opts, transport.WithPeerIdentity(peer.SerializeCompressed()))
	}
	return opts
}

// Connect dials target. Remote stream and WebSocket targets are
// authenticated against the node id in the address before Connect returns.
func (n *Node) Connect(ctx context.Context, target addr.NodeAddr) (*Session, error) {
	if err := n.check(target); err != nil {
		return nil, err
	}
	timeouts := n.cfg.Timeouts()

	switch a := target.(type) {
	case addr.RemoteNodeAddr:
		switch a.Remote.Proto {
		case addr.ProtoFTCP:
			conn, err := transport.DialStream(ctx, transport.KindFTCP, a.Remote.Addr.String(), timeouts)
			if err != nil {
				return nil, classify(err)
			}
			return n.secure(ctx, conn, a.NodeID)
		case addr.ProtoWebSocket:
			conn, err := transport.DialWebSocket(ctx, a.Remote.Addr, timeouts)
			if err != nil {
				return nil, classify(err)
			}
			return n.secure(ctx, conn, a.NodeID)
		case addr.ProtoZMQ:
			conn, err := n.zmq.Connect(a.Remote.API, "tcp://"+a.Remote.Addr.String(), n.zmqOptions(a.NodeID)...)
			if err != nil {
				return nil, classify(err)
			}
			return newSession(conn, transcoder.Plain{}, a.NodeID, n.tracker), nil
		}
	case addr.ZmqSocketAddr:
		conn, err := n.zmq.Connect(a.API, a.Endpoint, n.zmqOptions(nil)...)
		if err != nil {
			return nil, classify(err)
		}
		return newSession(conn, transcoder.Plain{}, nil, n.tracker), nil
	case addr.PosixSocketAddr:
		conn, err := transport.DialStream(ctx, transport.KindPosix, a.Path, timeouts)
		if err != nil {
			return nil, classify(err)
		}
		return newSession(conn, transcoder.Plain{}, nil, n.tracker), nil
	}
	return nil, fmt.Errorf("%w: %s", transport.ErrUnsupportedTransport, target)
}

// Accept binds, accepts a single session and releases the binding.
func (n *Node) Accept(ctx context.Context, bind addr.NodeAddr) (*Session, error) {
	l, err := n.Listen(ctx, bind)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Accept(ctx)
}

// Listener accepts sessions on one bound address.
type Listener struct {
	node    *Node
	ln      transport.Listener
	bind    addr.NodeAddr
	encrypt bool
}

// Listen binds to a. For remote addresses the node id part is ignored;
// peers authenticate against this node's own key.
func (n *Node) Listen(_ context.Context, a addr.NodeAddr) (*Listener, error) {
	if err := n.check(a); err != nil {
		return nil, err
	}
	timeouts := n.cfg.Timeouts()

	var (
		ln  transport.Listener
		err error
	)
	switch a := a.(type) {
	case addr.RemoteNodeAddr:
		switch a.Remote.Proto {
		case addr.ProtoFTCP:
			ln, err = transport.ListenStream(transport.KindFTCP, a.Remote.Addr.String(), timeouts)
		case addr.ProtoWebSocket:
			ln, err = transport.ListenWebSocket(a.Remote.Addr.String(), timeouts)
		case addr.ProtoZMQ:
			ln, err = transport.ListenZmq(n.zmq, a.Remote.API, "tcp://"+a.Remote.Addr.String(), n.zmqOptions(nil)...)
		default:
			err = fmt.Errorf("%w: %s", transport.ErrUnsupportedTransport, a.Remote.Proto)
		}
	case addr.ZmqSocketAddr:
		ln, err = transport.ListenZmq(n.zmq, a.API, a.Endpoint, n.zmqOptions(nil)...)
	case addr.PosixSocketAddr:
		ln, err = transport.ListenStream(transport.KindPosix, a.Path, timeouts)
	default:
		err = fmt.Errorf("%w: %s", transport.ErrUnsupportedTransport, a)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("bind", a.String()).Str("addr", ln.Addr()).Msg("session listener bound")
	return &Listener{node: n, ln: ln, bind: a, encrypt: Encrypted(a)}, nil
}

// Addr is the bound transport address, with any ephemeral port resolved.
func (l *Listener) Addr() string { return l.ln.Addr() }

// Bind is the address the listener was opened with.
func (l *Listener) Bind() addr.NodeAddr { return l.bind }

func (l *Listener) Close() error { return l.ln.Close() }

// AcceptConn waits for the next raw connection without securing it. Pair
// it with Establish to run handshakes off the accepting goroutine.
func (l *Listener) AcceptConn(ctx context.Context) (transport.Duplex, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return conn, nil
}

// Establish turns a connection from AcceptConn into a session. On
// encrypted addresses it runs the responder handshake; conn is closed if
// that fails.
func (l *Listener) Establish(ctx context.Context, conn transport.Duplex) (*Session, error) {
	if !l.encrypt {
		return newSession(conn, transcoder.Plain{}, nil, l.node.tracker), nil
	}
	return l.node.secure(ctx, conn, nil)
}

// Accept waits for the next peer. On encrypted addresses the responder
// handshake completes before Accept returns.
func (l *Listener) Accept(ctx context.Context) (*Session, error) {
	conn, err := l.AcceptConn(ctx)
	if err != nil {
		return nil, err
	}
	return l.Establish(ctx, conn)
}

// secure runs the Noise handshake over conn, as initiator when remote is
// set. conn is closed on any failure. The handshake is bounded by
// HandshakeTimeout and by ctx; either closes conn under it.
func (n *Node) secure(ctx context.Context, conn transport.Duplex, remote *btcec.PublicKey) (*Session, error) {
	if n.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.HandshakeTimeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	role := transcoder.RoleResponder
	if remote != nil {
		role = transcoder.RoleInitiator
	}
	hs := transcoder.NewHandshaker(n.local.PrivateKey)
	started := time.Now()
	var (
		tc  *transcoder.Noise
		err error
	)
	if remote != nil {
		tc, err = hs.Initiate(conn, remote)
	} else {
		tc, err = hs.Respond(conn)
	}
	if !stop() && err == nil {
		err = fmt.Errorf("%w: interrupted", transcoder.ErrHandshakeFailed)
	}
	observability.RecordHandshake(string(role), time.Since(started), err)
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
		log.Warn().Str("role", string(role)).Str("remote", conn.RemoteAddr()).Err(err).Msg("handshake failed")
		return nil, err
	}
	return newSession(conn, tc, tc.RemoteStatic(), n.tracker), nil
}

// Open wraps an already connected local duplex, such as one end of
// transport.Pipe, in a Plain session.
func (n *Node) Open(conn transport.Duplex) *Session {
	return newSession(conn, transcoder.Plain{}, nil, n.tracker)
}
