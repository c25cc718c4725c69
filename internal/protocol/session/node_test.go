package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/message"
	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/transcoder"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
	"github.com/danmuck/lnpnet/internal/testutil/peertest"
	"github.com/danmuck/lnpnet/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testNode(t *testing.T, fill byte, opts ...Option) *Node {
	t.Helper()
	n, err := NewNode(&LocalNode{PrivateKey: peertest.Key(fill)}, DefaultConfig(), opts...)
	require.NoError(t, err)
	return n
}

// noisePair runs a handshake over an in-memory pipe.
func noisePair(t *testing.T) (*Session, *Session) {
	t.Helper()
	a, b := transport.Pipe()
	na, nb := testNode(t, 0x11), testNode(t, 0x22)

	var sa, sb *Session
	var g errgroup.Group
	g.Go(func() (err error) {
		sa, err = na.secure(context.Background(), a, nb.Local().NodeID())
		return err
	})
	g.Go(func() (err error) {
		sb, err = nb.secure(context.Background(), b, nil)
		return err
	})
	require.NoError(t, g.Wait())
	return sa, sb
}

func roundTrip(t *testing.T, a, b *Session) {
	t.Helper()
	reg := message.NewControlRegistry()
	require.NoError(t, a.SendMessage(reg, message.Ping{NumPongBytes: 3}))
	got, err := b.RecvMessage(reg)
	require.NoError(t, err)
	ping, ok := got.(*message.Ping)
	require.True(t, ok, "got %T", got)

	pong, err := ping.Reply()
	require.NoError(t, err)
	require.NoError(t, b.SendMessage(reg, pong))
	got, err = a.RecvMessage(reg)
	require.NoError(t, err)
	require.Equal(t, &message.Pong{Ignored: []byte{0, 0, 0}}, got)
}

func TestPlainSessionOverPipe(t *testing.T) {
	testlog.Start(t)

	a, b := transport.Pipe()
	tr := NewTracker()
	sa := newSession(a, transcoder.Plain{}, nil, tr)
	sb := newSession(b, transcoder.Plain{}, nil, tr)
	require.Equal(t, 2, tr.Len())
	require.Equal(t, transport.KindPipe, sa.Kind())
	require.Nil(t, sa.RemoteNodeID())
	require.Equal(t, "plain", sa.Transcoder())

	roundTrip(t, sa, sb)

	require.NoError(t, sa.Close())
	require.NoError(t, sa.Close())
	require.Equal(t, transcoder.StateClosed, sa.State())
	require.ErrorIs(t, sa.Send([]byte{1}), ErrConnectionClosed)

	_, err := sb.Recv()
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.Equal(t, transcoder.StateClosed, sb.State())
	require.Zero(t, tr.Len())
}

func TestNoiseSessionOverPipe(t *testing.T) {
	testlog.Start(t)

	sa, sb := noisePair(t)
	require.Equal(t, transcoder.StateEstablished, sa.State())
	require.True(t, sa.RemoteNodeID().IsEqual(peertest.Key(0x22).PubKey()))
	require.True(t, sb.RemoteNodeID().IsEqual(peertest.Key(0x11).PubKey()))
	require.Equal(t, "noise", sb.Info().Transcode)
	require.NotEmpty(t, sb.Info().NodeID)

	roundTrip(t, sa, sb)
	require.NoError(t, sa.Close())
}

func TestDecodeErrorLeavesSessionOpen(t *testing.T) {
	testlog.Start(t)

	sa, sb := noisePair(t)
	require.NoError(t, sa.Send([]byte{0xff, 0xff}))
	_, err := sb.RecvMessage(message.NewControlRegistry())
	require.ErrorIs(t, err, payload.ErrUnknownType)
	require.Equal(t, transcoder.StateEstablished, sb.State())

	roundTrip(t, sa, sb)
}

func TestAuthenticationFailureClosesSession(t *testing.T) {
	testlog.Start(t)

	sa, sb := noisePair(t)
	require.NoError(t, sa.link.conn.SendRaw(make([]byte, 40)))

	_, err := sb.Recv()
	require.ErrorIs(t, err, transcoder.ErrAuthenticationFailed)
	require.Equal(t, transcoder.StateClosed, sb.State())

	_, err = sb.Recv()
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, sb.Send([]byte("late")), ErrConnectionClosed)

	_, err = sa.Recv()
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestTransportTimeoutIsTerminal(t *testing.T) {
	testlog.Start(t)

	a, b := transport.Pipe()
	a.SetReadTimeout(20 * time.Millisecond)
	s := newSession(a, transcoder.Plain{}, nil, nil)

	_, err := s.Recv()
	require.ErrorIs(t, err, ErrTransportTimeout)
	require.ErrorIs(t, err, transport.ErrTimeout)
	require.Equal(t, transcoder.StateClosed, s.State())
	require.ErrorIs(t, s.Send([]byte("x")), ErrConnectionClosed)

	_, err = b.RecvRaw()
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestOversizedSendIsNotFatal(t *testing.T) {
	testlog.Start(t)

	sa, sb := noisePair(t)
	require.ErrorIs(t, sa.Send(make([]byte, transcoder.MaxPlaintext+1)), transcoder.ErrFrameTooLarge)
	require.Equal(t, transcoder.StateEstablished, sa.State())
	roundTrip(t, sa, sb)
}

func TestSplitHalvesRunConcurrently(t *testing.T) {
	testlog.Start(t)

	sa, sb := noisePair(t)
	send, recv, err := sa.Split()
	require.NoError(t, err)

	require.ErrorIs(t, sa.Send([]byte("x")), ErrSessionSplit)
	_, err = sa.Recv()
	require.ErrorIs(t, err, ErrSessionSplit)
	_, _, err = sa.Split()
	require.ErrorIs(t, err, ErrSessionSplit)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			p, err := sb.Recv()
			if err != nil {
				return
			}
			if err := sb.Send(p); err != nil {
				return
			}
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < n; i++ {
			if err := send.Send([]byte{byte(i)}); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < n; i++ {
			p, err := recv.Recv()
			if err != nil {
				return err
			}
			if p[0] != byte(i) {
				t.Errorf("echo %d out of order: %d", i, p[0])
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	wg.Wait()

	require.NoError(t, send.Close())
	require.ErrorIs(t, send.Send([]byte("x")), ErrConnectionClosed)
	require.Equal(t, transcoder.StateEstablished, sa.State())

	require.NoError(t, sb.Send([]byte("last")))
	p, err := recv.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("last"), p)

	require.NoError(t, recv.Close())
	require.Equal(t, transcoder.StateClosed, sa.State())
	_, err = sb.Recv()
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnectAcceptFramedTCP(t *testing.T) {
	testlog.Start(t)

	server, client := testNode(t, 0x11), testNode(t, 0x22)
	target := peertest.RemoteAddr(addr.ProtoFTCP, server.Local().PrivateKey, peertest.FreeTCPAddr(t))
	ln, err := server.Listen(context.Background(), target)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var accepted, dialed *Session
	var g errgroup.Group
	g.Go(func() (err error) {
		accepted, err = ln.Accept(ctx)
		return err
	})
	g.Go(func() (err error) {
		dialed, err = client.Connect(ctx, target)
		return err
	})
	require.NoError(t, g.Wait())
	defer dialed.Close()
	defer accepted.Close()

	require.Equal(t, transport.KindFTCP, dialed.Kind())
	require.True(t, accepted.RemoteNodeID().IsEqual(client.Local().NodeID()))
	roundTrip(t, dialed, accepted)
}

func TestAcceptConnLeavesHandshakeToEstablish(t *testing.T) {
	testlog.Start(t)

	server, client := testNode(t, 0x11), testNode(t, 0x22)
	target := peertest.RemoteAddr(addr.ProtoFTCP, server.Local().PrivateKey, peertest.FreeTCPAddr(t))
	ln, err := server.Listen(context.Background(), target)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	silent, err := net.Dial("tcp", ln.Addr())
	require.NoError(t, err)
	defer silent.Close()
	idle, err := ln.AcceptConn(ctx)
	require.NoError(t, err)
	defer idle.Close()

	var accepted, dialed *Session
	var g errgroup.Group
	g.Go(func() error {
		conn, err := ln.AcceptConn(ctx)
		if err != nil {
			return err
		}
		accepted, err = ln.Establish(ctx, conn)
		return err
	})
	g.Go(func() (err error) {
		dialed, err = client.Connect(ctx, target)
		return err
	})
	require.NoError(t, g.Wait())
	defer dialed.Close()
	defer accepted.Close()

	require.True(t, accepted.RemoteNodeID().IsEqual(client.Local().NodeID()))
	roundTrip(t, dialed, accepted)
}

func TestConnectAcceptWebSocket(t *testing.T) {
	testlog.Start(t)

	server, client := testNode(t, 0x11), testNode(t, 0x22)
	target := peertest.RemoteAddr(addr.ProtoWebSocket, server.Local().PrivateKey, peertest.FreeTCPAddr(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ln, err := server.Listen(ctx, target)
	require.NoError(t, err)
	defer ln.Close()

	var accepted, dialed *Session
	var g errgroup.Group
	g.Go(func() (err error) {
		accepted, err = ln.Accept(ctx)
		return err
	})
	g.Go(func() (err error) {
		dialed, err = client.Connect(ctx, target)
		return err
	})
	require.NoError(t, g.Wait())
	defer dialed.Close()
	defer accepted.Close()

	require.Equal(t, transport.KindWebSocket, accepted.Kind())
	roundTrip(t, accepted, dialed)
}

func TestConnectWrongNodeIDFailsHandshake(t *testing.T) {
	testlog.Start(t)

	server, client := testNode(t, 0x11), testNode(t, 0x22)
	ap := peertest.FreeTCPAddr(t)
	ln, err := server.Listen(context.Background(), peertest.RemoteAddr(addr.ProtoFTCP, server.Local().PrivateKey, ap))
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acceptErr := make(chan error, 1)
	go func() {
		_, err := ln.Accept(ctx)
		acceptErr <- err
	}()

	_, err = client.Connect(ctx, peertest.RemoteAddr(addr.ProtoFTCP, peertest.Key(0x33), ap))
	require.ErrorIs(t, err, transcoder.ErrHandshakeFailed)
	require.ErrorIs(t, <-acceptErr, transcoder.ErrHandshakeFailed)
}

func TestHandshakeTimeoutClosesConnection(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	server, err := NewNode(&LocalNode{PrivateKey: peertest.Key(0x11)}, cfg)
	require.NoError(t, err)
	ln, err := server.Listen(context.Background(), peertest.RemoteAddr(addr.ProtoFTCP, peertest.Key(0x11), peertest.FreeTCPAddr(t)))
	require.NoError(t, err)
	defer ln.Close()

	raw, err := net.Dial("tcp", ln.Addr())
	require.NoError(t, err)
	defer raw.Close()

	_, err = ln.Accept(context.Background())
	require.ErrorIs(t, err, transcoder.ErrHandshakeFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectAcceptPosix(t *testing.T) {
	testlog.Start(t)

	server, client := testNode(t, 0x11), testNode(t, 0x22)
	target := addr.PosixSocketAddr{Path: peertest.SocketPath(t, "node.sock")}
	ln, err := server.Listen(context.Background(), target)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var accepted, dialed *Session
	var g errgroup.Group
	g.Go(func() (err error) {
		accepted, err = ln.Accept(ctx)
		return err
	})
	g.Go(func() (err error) {
		dialed, err = client.Connect(ctx, target)
		return err
	})
	require.NoError(t, g.Wait())
	defer dialed.Close()
	defer accepted.Close()

	require.Equal(t, "plain", dialed.Transcoder())
	roundTrip(t, dialed, accepted)
}

func TestConnectAcceptZmqRPC(t *testing.T) {
	testlog.Start(t)

	zctx := transport.NewZmqContext(context.Background())
	defer zctx.Close()
	server := testNode(t, 0x11, WithZmqContext(zctx))
	client := testNode(t, 0x22, WithZmqContext(zctx))
	target := addr.ZmqSocketAddr{API: addr.ZmqRPC, Endpoint: "inproc://session-rpc"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ln, err := server.Listen(ctx, target)
	require.NoError(t, err)
	dialed, err := client.Connect(ctx, target)
	require.NoError(t, err)
	defer dialed.Close()
	accepted, err := ln.Accept(ctx)
	require.NoError(t, err)
	defer accepted.Close()

	require.Equal(t, transport.KindZMQ, accepted.Kind())
	roundTrip(t, dialed, accepted)
}

func TestUnsupportedAndMisconfiguredTargets(t *testing.T) {
	testlog.Start(t)

	n := testNode(t, 0x11)
	ctx := context.Background()
	httpAddr := peertest.RemoteAddr(addr.ProtoHTTP, peertest.Key(0x22), peertest.FreeTCPAddr(t))

	_, err := n.Connect(ctx, httpAddr)
	require.ErrorIs(t, err, transport.ErrUnsupportedTransport)
	_, err = n.Accept(ctx, httpAddr)
	require.ErrorIs(t, err, transport.ErrUnsupportedTransport)

	_, err = n.Connect(ctx, addr.ZmqSocketAddr{API: addr.ZmqP2P, Endpoint: "inproc://nowhere"})
	require.ErrorIs(t, err, ErrZmqContextRequired)

	_, err = NewNode(nil, DefaultConfig())
	require.ErrorIs(t, err, ErrIdentityRequired)
}
