package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol"
	"github.com/danmuck/lnpnet/internal/protocol/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketPath is the HTTP path peers upgrade on.
const WebSocketPath = "/lnp"

var errTextMessage = errors.New("transport: websocket text message")

// WSConn carries one frame per binary websocket message.
type WSConn struct {
	conn     *websocket.Conn
	timeouts Timeouts

	rmu sync.Mutex
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, timeouts Timeouts) *WSConn {
	conn.SetReadLimit(protocol.MaxMsgLen)
	return &WSConn{conn: conn, timeouts: timeouts}
}

func (c *WSConn) SendRaw(b []byte) error {
	if len(b) > protocol.MaxMsgLen {
		return fmt.Errorf("%w: %d", frame.ErrFrameTooLarge, len(b))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline(c.timeouts.Write)); err != nil {
		return mapErr(err)
	}
	return mapErr(c.conn.WriteMessage(websocket.BinaryMessage, b))
}

func (c *WSConn) RecvRaw() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if err := c.conn.SetReadDeadline(deadline(c.timeouts.Read)); err != nil {
		return nil, mapErr(err)
	}
	mt, b, err := c.conn.ReadMessage()
	if err != nil {
		return nil, mapErr(err)
	}
	if mt != websocket.BinaryMessage {
		return nil, errTextMessage
	}
	return b, nil
}

func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (*WSConn) Kind() Kind { return KindWebSocket }

func (c *WSConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (*WSConn) duplex() {}

// DialWebSocket connects to ws://<addr>/lnp.
func DialWebSocket(ctx context.Context, ap netip.AddrPort, timeouts Timeouts) (*WSConn, error) {
	d := websocket.Dialer{
		HandshakeTimeout: timeouts.Connect,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	conn, _, err := d.DialContext(ctx, "ws://"+ap.String()+WebSocketPath, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return newWSConn(conn, timeouts), nil
}

// WSListener serves websocket upgrades and hands each upgraded connection
// to Accept.
type WSListener struct {
	ln       net.Listener
	srv      *http.Server
	timeouts Timeouts
	conns    chan *WSConn
	done     chan struct{}
	once     sync.Once
}

func ListenWebSocket(address string, timeouts Timeouts) (*WSListener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	l := &WSListener{
		ln:       ln,
		timeouts: timeouts,
		conns:    make(chan *WSConn),
		done:     make(chan struct{}),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// peers authenticate in the noise handshake, not by origin
		CheckOrigin: func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		wc := newWSConn(conn, l.timeouts)
		select {
		case l.conns <- wc:
		case <-l.done:
			_ = wc.Close()
		}
	})
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", address).Msg("websocket listener stopped")
		}
	}()
	return l, nil
}

func (l *WSListener) Accept(ctx context.Context) (Duplex, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, mapErr(ctx.Err())
	}
}

// Close stops accepting. Connections already handed out stay open.
func (l *WSListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *WSListener) Addr() string { return l.ln.Addr().String() }
