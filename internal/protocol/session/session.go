package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/observability"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/transcoder"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// link is the transport shared by a session and its halves.
type link struct {
	id      string
	conn    transport.Duplex
	kind    string
	refs    atomic.Int32
	onClose func()

	mu     sync.Mutex
	closed bool
	cause  error
}

func (l *link) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		return nil
	}
	switch {
	case l.cause == nil:
		return ErrConnectionClosed
	case errors.Is(l.cause, ErrConnectionClosed):
		return l.cause
	default:
		return fmt.Errorf("%w: %w", ErrConnectionClosed, l.cause)
	}
}

// shutdown closes the transport once. cause is nil for a local close.
func (l *link) shutdown(cause error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.cause = cause
	l.mu.Unlock()

	err := l.conn.Close()
	observability.RecordSessionClosed(l.kind, closeReason(cause))
	if l.onClose != nil {
		l.onClose()
	}
	event := log.Debug()
	if cause != nil {
		event = log.Warn().Err(cause)
	}
	event.Str("session", l.id).Str("kind", l.kind).Msg("session closed")
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

func (l *link) release() error {
	if l.refs.Add(-1) > 0 {
		return nil
	}
	return l.shutdown(nil)
}

// fail closes the link after a transport error and returns what the caller
// sees. A link already closed locally reports ErrConnectionClosed.
func (l *link) fail(err error) error {
	if closed := l.err(); closed != nil {
		return closed
	}
	err = classify(err)
	_ = l.shutdown(err)
	return err
}

func (l *link) send(enc transcoder.Encryptor, p []byte) error {
	if err := l.err(); err != nil {
		return err
	}
	frame, err := enc.Encrypt(p)
	if err != nil {
		if transcoder.IsFatal(err) {
			_ = l.shutdown(err)
		}
		return err
	}
	if err := l.conn.SendRaw(frame); err != nil {
		return l.fail(err)
	}
	observability.RecordFrame(l.kind, observability.DirectionSend, len(p))
	return nil
}

func (l *link) recv(dec transcoder.Decryptor) ([]byte, error) {
	if err := l.err(); err != nil {
		return nil, err
	}
	frame, err := l.conn.RecvRaw()
	if err != nil {
		return nil, l.fail(err)
	}
	p, err := dec.Decrypt(frame)
	if err != nil {
		if transcoder.IsFatal(err) {
			_ = l.shutdown(err)
		}
		return nil, err
	}
	observability.RecordFrame(l.kind, observability.DirectionRecv, len(p))
	return p, nil
}

// Session is an established channel to one peer.
type Session struct {
	id       uuid.UUID
	link     *link
	tc       transcoder.Transcoder
	remote   *btcec.PublicKey
	openedAt time.Time

	mu    sync.Mutex
	split bool
}

// newSession takes ownership of conn. remote is nil for Plain sessions.
func newSession(conn transport.Duplex, tc transcoder.Transcoder, remote *btcec.PublicKey, tracker *Tracker) *Session {
	id := uuid.New()
	l := &link{id: id.String(), conn: conn, kind: string(conn.Kind())}
	l.refs.Store(1)
	s := &Session{
		id:       id,
		link:     l,
		tc:       tc,
		remote:   remote,
		openedAt: time.Now(),
	}
	if tracker != nil {
		tracker.Upsert(s.Info())
		l.onClose = func() { tracker.Remove(l.id) }
	}
	log.Debug().
		Str("session", l.id).
		Str("kind", l.kind).
		Str("transcoder", tc.Name()).
		Str("remote", conn.RemoteAddr()).
		Msg("session established")
	return s
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) Kind() transport.Kind { return s.link.conn.Kind() }

// RemoteNodeID is the authenticated peer key, or nil on Plain sessions.
func (s *Session) RemoteNodeID() *btcec.PublicKey { return s.remote }

func (s *Session) RemoteAddr() string { return s.link.conn.RemoteAddr() }

func (s *Session) Transcoder() string { return s.tc.Name() }

func (s *Session) State() transcoder.HandshakeState {
	if s.link.err() != nil {
		return transcoder.StateClosed
	}
	return transcoder.StateEstablished
}

func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:        s.ID(),
		Kind:      s.link.kind,
		Transcode: s.tc.Name(),
		Remote:    s.RemoteAddr(),
		OpenedAt:  s.openedAt,
	}
	if s.remote != nil {
		info.NodeID = addr.NodeIDHex(s.remote)
	}
	return info
}

func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.split {
		return ErrSessionSplit
	}
	return nil
}

// Send seals and writes one frame.
func (s *Session) Send(p []byte) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.link.send(s.tc, p)
}

// Recv reads and opens one frame.
func (s *Session) Recv() ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.link.recv(s.tc)
}

func (s *Session) SendMessage(reg *payload.Registry, m payload.Message) error {
	env, err := reg.Marshal(m)
	if err != nil {
		return err
	}
	return s.Send(env)
}

// RecvMessage reads one frame and dispatches it through reg. Decode errors
// are returned without closing the session.
func (s *Session) RecvMessage(reg *payload.Registry) (payload.Message, error) {
	env, err := s.Recv()
	if err != nil {
		return nil, err
	}
	return reg.Unmarshal(env)
}

// Split hands each direction to its own owner. The session itself refuses
// Send and Recv afterwards; the transport closes when both halves are
// closed or either hits a fatal error.
func (s *Session) Split() (*SendHalf, *RecvHalf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.split {
		return nil, nil, ErrSessionSplit
	}
	if err := s.link.err(); err != nil {
		return nil, nil, err
	}
	s.split = true
	enc, dec := s.tc.Split()
	s.link.refs.Add(1)
	return &SendHalf{link: s.link, enc: enc}, &RecvHalf{link: s.link, dec: dec}, nil
}

// Close tears down the transport, including any halves handed out by
// Split.
func (s *Session) Close() error {
	return s.link.shutdown(nil)
}

// SendHalf owns the sending direction of a split session.
type SendHalf struct {
	link   *link
	enc    transcoder.Encryptor
	closed atomic.Bool
}

func (h *SendHalf) Send(p []byte) error {
	if h.closed.Load() {
		return ErrConnectionClosed
	}
	return h.link.send(h.enc, p)
}

func (h *SendHalf) SendMessage(reg *payload.Registry, m payload.Message) error {
	env, err := reg.Marshal(m)
	if err != nil {
		return err
	}
	return h.Send(env)
}

func (h *SendHalf) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.link.release()
}

// RecvHalf owns the receiving direction of a split session.
type RecvHalf struct {
	link   *link
	dec    transcoder.Decryptor
	closed atomic.Bool
}

func (h *RecvHalf) Recv() ([]byte, error) {
	if h.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return h.link.recv(h.dec)
}

func (h *RecvHalf) RecvMessage(reg *payload.Registry) (payload.Message, error) {
	env, err := h.Recv()
	if err != nil {
		return nil, err
	}
	return reg.Unmarshal(env)
}

func (h *RecvHalf) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.link.release()
}
