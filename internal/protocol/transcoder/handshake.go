package transcoder

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/flynn/noise"
	"github.com/rs/zerolog/log"
)

// Prologue is mixed into every handshake so peers of a different protocol
// fail at the first message.
var Prologue = []byte("lnpnet/noise/v1")

// FrameConn carries whole handshake messages. Transports satisfy it.
type FrameConn interface {
	SendRaw(frame []byte) error
	RecvRaw() ([]byte, error)
}

// HandshakeState tracks the progress of one handshake.
type HandshakeState int

const (
	StateIdle HandshakeState = iota
	StateHandshaking
	StateEstablished
	StateClosed
)

func (s HandshakeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("HandshakeState(%d)", int(s))
	}
}

// Role is the side a Handshaker plays.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

var errHandshakeUsed = errors.New("handshaker already used")

// Handshaker runs one Noise_XK handshake. It is single use.
type Handshaker struct {
	local *btcec.PrivateKey
	rng   io.Reader

	mu     sync.Mutex
	state  HandshakeState
	remote *btcec.PublicKey
}

type HandshakeOption func(*Handshaker)

// WithRandom replaces crypto/rand as the ephemeral key source.
func WithRandom(r io.Reader) HandshakeOption {
	return func(h *Handshaker) { h.rng = r }
}

func NewHandshaker(local *btcec.PrivateKey, opts ...HandshakeOption) *Handshaker {
	h := &Handshaker{local: local, rng: rand.Reader}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handshaker) State() HandshakeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// RemoteStatic returns the peer key once the handshake is established.
func (h *Handshaker) RemoteStatic() *btcec.PublicKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remote
}

func (h *Handshaker) begin() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateIdle {
		return fmt.Errorf("%w: %w (state %s)", ErrHandshakeFailed, errHandshakeUsed, h.state)
	}
	h.state = StateHandshaking
	return nil
}

func (h *Handshaker) finish(remote *btcec.PublicKey, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.state = StateClosed
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	h.state = StateEstablished
	h.remote = remote
	return nil
}

func (h *Handshaker) config(initiator bool, peer *btcec.PublicKey) noise.Config {
	cfg := noise.Config{
		CipherSuite: CipherSuite,
		Random:      h.rng,
		Pattern:     noise.HandshakeXK,
		Initiator:   initiator,
		Prologue:    Prologue,
		StaticKeypair: noise.DHKey{
			Private: h.local.Serialize(),
			Public:  h.local.PubKey().SerializeCompressed(),
		},
	}
	if peer != nil {
		cfg.PeerStatic = peer.SerializeCompressed()
	}
	return cfg
}

// Initiate runs the initiator side against a peer whose static key is
// known in advance. Any failure closes the handshaker; no partially
// established transcoder is ever returned.
func (h *Handshaker) Initiate(conn FrameConn, remote *btcec.PublicKey) (*Noise, error) {
	if err := h.begin(); err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, h.finish(nil, errors.New("remote static key required"))
	}
	started := time.Now()
	n, err := h.initiate(conn, remote)
	if err = h.finish(remote, err); err != nil {
		log.Debug().Str("role", string(RoleInitiator)).Err(err).Msg("noise handshake failed")
		return nil, err
	}
	log.Debug().Str("role", string(RoleInitiator)).Dur("elapsed", time.Since(started)).Msg("noise handshake established")
	return n, nil
}

func (h *Handshaker) initiate(conn FrameConn, remote *btcec.PublicKey) (*Noise, error) {
	hs, err := noise.NewHandshakeState(h.config(true, remote))
	if err != nil {
		return nil, err
	}
	// -> e, es
	act1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("act one: %w", err)
	}
	if err := conn.SendRaw(act1); err != nil {
		return nil, fmt.Errorf("act one: %w", err)
	}
	// <- e, ee
	act2, err := conn.RecvRaw()
	if err != nil {
		return nil, fmt.Errorf("act two: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, act2); err != nil {
		return nil, fmt.Errorf("act two: %w", err)
	}
	// -> s, se
	act3, send, recv, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("act three: %w", err)
	}
	if send == nil || recv == nil {
		return nil, errors.New("act three: handshake did not complete")
	}
	if err := conn.SendRaw(act3); err != nil {
		return nil, fmt.Errorf("act three: %w", err)
	}
	return newNoise(send, recv, remote), nil
}

// Respond runs the responder side. The initiator's static key is learned
// from the third act and exposed through RemoteStatic.
func (h *Handshaker) Respond(conn FrameConn) (*Noise, error) {
	if err := h.begin(); err != nil {
		return nil, err
	}
	started := time.Now()
	n, err := h.respond(conn)
	var remote *btcec.PublicKey
	if n != nil {
		remote = n.remote
	}
	if err = h.finish(remote, err); err != nil {
		log.Debug().Str("role", string(RoleResponder)).Err(err).Msg("noise handshake failed")
		return nil, err
	}
	log.Debug().Str("role", string(RoleResponder)).Dur("elapsed", time.Since(started)).Msg("noise handshake established")
	return n, nil
}

func (h *Handshaker) respond(conn FrameConn) (*Noise, error) {
	hs, err := noise.NewHandshakeState(h.config(false, nil))
	if err != nil {
		return nil, err
	}
	act1, err := conn.RecvRaw()
	if err != nil {
		return nil, fmt.Errorf("act one: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, act1); err != nil {
		return nil, fmt.Errorf("act one: %w", err)
	}
	act2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("act two: %w", err)
	}
	if err := conn.SendRaw(act2); err != nil {
		return nil, fmt.Errorf("act two: %w", err)
	}
	act3, err := conn.RecvRaw()
	if err != nil {
		return nil, fmt.Errorf("act three: %w", err)
	}
	_, recv, send, err := hs.ReadMessage(nil, act3)
	if err != nil {
		return nil, fmt.Errorf("act three: %w", err)
	}
	if send == nil || recv == nil {
		return nil, errors.New("act three: handshake did not complete")
	}
	remote, err := btcec.ParsePubKey(hs.PeerStatic())
	if err != nil {
		return nil, fmt.Errorf("act three: peer static key: %w", err)
	}
	return newNoise(send, recv, remote), nil
}
