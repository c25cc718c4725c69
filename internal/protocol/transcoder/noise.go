package transcoder

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/protocol"
	"github.com/flynn/noise"
	"golang.org/x/crypto/chacha20poly1305"
)

// MaxPlaintext is the largest frame Noise accepts for sealing; the sealed
// frame including its tag still fits a transport frame.
const MaxPlaintext = protocol.MaxMsgLen - chacha20poly1305.Overhead

// NoiseEncryptor is the sending direction of an established Noise session.
type NoiseEncryptor struct {
	cipher noise.Cipher
	nonce  uint64
}

// Encrypt seals one frame and advances the nonce. Frames above MaxPlaintext
// are rejected, never fragmented. Once the counter reaches its last value
// every call fails with ErrNonceExhausted.
func (e *NoiseEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxPlaintext {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(plaintext), MaxPlaintext)
	}
	if e.nonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	out := e.cipher.Encrypt(make([]byte, 0, len(plaintext)+chacha20poly1305.Overhead), e.nonce, nil, plaintext)
	e.nonce++
	return out, nil
}

// Nonce returns the next nonce to be used.
func (e *NoiseEncryptor) Nonce() uint64 { return e.nonce }

// NoiseDecryptor is the receiving direction of an established Noise session.
type NoiseDecryptor struct {
	cipher noise.Cipher
	nonce  uint64
	failed bool
}

// Decrypt opens one frame. An authentication failure is terminal: every
// later call fails the same way.
func (d *NoiseDecryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if d.failed {
		return nil, ErrAuthenticationFailed
	}
	if d.nonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	if len(ciphertext) < chacha20poly1305.Overhead {
		d.failed = true
		return nil, fmt.Errorf("%w: frame shorter than tag", ErrAuthenticationFailed)
	}
	out, err := d.cipher.Decrypt(nil, d.nonce, nil, ciphertext)
	if err != nil {
		d.failed = true
		return nil, ErrAuthenticationFailed
	}
	d.nonce++
	return out, nil
}

func (d *NoiseDecryptor) Nonce() uint64 { return d.nonce }

// Noise is an established Noise transcoder. It is produced only by a
// completed handshake.
type Noise struct {
	enc    *NoiseEncryptor
	dec    *NoiseDecryptor
	remote *btcec.PublicKey
}

func newNoise(send, recv *noise.CipherState, remote *btcec.PublicKey) *Noise {
	return &Noise{
		enc:    &NoiseEncryptor{cipher: send.Cipher()},
		dec:    &NoiseDecryptor{cipher: recv.Cipher()},
		remote: remote,
	}
}

func (n *Noise) Encrypt(plaintext []byte) ([]byte, error) {
	return n.enc.Encrypt(plaintext)
}

func (n *Noise) Decrypt(ciphertext []byte) ([]byte, error) {
	return n.dec.Decrypt(ciphertext)
}

func (n *Noise) Split() (Encryptor, Decryptor) {
	return n.enc, n.dec
}

// RemoteStatic is the authenticated static key of the peer.
func (n *Noise) RemoteStatic() *btcec.PublicKey {
	return n.remote
}

func (n *Noise) Name() string { return "noise" }

func (*Noise) transcoder() {}
