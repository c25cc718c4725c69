// Package transcoder applies and removes frame confidentiality.
//
// Plain passes frames through untouched and must only be used on local or
// otherwise trusted channels. Noise authenticates the peer with a
// Noise_XK handshake over secp256k1 and then seals every frame with
// ChaCha20-Poly1305 under a per-direction nonce counter.
package transcoder

import (
	"errors"
	"fmt"

	"github.com/danmuck/lnpnet/internal/protocol"
)

var (
	ErrHandshakeFailed      = errors.New("transcoder: handshake failed")
	ErrAuthenticationFailed = errors.New("transcoder: frame authentication failed")
	ErrNonceExhausted       = errors.New("transcoder: nonce exhausted")
	ErrFrameTooLarge        = errors.New("transcoder: frame too large")
)

// Encryptor seals outgoing frames.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Decryptor opens incoming frames.
type Decryptor interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Transcoder is one of Plain or *Noise.
type Transcoder interface {
	Encryptor
	Decryptor
	// Split hands out the two directions for independent use. The
	// transcoder must not be used after Split.
	Split() (Encryptor, Decryptor)
	Name() string
	transcoder()
}

// Plain is the identity transcoder.
type Plain struct{}

func (Plain) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > protocol.MaxMsgLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(plaintext), protocol.MaxMsgLen)
	}
	return plaintext, nil
}

func (Plain) Decrypt(ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

func (Plain) Split() (Encryptor, Decryptor) {
	return Plain{}, Plain{}
}

func (Plain) Name() string { return "plain" }

func (Plain) transcoder() {}

// IsFatal reports whether err leaves the transcoder unusable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrNonceExhausted) ||
		errors.Is(err, ErrHandshakeFailed)
}
