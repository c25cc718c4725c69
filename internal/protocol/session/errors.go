package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/lnpnet/internal/protocol/transcoder"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
)

var (
	ErrTransportTimeout   = errors.New("session: transport timeout")
	ErrConnectionClosed   = errors.New("session: connection closed")
	ErrSessionSplit       = errors.New("session: session was split")
	ErrZmqContextRequired = errors.New("session: zmq context required")
	ErrEncryptionRequired = errors.New("session: encryption required")
	ErrIdentityRequired   = errors.New("session: local identity required")
)

// classify maps a transport failure to the session error it ends with.
func classify(err error) error {
	if errors.Is(err, ErrTransportTimeout) || errors.Is(err, ErrConnectionClosed) {
		return err
	}
	if errors.Is(err, transport.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
}

// closeReason labels a close cause for metrics.
func closeReason(cause error) string {
	switch {
	case cause == nil:
		return "local"
	case errors.Is(cause, ErrTransportTimeout):
		return "timeout"
	case errors.Is(cause, transcoder.ErrAuthenticationFailed):
		return "auth"
	case errors.Is(cause, transcoder.ErrNonceExhausted):
		return "nonce"
	default:
		return "closed"
	}
}
