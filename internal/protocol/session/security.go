package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/lnpnet/internal/protocol/addr"
)

var ErrInvalidSecurityMode = errors.New("session: invalid security mode")

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

func (c Config) Validate() error {
	switch NormalizeSecurityMode(c.SecurityMode) {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}
	if c.ConnectTimeout < 0 || c.HandshakeTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("session: negative timeout")
	}
	return nil
}

// Encrypted reports whether sessions over a run the Noise handshake.
func Encrypted(a addr.NodeAddr) bool {
	r, ok := a.(addr.RemoteNodeAddr)
	if !ok {
		return false
	}
	return r.Remote.Proto == addr.ProtoFTCP || r.Remote.Proto == addr.ProtoWebSocket
}

// ValidateTarget applies the security mode to one address. Production
// refuses remote sessions that would run without encryption; local
// sockets are always allowed.
func (c Config) ValidateTarget(a addr.NodeAddr) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if NormalizeSecurityMode(c.SecurityMode) != SecurityModeProduction {
		return nil
	}
	if _, remote := a.(addr.RemoteNodeAddr); remote && !Encrypted(a) {
		return fmt.Errorf("%w: %s", ErrEncryptionRequired, a)
	}
	return nil
}
