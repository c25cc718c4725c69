// Package peertest provides node keys and local addresses for tests that
// run peers against each other.
package peertest

import (
	"bytes"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
)

// Key returns a deterministic private key filled with one byte.
func Key(fill byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{fill}, btcec.PrivKeyBytesLen))
	return priv
}

// FreeTCPAddr reserves a loopback port and releases it for the caller to
// bind.
func FreeTCPAddr(t testing.TB) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve loopback port: %v", err)
	}
	ap := ln.Addr().(*net.TCPAddr).AddrPort()
	if err := ln.Close(); err != nil {
		t.Fatalf("release loopback port: %v", err)
	}
	return ap
}

// RemoteAddr builds a remote node address for key. ZMQ addresses use the
// pair api.
func RemoteAddr(proto addr.Proto, key *btcec.PrivateKey, ap netip.AddrPort) addr.RemoteNodeAddr {
	remote := addr.RemoteSocketAddr{Proto: proto, Addr: ap}
	if proto == addr.ProtoZMQ {
		remote.API = addr.ZmqP2P
	}
	return addr.RemoteNodeAddr{NodeID: key.PubKey(), Remote: remote}
}

// SocketPath returns a unix socket path short enough for sun_path.
func SocketPath(t testing.TB, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lnp")
	if err != nil {
		t.Fatalf("socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}
