package addr

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func nodeID(t *testing.T) (*btcec.PublicKey, string) {
	t.Helper()
	_, pub := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x42}, 32))
	return pub, NodeIDHex(pub)
}

func TestParseNodeAddrForms(t *testing.T) {
	testlog.Start(t)

	pub, id := nodeID(t)
	cases := []struct {
		in   string
		want NodeAddr
	}{
		{"lnpu:///run/lnp.sock", PosixSocketAddr{Path: "/run/lnp.sock"}},
		{"lnpz:ctl?api=esb", ZmqSocketAddr{API: ZmqESB, Endpoint: "inproc://ctl"}},
		{"lnpz:///run/rpc.sock?api=rpc", ZmqSocketAddr{API: ZmqRPC, Endpoint: "ipc:///run/rpc.sock"}},
		{"lnpz://127.0.0.1:6000?api=p2p", ZmqSocketAddr{API: ZmqP2P, Endpoint: "tcp://127.0.0.1:6000"}},
	}
	for _, tc := range cases {
		got, err := ParseNodeAddr(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
		require.Equal(t, tc.in, got.URL())
	}

	got, err := ParseNodeAddr("lnp://" + id + "@10.0.0.1")
	require.NoError(t, err)
	remote, ok := got.(RemoteNodeAddr)
	require.True(t, ok)
	require.True(t, remote.NodeID.IsEqual(pub))
	require.Equal(t, ProtoFTCP, remote.Proto())
	require.Equal(t, uint16(9735), remote.Remote.Addr.Port())
	require.Equal(t, "lnp://"+id+"@10.0.0.1:9735", remote.URL())

	got, err = ParseNodeAddr("lnpz://" + id + "@[::1]:7000?api=sub")
	require.NoError(t, err)
	remote = got.(RemoteNodeAddr)
	require.Equal(t, ZmqSub, remote.Remote.API)
	require.Equal(t, "lnpz://"+id+"@[::1]:7000?api=sub", remote.URL())

	got, err = ParseNodeAddr("lnpws://" + id + "@127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, ProtoWebSocket, got.Proto())
}

func TestParseNodeAddrErrors(t *testing.T) {
	testlog.Start(t)

	_, id := nodeID(t)
	cases := map[string]error{
		"ftp://x":                              ErrUnknownScheme,
		"lnp://" + id + "@node.example:9735":   ErrMalformedIP,
		"lnp://abcd@127.0.0.1:9735":            ErrInvalidPubkey,
		"lnp://127.0.0.1:9735":                 ErrNodeIDRequired,
		"lnpws://" + id + "@127.0.0.1":         ErrPortRequired,
		"lnpu://" + id + "@/tmp/x":             ErrUnexpectedAuthority,
		"lnpu://localhost/tmp/x":               ErrUnexpectedHost,
		"lnpz:///run/x.sock":                   ErrZmqAPIRequired,
		"lnpz:///run/x.sock?api=dealer":        ErrInvalidZmqAPI,
		"lnpz://127.0.0.1?api=rpc":             ErrPortRequired,
		"lnp://" + id + "@127.0.0.1:9735/path": ErrUnsupported,
	}
	for in, want := range cases {
		_, err := ParseNodeAddr(in)
		require.ErrorIs(t, err, want, in)
		var addrErr *Error
		require.ErrorAs(t, err, &addrErr, in)
	}
}

func TestParseRemoteNodeAddr(t *testing.T) {
	testlog.Start(t)

	pub, id := nodeID(t)
	a, err := ParseRemoteNodeAddr(id + "@192.168.1.9")
	require.NoError(t, err)
	require.True(t, a.NodeID.IsEqual(pub))
	require.Equal(t, "192.168.1.9:9735", a.Remote.Addr.String())

	_, err = ParseRemoteNodeAddr("192.168.1.9:9735")
	require.ErrorIs(t, err, ErrNodeIDRequired)
	var addrErr *Error
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, "192.168.1.9:9735", addrErr.Input)
}

func TestParseMultiaddr(t *testing.T) {
	testlog.Start(t)

	pub, _ := nodeID(t)
	got, err := ParseMultiaddr("/ip4/127.0.0.1/tcp/9735", pub)
	require.NoError(t, err)
	remote := got.(RemoteNodeAddr)
	require.Equal(t, ProtoFTCP, remote.Proto())
	require.Equal(t, "127.0.0.1:9735", remote.Remote.Addr.String())

	m, err := remote.Remote.Multiaddr()
	require.NoError(t, err)
	require.Equal(t, "/ip4/127.0.0.1/tcp/9735", m.String())

	got, err = ParseMultiaddr("/ip6/::1/tcp/8080/ws", pub)
	require.NoError(t, err)
	require.Equal(t, ProtoWebSocket, got.Proto())

	got, err = ParseMultiaddr("/unix/run/lnp.sock", nil)
	require.NoError(t, err)
	require.Equal(t, PosixSocketAddr{Path: "/run/lnp.sock"}, got)

	_, err = ParseMultiaddr("/ip4/127.0.0.1/tcp/9735", nil)
	require.ErrorIs(t, err, ErrNodeIDRequired)

	_, err = ParseMultiaddr("/ip4/127.0.0.1/udp/9735", pub)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestProtoSchemes(t *testing.T) {
	testlog.Start(t)

	for _, p := range []Proto{ProtoFTCP, ProtoZMQ, ProtoPosix, ProtoHTTP, ProtoWebSocket, ProtoSMTP} {
		got, err := ParseProto(p.Scheme())
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
	_, err := ParseProto("https")
	require.ErrorIs(t, err, ErrUnknownScheme)
}
