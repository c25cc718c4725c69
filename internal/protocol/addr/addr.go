// Package addr describes where a peer can be reached.
//
// A NodeAddr is either a local socket (ZMQ or POSIX) used between trusted
// processes, or a RemoteNodeAddr pairing a network socket with the peer's
// secp256k1 node id. Every address has a URL form:
//
//	lnp://<node id hex>@<ip>[:<port>]          framed TCP (port defaults to 9735)
//	lnpws://<node id hex>@<ip>:<port>          websocket
//	lnpz://<node id hex>@<ip>:<port>?api=rpc   remote zmq over tcp
//	lnph://..., lnpm://...                     http and smtp (reserved)
//	lnpz:<name>?api=esb                        zmq inproc
//	lnpz:///run/node.sock?api=rpc              zmq ipc
//	lnpz://127.0.0.1:6000?api=p2p              zmq tcp without node id
//	lnpu:///run/node.sock                      posix unix socket
//
// Hosts must be literal IP addresses.
package addr

import (
	"fmt"
	"net/netip"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Proto is the closed set of substrate kinds.
type Proto uint8

const (
	ProtoFTCP Proto = iota + 1
	ProtoZMQ
	ProtoPosix
	ProtoHTTP
	ProtoWebSocket
	ProtoSMTP
)

var protoSchemes = map[Proto]string{
	ProtoFTCP:      "lnp",
	ProtoZMQ:       "lnpz",
	ProtoPosix:     "lnpu",
	ProtoHTTP:      "lnph",
	ProtoWebSocket: "lnpws",
	ProtoSMTP:      "lnpm",
}

// Scheme is the URL scheme of p.
func (p Proto) Scheme() string {
	return protoSchemes[p]
}

func (p Proto) String() string {
	switch p {
	case ProtoFTCP:
		return "ftcp"
	case ProtoZMQ:
		return "zmq"
	case ProtoPosix:
		return "posix"
	case ProtoHTTP:
		return "http"
	case ProtoWebSocket:
		return "websocket"
	case ProtoSMTP:
		return "smtp"
	default:
		return fmt.Sprintf("Proto(%d)", uint8(p))
	}
}

// ParseProto maps a URL scheme back to its Proto.
func ParseProto(scheme string) (Proto, error) {
	for p, s := range protoSchemes {
		if s == scheme {
			return p, nil
		}
	}
	return 0, fail(scheme, ErrUnknownScheme)
}

// ZmqAPI selects the socket pattern a ZMQ address is used with.
type ZmqAPI uint8

const (
	// ZmqRPC is request/reply.
	ZmqRPC ZmqAPI = iota + 1
	// ZmqP2P is an exclusive pair.
	ZmqP2P
	// ZmqSub is publish/subscribe; Connect subscribes and Accept publishes.
	ZmqSub
	// ZmqESB is a router based service bus.
	ZmqESB
)

func (a ZmqAPI) String() string {
	switch a {
	case ZmqRPC:
		return "rpc"
	case ZmqP2P:
		return "p2p"
	case ZmqSub:
		return "sub"
	case ZmqESB:
		return "esb"
	default:
		return fmt.Sprintf("ZmqAPI(%d)", uint8(a))
	}
}

func ParseZmqAPI(s string) (ZmqAPI, error) {
	for _, a := range []ZmqAPI{ZmqRPC, ZmqP2P, ZmqSub, ZmqESB} {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fail(s, ErrInvalidZmqAPI)
}

// NodeAddr is one of ZmqSocketAddr, PosixSocketAddr or RemoteNodeAddr.
type NodeAddr interface {
	Proto() Proto
	// URL returns the canonical URL form accepted by ParseNodeAddr.
	URL() string
	String() string
	nodeAddr()
}

// LocalSocketAddr is one of ZmqSocketAddr or PosixSocketAddr.
type LocalSocketAddr interface {
	NodeAddr
	localSocket()
}

// ZmqSocketAddr is a ZMQ endpoint such as inproc://name, ipc:///path or
// tcp://ip:port.
type ZmqSocketAddr struct {
	API      ZmqAPI
	Endpoint string
}

func (ZmqSocketAddr) Proto() Proto { return ProtoZMQ }

func (a ZmqSocketAddr) URL() string {
	scheme, rest, ok := cutEndpoint(a.Endpoint)
	if !ok {
		return fmt.Sprintf("lnpz:%s?api=%s", a.Endpoint, a.API)
	}
	switch scheme {
	case "inproc":
		return fmt.Sprintf("lnpz:%s?api=%s", rest, a.API)
	default:
		return fmt.Sprintf("lnpz://%s?api=%s", rest, a.API)
	}
}

func (a ZmqSocketAddr) String() string { return a.URL() }
func (ZmqSocketAddr) nodeAddr()        {}
func (ZmqSocketAddr) localSocket()     {}

// PosixSocketAddr is a unix domain socket path.
type PosixSocketAddr struct {
	Path string
}

func (PosixSocketAddr) Proto() Proto     { return ProtoPosix }
func (a PosixSocketAddr) URL() string    { return "lnpu://" + a.Path }
func (a PosixSocketAddr) String() string { return a.URL() }
func (PosixSocketAddr) nodeAddr()        {}
func (PosixSocketAddr) localSocket()     {}

// RemoteSocketAddr is a network socket of a given kind. API is only set for
// ProtoZMQ.
type RemoteSocketAddr struct {
	Proto Proto
	Addr  netip.AddrPort
	API   ZmqAPI
}

func (a RemoteSocketAddr) String() string {
	if a.Proto == ProtoZMQ {
		return fmt.Sprintf("%s://%s?api=%s", a.Proto.Scheme(), a.Addr, a.API)
	}
	return fmt.Sprintf("%s://%s", a.Proto.Scheme(), a.Addr)
}

// RemoteNodeAddr is a remote socket together with the node id expected to
// answer on it.
type RemoteNodeAddr struct {
	NodeID *btcec.PublicKey
	Remote RemoteSocketAddr
}

func (a RemoteNodeAddr) Proto() Proto { return a.Remote.Proto }

func (a RemoteNodeAddr) URL() string {
	u := fmt.Sprintf("%s://%s@%s", a.Remote.Proto.Scheme(), NodeIDHex(a.NodeID), a.Remote.Addr)
	if a.Remote.Proto == ProtoZMQ {
		u += "?api=" + a.Remote.API.String()
	}
	return u
}

func (a RemoteNodeAddr) String() string { return a.URL() }
func (RemoteNodeAddr) nodeAddr()        {}
