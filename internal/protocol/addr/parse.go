package addr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// NodeIDHex is the hex form of a compressed node public key.
func NodeIDHex(id *btcec.PublicKey) string {
	if id == nil {
		return ""
	}
	return hex.EncodeToString(id.SerializeCompressed())
}

// ParseNodeID parses a hex encoded compressed secp256k1 public key.
func ParseNodeID(s string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fail(s, ErrInvalidPubkey)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fail(s, fmt.Errorf("%w: %w", ErrInvalidPubkey, err))
	}
	return pub, nil
}

// ParseNodeAddr parses any URL form listed in the package documentation.
func ParseNodeAddr(s string) (NodeAddr, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, fail(s, fmt.Errorf("%w: %w", ErrMalformedURL, err))
	}
	proto, err := ParseProto(u.Scheme)
	if err != nil {
		return nil, fail(s, ErrUnknownScheme)
	}

	switch proto {
	case ProtoPosix:
		return parsePosix(s, u)
	case ProtoZMQ:
		return parseZmq(s, u)
	default:
		return parseRemote(s, u, proto, 0)
	}
}

// ParseRemoteNodeAddr parses the short "<node id>@<ip>[:<port>]" form used
// for framed TCP peers. The port defaults to 9735.
func ParseRemoteNodeAddr(s string) (RemoteNodeAddr, error) {
	a, err := ParseNodeAddr(ProtoFTCP.Scheme() + "://" + strings.TrimSpace(s))
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Input = s
		}
		return RemoteNodeAddr{}, err
	}
	return a.(RemoteNodeAddr), nil
}

func parsePosix(s string, u *url.URL) (NodeAddr, error) {
	switch {
	case u.User != nil:
		return nil, fail(s, ErrUnexpectedAuthority)
	case u.Host != "":
		return nil, fail(s, ErrUnexpectedHost)
	case u.Path == "":
		return nil, fail(s, fmt.Errorf("%w: socket path required", ErrUnsupported))
	}
	return PosixSocketAddr{Path: u.Path}, nil
}

func parseZmq(s string, u *url.URL) (NodeAddr, error) {
	raw := u.Query().Get("api")
	if raw == "" {
		return nil, fail(s, ErrZmqAPIRequired)
	}
	api, err := ParseZmqAPI(raw)
	if err != nil {
		return nil, fail(s, ErrInvalidZmqAPI)
	}

	switch {
	case u.Opaque != "":
		return ZmqSocketAddr{API: api, Endpoint: "inproc://" + u.Opaque}, nil
	case u.User != nil:
		return parseRemote(s, u, ProtoZMQ, api)
	case u.Host == "":
		if u.Path == "" {
			return nil, fail(s, fmt.Errorf("%w: zmq socket path required", ErrUnsupported))
		}
		return ZmqSocketAddr{API: api, Endpoint: "ipc://" + u.Path}, nil
	}

	ap, err := hostPort(s, u, 0)
	if err != nil {
		return nil, err
	}
	return ZmqSocketAddr{API: api, Endpoint: "tcp://" + ap.String()}, nil
}

func parseRemote(s string, u *url.URL, proto Proto, api ZmqAPI) (NodeAddr, error) {
	if u.Opaque != "" {
		return nil, fail(s, ErrHostRequired)
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fail(s, ErrNodeIDRequired)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return nil, fail(s, ErrUnexpectedAuthority)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fail(s, fmt.Errorf("%w: path not allowed for %s", ErrUnsupported, proto))
	}
	id, err := ParseNodeID(u.User.Username())
	if err != nil {
		return nil, fail(s, ErrInvalidPubkey)
	}

	var defaultPort uint16
	if proto == ProtoFTCP {
		defaultPort = protocol.DefaultPort
	}
	ap, err := hostPort(s, u, defaultPort)
	if err != nil {
		return nil, err
	}
	return RemoteNodeAddr{
		NodeID: id,
		Remote: RemoteSocketAddr{Proto: proto, Addr: ap, API: api},
	}, nil
}

func hostPort(s string, u *url.URL, defaultPort uint16) (netip.AddrPort, error) {
	host := u.Hostname()
	if host == "" {
		return netip.AddrPort{}, fail(s, ErrHostRequired)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, fail(s, ErrMalformedIP)
	}

	port := defaultPort
	if raw := u.Port(); raw != "" {
		p, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || p == 0 {
			return netip.AddrPort{}, fail(s, ErrPortRequired)
		}
		port = uint16(p)
	}
	if port == 0 {
		return netip.AddrPort{}, fail(s, ErrPortRequired)
	}
	return netip.AddrPortFrom(ip, port), nil
}

// ParseMultiaddr converts /ip4|ip6/../tcp/..[/ws] and /unix/.. multiaddrs.
// Network forms need the node id of the peer; unix sockets ignore it.
func ParseMultiaddr(s string, nodeID *btcec.PublicKey) (NodeAddr, error) {
	m, err := ma.NewMultiaddr(strings.TrimSpace(s))
	if err != nil {
		return nil, fail(s, fmt.Errorf("%w: %w", ErrMalformedURL, err))
	}

	var (
		ip   netip.Addr
		port uint64
		ws   bool
		path string
	)
	for _, c := range ma.Split(m) {
		switch c.Protocol().Code {
		case ma.P_IP4, ma.P_IP6:
			if ip, err = netip.ParseAddr(c.Value()); err != nil {
				return nil, fail(s, ErrMalformedIP)
			}
		case ma.P_TCP:
			if port, err = strconv.ParseUint(c.Value(), 10, 16); err != nil {
				return nil, fail(s, ErrPortRequired)
			}
		case ma.P_WS:
			ws = true
		case ma.P_UNIX:
			path = "/" + strings.TrimPrefix(c.Value(), "/")
		default:
			return nil, fail(s, fmt.Errorf("%w: multiaddr protocol %s", ErrUnsupported, c.Protocol().Name))
		}
	}

	if path != "" {
		if ip.IsValid() {
			return nil, fail(s, ErrUnexpectedHost)
		}
		return PosixSocketAddr{Path: path}, nil
	}
	if !ip.IsValid() {
		return nil, fail(s, ErrHostRequired)
	}
	if port == 0 {
		return nil, fail(s, ErrPortRequired)
	}
	if nodeID == nil {
		return nil, fail(s, ErrNodeIDRequired)
	}
	proto := ProtoFTCP
	if ws {
		proto = ProtoWebSocket
	}
	return RemoteNodeAddr{
		NodeID: nodeID,
		Remote: RemoteSocketAddr{Proto: proto, Addr: netip.AddrPortFrom(ip, uint16(port))},
	}, nil
}

// Multiaddr returns the multiaddr form of a framed TCP or websocket address.
func (a RemoteSocketAddr) Multiaddr() (ma.Multiaddr, error) {
	family := "ip4"
	if a.Addr.Addr().Is6() {
		family = "ip6"
	}
	s := fmt.Sprintf("/%s/%s/tcp/%d", family, a.Addr.Addr(), a.Addr.Port())
	switch a.Proto {
	case ProtoFTCP:
	case ProtoWebSocket:
		s += "/ws"
	default:
		return nil, fail(a.String(), fmt.Errorf("%w: no multiaddr form for %s", ErrUnsupported, a.Proto))
	}
	return ma.NewMultiaddr(s)
}

func cutEndpoint(endpoint string) (scheme, rest string, ok bool) {
	return strings.Cut(endpoint, "://")
}
