package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid node config")

// NodeConfig is the resolved configuration of one lnpd node. Listen and
// Peers hold node URLs; listen URLs may omit the node id of lnp:// and
// lnpws:// addresses.
type NodeConfig struct {
	KeyFile   string
	Listen    []string
	Peers     []string
	AdminAddr string

	// AdminCorsOrigins are allowed to call the admin API from a browser.
	AdminCorsOrigins []string
	// AdminToken, when set, is required as a bearer token on session routes.
	AdminToken string
	Session    session.Config
}

type fileConfig struct {
	KeyFile      string      `toml:"key_file"`
	Listen       []string    `toml:"listen"`
	Peers        []string    `toml:"peers"`
	SecurityMode string      `toml:"security_mode"`
	AdminAddr    string      `toml:"admin_addr"`
	AdminCors    []string    `toml:"admin_cors_origins"`
	AdminToken   string      `toml:"admin_token"`
	Session      fileSession `toml:"session"`
}

type fileSession struct {
	ConnectTimeout     string      `toml:"connect_timeout"`
	HandshakeTimeout   string      `toml:"handshake_timeout"`
	ReadTimeout        string      `toml:"read_timeout"`
	WriteTimeout       string      `toml:"write_timeout"`
	MaxConnectAttempts int         `toml:"max_connect_attempts"`
	Backoff            fileBackoff `toml:"backoff"`
}

type fileBackoff struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		KeyFile:          "lnpd.key",
		Listen:           []string{},
		Peers:            []string{},
		AdminAddr:        "127.0.0.1:9736",
		AdminCorsOrigins: []string{},
		Session:          session.DefaultConfig(),
	}
}

// LoadNodeConfig overlays the keys present in path onto DefaultNodeConfig
// and validates the result.
func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("load node config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("%w: unknown key %s", ErrInvalidConfig, undecoded[0])
	}

	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = normalizeList(raw.Listen)
	}
	if meta.IsDefined("peers") {
		cfg.Peers = normalizeList(raw.Peers)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.AdminCorsOrigins = normalizeList(raw.AdminCors)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"session", "connect_timeout"}, raw.Session.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{[]string{"session", "handshake_timeout"}, raw.Session.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{[]string{"session", "read_timeout"}, raw.Session.ReadTimeout, &cfg.Session.ReadTimeout},
		{[]string{"session", "write_timeout"}, raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
		{[]string{"session", "backoff", "initial_delay"}, raw.Session.Backoff.InitialDelay, &cfg.Session.Backoff.InitialDelay},
		{[]string{"session", "backoff", "max_delay"}, raw.Session.Backoff.MaxDelay, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return NodeConfig{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}
	if meta.IsDefined("session", "max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.Session.MaxConnectAttempts
	}
	if meta.IsDefined("session", "backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Session.Backoff.Multiplier
	}
	if meta.IsDefined("session", "backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Session.Backoff.Jitter
	}

	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// validationKey stands in for the local node id while listen URLs are
// checked before the key file is read.
var validationKey, _ = btcec.PrivKeyFromBytes([]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
})

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.KeyFile) == "" {
		return fmt.Errorf("%w: key_file is required", ErrInvalidConfig)
	}
	if err := cfg.Session.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Session.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: max_connect_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := cfg.ListenAddrs(validationKey.PubKey()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	peers, err := cfg.PeerAddrs()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, peer := range peers {
		if err := cfg.Session.ValidateTarget(peer); err != nil {
			return fmt.Errorf("%w: peer %s: %w", ErrInvalidConfig, peer, err)
		}
	}
	return nil
}

// ListenAddrs parses the listen URLs, filling in local as the node id of
// remote addresses that omit it.
func (c NodeConfig) ListenAddrs(local *btcec.PublicKey) ([]addr.NodeAddr, error) {
	out := make([]addr.NodeAddr, 0, len(c.Listen))
	for i, raw := range c.Listen {
		a, err := ParseListenAddr(raw, local)
		if err != nil {
			return nil, fmt.Errorf("listen[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (c NodeConfig) PeerAddrs() ([]addr.NodeAddr, error) {
	out := make([]addr.NodeAddr, 0, len(c.Peers))
	for i, raw := range c.Peers {
		a, err := addr.ParseNodeAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("peers[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ParseListenAddr parses a bind URL. lnp:// and lnpws:// URLs without a
// node id get local's id.
func ParseListenAddr(raw string, local *btcec.PublicKey) (addr.NodeAddr, error) {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err == nil && u.User == nil && u.Host != "" && local != nil {
		switch u.Scheme {
		case addr.ProtoFTCP.Scheme(), addr.ProtoWebSocket.Scheme():
			u.User = url.User(addr.NodeIDHex(local))
			s = u.String()
		}
	}
	return addr.ParseNodeAddr(s)
}

// SessionConfig returns the session settings with unset values defaulted.
func SessionConfig(cfg NodeConfig) session.Config {
	return cfg.Session.WithDefaults()
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
