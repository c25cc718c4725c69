package session

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
)

// LocalNode is the static identity a node handshakes with.
type LocalNode struct {
	PrivateKey *btcec.PrivateKey
}

func GenerateLocalNode() (*LocalNode, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("session: generate node key: %w", err)
	}
	return &LocalNode{PrivateKey: key}, nil
}

// LoadLocalNode reads a hex encoded 32 byte private key.
func LoadLocalNode(path string) (*LocalNode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read node key: %w", err)
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("session: decode node key %s: %w", path, err)
	}
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("session: node key %s: want %d bytes, got %d", path, btcec.PrivKeyBytesLen, len(b))
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return &LocalNode{PrivateKey: key}, nil
}

// SaveLocalNode writes the key readable by the owner only.
func SaveLocalNode(path string, n *LocalNode) error {
	if n == nil || n.PrivateKey == nil {
		return ErrIdentityRequired
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("session: create key dir: %w", err)
	}
	data := hex.EncodeToString(n.PrivateKey.Serialize()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("session: write node key: %w", err)
	}
	return nil
}

func (n *LocalNode) NodeID() *btcec.PublicKey {
	return n.PrivateKey.PubKey()
}

func (n *LocalNode) String() string {
	return addr.NodeIDHex(n.NodeID())
}
