package transcoder

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/flynn/noise"
)

// Secp256k1DH is the Noise DH function over secp256k1. Public keys are 33
// byte compressed points and the shared secret is SHA256 of the compressed
// product point.
var Secp256k1DH noise.DHFunc = secp256k1DH{}

type secp256k1DH struct{}

func (secp256k1DH) GenerateKeypair(rng io.Reader) (noise.DHKey, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(rng, buf[:]); err != nil {
			return noise.DHKey{}, err
		}
		var k secp256k1.ModNScalar
		if overflow := k.SetBytes(&buf); overflow != 0 || k.IsZero() {
			continue
		}
		priv := secp256k1.NewPrivateKey(&k)
		return noise.DHKey{
			Private: priv.Serialize(),
			Public:  priv.PubKey().SerializeCompressed(),
		}, nil
	}
}

func (secp256k1DH) DH(privkey, pubkey []byte) ([]byte, error) {
	if len(privkey) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("transcoder: invalid private key length %d", len(privkey))
	}
	pub, err := secp256k1.ParsePubKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("transcoder: invalid peer key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(privkey)

	var point, product secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &product)
	product.ToAffine()

	shared := secp256k1.NewPublicKey(&product.X, &product.Y)
	sum := sha256.Sum256(shared.SerializeCompressed())
	return sum[:], nil
}

func (secp256k1DH) DHLen() int {
	return secp256k1.PubKeyBytesLenCompressed
}

func (secp256k1DH) DHName() string {
	return "secp256k1"
}

// CipherSuite is Noise_*_secp256k1_ChaChaPoly_SHA256.
var CipherSuite = noise.NewCipherSuite(Secp256k1DH, noise.CipherChaChaPoly, noise.HashSHA256)
