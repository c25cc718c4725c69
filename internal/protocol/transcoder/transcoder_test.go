package transcoder

import (
	"bytes"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/lnpnet/internal/protocol"
	"github.com/danmuck/lnpnet/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type chanConn struct {
	in  <-chan []byte
	out chan<- []byte
}

func (c chanConn) SendRaw(b []byte) error {
	c.out <- bytes.Clone(b)
	return nil
}

func (c chanConn) RecvRaw() ([]byte, error) {
	b, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return b, nil
}

func (c chanConn) Close() { close(c.out) }

func connPair() (chanConn, chanConn) {
	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	return chanConn{in: a, out: b}, chanConn{in: b, out: a}
}

func testKey(fill byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
	return priv
}

func establish(t *testing.T) (*Noise, *Noise) {
	t.Helper()
	initKey, respKey := testKey(0x11), testKey(0x22)
	ic, rc := connPair()

	var initiator, responder *Noise
	var g errgroup.Group
	g.Go(func() (err error) {
		initiator, err = NewHandshaker(initKey).Initiate(ic, respKey.PubKey())
		return err
	})
	g.Go(func() (err error) {
		responder, err = NewHandshaker(respKey).Respond(rc)
		return err
	})
	require.NoError(t, g.Wait())
	return initiator, responder
}

func TestHandshakeEstablishesBothDirections(t *testing.T) {
	testlog.Start(t)

	initiator, responder := establish(t)
	require.True(t, responder.RemoteStatic().IsEqual(testKey(0x11).PubKey()))
	require.True(t, initiator.RemoteStatic().IsEqual(testKey(0x22).PubKey()))

	sealed, err := initiator.Encrypt([]byte("ping"))
	require.NoError(t, err)
	require.NotEqual(t, []byte("ping"), sealed[:4])
	opened, err := responder.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), opened)

	sealed, err = responder.Encrypt([]byte("pong"))
	require.NoError(t, err)
	opened, err = initiator.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), opened)
}

func TestHandshakeStates(t *testing.T) {
	testlog.Start(t)

	ic, rc := connPair()
	ih := NewHandshaker(testKey(0x11))
	rh := NewHandshaker(testKey(0x22))
	require.Equal(t, StateIdle, ih.State())

	var g errgroup.Group
	g.Go(func() error { _, err := ih.Initiate(ic, testKey(0x22).PubKey()); return err })
	g.Go(func() error { _, err := rh.Respond(rc); return err })
	require.NoError(t, g.Wait())

	require.Equal(t, StateEstablished, ih.State())
	require.Equal(t, StateEstablished, rh.State())
	require.True(t, rh.RemoteStatic().IsEqual(testKey(0x11).PubKey()))

	_, err := ih.Initiate(ic, testKey(0x22).PubKey())
	require.ErrorIs(t, err, ErrHandshakeFailed)
}

func TestHandshakeWithWrongResponderKeyFails(t *testing.T) {
	testlog.Start(t)

	ic, rc := connPair()
	ih := NewHandshaker(testKey(0x11))
	rh := NewHandshaker(testKey(0x22))

	var initErr, respErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, initErr = ih.Initiate(ic, testKey(0x33).PubKey())
	}()
	go func() {
		defer wg.Done()
		defer rc.Close()
		_, respErr = rh.Respond(rc)
	}()
	wg.Wait()

	require.ErrorIs(t, respErr, ErrHandshakeFailed)
	require.ErrorIs(t, initErr, ErrHandshakeFailed)
	require.Equal(t, StateClosed, ih.State())
	require.Equal(t, StateClosed, rh.State())
	require.Nil(t, rh.RemoteStatic())
}

func TestHandshakeAbortedByClosedConn(t *testing.T) {
	testlog.Start(t)

	ic, rc := connPair()
	rc.Close()
	_, err := NewHandshaker(testKey(0x11)).Initiate(ic, testKey(0x22).PubKey())
	require.ErrorIs(t, err, ErrHandshakeFailed)
	require.ErrorIs(t, err, io.EOF)
}

func TestTamperedFrameIsTerminal(t *testing.T) {
	testlog.Start(t)

	initiator, responder := establish(t)
	sealed, err := initiator.Encrypt([]byte("payload"))
	require.NoError(t, err)
	tampered := bytes.Clone(sealed)
	tampered[0] ^= 0x01

	_, err = responder.Decrypt(tampered)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.True(t, IsFatal(err))

	_, err = responder.Decrypt(sealed)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestShortCiphertextFailsAuthentication(t *testing.T) {
	testlog.Start(t)

	_, responder := establish(t)
	_, err := responder.Decrypt([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestNonceExhaustionIsFatal(t *testing.T) {
	testlog.Start(t)

	initiator, responder := establish(t)
	initiator.enc.nonce = math.MaxUint64 - 1
	responder.dec.nonce = math.MaxUint64 - 1

	sealed, err := initiator.Encrypt([]byte("last"))
	require.NoError(t, err)
	opened, err := responder.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("last"), opened)

	_, err = initiator.Encrypt([]byte("one more"))
	require.ErrorIs(t, err, ErrNonceExhausted)
	require.True(t, IsFatal(err))
	_, err = responder.Decrypt(sealed)
	require.ErrorIs(t, err, ErrNonceExhausted)
}

func TestFrameSizeCeiling(t *testing.T) {
	testlog.Start(t)

	initiator, responder := establish(t)
	_, err := initiator.Encrypt(make([]byte, MaxPlaintext+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.False(t, IsFatal(err))

	sealed, err := initiator.Encrypt(make([]byte, MaxPlaintext))
	require.NoError(t, err)
	require.Len(t, sealed, protocol.MaxMsgLen)
	_, err = responder.Decrypt(sealed)
	require.NoError(t, err)
}

func TestSplitHalvesRunConcurrently(t *testing.T) {
	testlog.Start(t)

	initiator, responder := establish(t)
	iEnc, iDec := initiator.Split()
	rEnc, rDec := responder.Split()

	const frames = 64
	var g errgroup.Group
	forward := make(chan []byte, frames)
	backward := make(chan []byte, frames)
	g.Go(func() error {
		for i := 0; i < frames; i++ {
			b, err := iEnc.Encrypt([]byte{byte(i)})
			if err != nil {
				return err
			}
			forward <- b
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < frames; i++ {
			b, err := rEnc.Encrypt([]byte{byte(i), 0xFF})
			if err != nil {
				return err
			}
			backward <- b
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < frames; i++ {
			b, err := rDec.Decrypt(<-forward)
			if err != nil {
				return err
			}
			if b[0] != byte(i) {
				t.Errorf("forward frame %d out of order", i)
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < frames; i++ {
			b, err := iDec.Decrypt(<-backward)
			if err != nil {
				return err
			}
			if b[0] != byte(i) {
				t.Errorf("backward frame %d out of order", i)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestPlainIsIdentity(t *testing.T) {
	testlog.Start(t)

	var tc Transcoder = Plain{}
	b, err := tc.Encrypt([]byte("clear"))
	require.NoError(t, err)
	require.Equal(t, []byte("clear"), b)
	b, err = tc.Decrypt(b)
	require.NoError(t, err)
	require.Equal(t, []byte("clear"), b)

	_, err = tc.Encrypt(make([]byte, protocol.MaxMsgLen+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestSecp256k1DHIsSymmetric(t *testing.T) {
	testlog.Start(t)

	a, b := testKey(0x11), testKey(0x22)
	ab, err := Secp256k1DH.DH(a.Serialize(), b.PubKey().SerializeCompressed())
	require.NoError(t, err)
	ba, err := Secp256k1DH.DH(b.Serialize(), a.PubKey().SerializeCompressed())
	require.NoError(t, err)
	require.Equal(t, ab, ba)
	require.Len(t, ab, 32)

	kp, err := Secp256k1DH.GenerateKeypair(bytes.NewReader(bytes.Repeat([]byte{0x07}, 32)))
	require.NoError(t, err)
	require.Len(t, kp.Public, Secp256k1DH.DHLen())

	_, err = Secp256k1DH.DH(a.Serialize(), []byte{0x02, 0x01})
	require.Error(t, err)
}
