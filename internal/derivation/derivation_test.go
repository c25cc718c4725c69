package derivation

import (
	"bytes"
	"slices"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/danmuck/lnpnet/internal/protocol/strict"
	"github.com/danmuck/lnpnet/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestStepOrderingIsKindThenIndex(t *testing.T) {
	testlog.Start(t)

	steps := []Step{HardenedWildcard, Hardened(0), Normal(7), Wildcard, Normal(1), Hardened(3)}
	slices.SortFunc(steps, Compare)
	require.Equal(t, []Step{Normal(1), Normal(7), Hardened(0), Hardened(3), Wildcard, HardenedWildcard}, steps)

	require.True(t, Normal(MaxIndex).Less(Hardened(0)))
	require.False(t, Hardened(2).Less(Hardened(2)))
	require.Zero(t, Compare(Step{}, Normal(0)))
}

func TestParseAndFormatSteps(t *testing.T) {
	testlog.Start(t)

	cases := map[string]Step{
		"7":   Normal(7),
		"7h":  Hardened(7),
		"7'":  Hardened(7),
		"*":   Wildcard,
		"*h":  HardenedWildcard,
		"*'":  HardenedWildcard,
		" 0 ": Normal(0),
	}
	for in, want := range cases {
		got, err := ParseStep(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	require.Equal(t, "7h", Hardened(7).String())
	require.Equal(t, "*h", HardenedWildcard.String())

	for _, bad := range []string{"", "h", "x", "-1", "+1", "1hh", "**"} {
		_, err := ParseStep(bad)
		require.ErrorIs(t, err, ErrInvalidStep, bad)
	}
	_, err := ParseStep("2147483648")
	require.ErrorIs(t, err, ErrIndexOverflow)
	_, err = ParseStep("99999999999")
	require.ErrorIs(t, err, ErrIndexOverflow)
}

func TestChildNumbers(t *testing.T) {
	testlog.Start(t)

	require.Equal(t, Normal(5), FromChildNumber(5))
	require.Equal(t, Hardened(5), FromChildNumber(hdkeychain.HardenedKeyStart+5))

	n, err := Hardened(5).ChildNumber()
	require.NoError(t, err)
	require.Equal(t, uint32(hdkeychain.HardenedKeyStart+5), n)

	_, err = Wildcard.ChildNumber()
	require.ErrorIs(t, err, ErrWildcard)
}

func TestIncrementAndDecrementBounds(t *testing.T) {
	testlog.Start(t)

	next, err := Normal(1).TryIncrement()
	require.NoError(t, err)
	require.Equal(t, Normal(2), next)

	_, err = Hardened(MaxIndex).TryIncrement()
	require.ErrorIs(t, err, ErrIndexOverflow)
	_, err = Normal(0).TryDecrement()
	require.ErrorIs(t, err, ErrIndexOverflow)
	_, err = Wildcard.TryIncrement()
	require.ErrorIs(t, err, ErrWildcard)

	prev, err := Hardened(3).TryDecrement()
	require.NoError(t, err)
	require.Equal(t, Hardened(2), prev)
}

func TestStepStrictEncoding(t *testing.T) {
	testlog.Start(t)

	b, err := strict.Marshal(Hardened(0x01020304 & MaxIndex))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x04, 0x03, 0x02, 0x01}, b)

	var s Step
	require.NoError(t, strict.Unmarshal(b, &s))
	require.Equal(t, Hardened(0x01020304), s)

	require.ErrorIs(t, strict.Unmarshal([]byte{0x04, 0, 0, 0, 0}, &s), ErrInvalidKind)
	require.ErrorIs(t, strict.Unmarshal([]byte{0x00, 0, 0, 0, 0x80}, &s), ErrIndexOverflow)
	require.ErrorIs(t, strict.Unmarshal([]byte{0x02, 1, 0, 0, 0}, &s), ErrInvalidStep)
	require.ErrorIs(t, strict.Unmarshal([]byte{0x00, 0, 0, 0, 0, 0}, &s), strict.ErrTrailingBytes)
}

func TestTemplateParseAndDerive(t *testing.T) {
	testlog.Start(t)

	tmpl, err := ParseTemplate("m/1017'/0h/1/*")
	require.NoError(t, err)
	require.Equal(t, "m/1017h/0h/1/*", tmpl.String())
	require.True(t, tmpl.Ranged())

	path, err := tmpl.At(9)
	require.NoError(t, err)
	require.Equal(t, []uint32{hdkeychain.HardenedKeyStart + 1017, hdkeychain.HardenedKeyStart, 1, 9}, path)

	_, err = ParseTemplate("m/*/0")
	require.ErrorIs(t, err, ErrWildcardPosition)

	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{0x5a}, 32), &chaincfg.MainNetParams)
	require.NoError(t, err)
	k0, err := tmpl.DeriveKey(master, 0)
	require.NoError(t, err)
	k0again, err := tmpl.DeriveKey(master, 0)
	require.NoError(t, err)
	k1, err := tmpl.DeriveKey(master, 1)
	require.NoError(t, err)
	require.Equal(t, k0.Serialize(), k0again.Serialize())
	require.NotEqual(t, k0.Serialize(), k1.Serialize())

	enc, err := strict.Marshal(tmpl)
	require.NoError(t, err)
	var decoded Template
	require.NoError(t, strict.Unmarshal(enc, &decoded))
	require.Equal(t, tmpl, decoded)
}
