package message

import (
	"testing"

	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/tlv"
	"github.com/danmuck/lnpnet/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestDispatchIdentityForEveryVariant(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		reg *payload.Registry
		msg payload.Message
	}{
		{NewControlRegistry(), &Init{
			GlobalFeatures: []byte{0x02},
			LocalFeatures:  []byte{0x08, 0x80},
			Networks:       []Hash32{{0x6f, 0xe2}, {0x43}},
		}},
		{NewControlRegistry(), &Init{}},
		{NewControlRegistry(), &Error{ChannelID: Hash32{1}, Data: []byte("bad")}},
		{NewControlRegistry(), &Ping{NumPongBytes: 4, Ignored: []byte{0, 0}}},
		{NewControlRegistry(), &Pong{Ignored: []byte{0, 0, 0, 0}}},
		{NewReplyRegistry(), &Failure{Message: "no such key"}},
		{NewReplyRegistry(), &Success{}},
		{NewReplyRegistry(), &SuccessNoArgs{}},
		{NewReplyRegistry(), &Keylist{Keys: []byte{1, 2, 3}}},
	}
	for _, tc := range cases {
		id, err := tc.reg.TypeOf(tc.msg)
		require.NoError(t, err)
		body, err := tc.reg.Encode(tc.msg)
		require.NoError(t, err)
		got, err := tc.reg.Dispatch(id, body)
		require.NoError(t, err, "type %s", id)
		require.Equal(t, tc.msg, got)
	}
}

func TestReplyTypeIDs(t *testing.T) {
	testlog.Start(t)

	reg := NewReplyRegistry()
	require.Equal(t, []payload.TypeID{0x0001, 0x0003, 0x0005, 0x0103}, reg.Types())

	m, err := reg.Dispatch(TypeSuccess, nil)
	require.NoError(t, err)
	require.IsType(t, &Success{}, m)

	_, err = reg.Dispatch(TypeSuccess, []byte{0x00})
	require.Error(t, err)
}

func TestPingEnvelopeLayout(t *testing.T) {
	testlog.Start(t)

	b, err := NewControlRegistry().Marshal(Ping{NumPongBytes: 3, Ignored: []byte{0xAA}})
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x00, 0x03, 0x00, 0x01, 0x00, 0xAA}, b)
}

func TestPingReply(t *testing.T) {
	testlog.Start(t)

	pong, err := Ping{NumPongBytes: 5}.Reply()
	require.NoError(t, err)
	require.Len(t, pong.Ignored, 5)

	_, err = Ping{NumPongBytes: NoPongThreshold}.Reply()
	require.ErrorIs(t, err, ErrPongNotRequested)
}

func TestInitKeepsUnknownOddFields(t *testing.T) {
	testlog.Start(t)

	reg := NewControlRegistry()
	in := &Init{
		Networks: []Hash32{{9}},
		Unknown:  tlv.Stream{0x0003: {0x01}, 0x0101: {0xFF, 0xEE}},
	}
	b, err := reg.Marshal(in)
	require.NoError(t, err)

	out, err := reg.Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestUnknownTypeIsReported(t *testing.T) {
	testlog.Start(t)

	reg := NewControlRegistry()
	_, err := reg.Unmarshal([]byte{0x01, 0x00})
	require.ErrorIs(t, err, payload.ErrUnknownType)

	var unknown *payload.UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, payload.TypeID(1), unknown.ID)
}
