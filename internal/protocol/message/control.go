package message

import (
	"errors"
	"fmt"

	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/strict"
	"github.com/danmuck/lnpnet/internal/protocol/tlv"
)

const (
	TypeInit  payload.TypeID = 16
	TypeError payload.TypeID = 17
	TypePing  payload.TypeID = 18
	TypePong  payload.TypeID = 19
)

// TLV types carried by Init.
const (
	InitTLVNetworks uint16 = 1
)

// NoPongThreshold is the smallest NumPongBytes value that asks the peer not
// to answer.
const NoPongThreshold = 65532

var ErrPongNotRequested = errors.New("message: ping does not request a pong")

// Hash32 is a fixed 32-byte identifier such as a chain hash or channel id.
type Hash32 [32]byte

func writeHash32(e *strict.Encoder, h Hash32) {
	e.WriteFixed(h[:])
}

func readHash32(d *strict.Decoder) (Hash32, error) {
	var h Hash32
	b, err := d.ReadFixed(len(h))
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// Init is the first message each side sends on a new session.
type Init struct {
	GlobalFeatures []byte
	LocalFeatures  []byte
	Networks       []Hash32
	Unknown        tlv.Stream
}

var initTLV = tlv.MustSchema(
	tlv.Seq(InitTLVNetworks, func(m *Init) *[]Hash32 { return &m.Networks }, writeHash32, readHash32),
).WithUnknown(func(m *Init) *tlv.Stream { return &m.Unknown })

func (Init) TypeID() payload.TypeID { return TypeInit }

func (m Init) EncodeStrict(e *strict.Encoder) {
	e.WriteLenBytes(m.GlobalFeatures)
	e.WriteLenBytes(m.LocalFeatures)
	initTLV.Encode(e, &m)
}

func (m *Init) DecodeStrict(d *strict.Decoder) (err error) {
	if m.GlobalFeatures, err = d.ReadLenBytes(); err != nil {
		return err
	}
	if m.LocalFeatures, err = d.ReadLenBytes(); err != nil {
		return err
	}
	return initTLV.Decode(d, m)
}

// Error reports a failure, optionally scoped to one channel. An all-zero
// ChannelID refers to every channel with the peer.
type Error struct {
	ChannelID Hash32
	Data      []byte
}

func (Error) TypeID() payload.TypeID { return TypeError }

func (m Error) EncodeStrict(e *strict.Encoder) {
	writeHash32(e, m.ChannelID)
	e.WriteLenBytes(m.Data)
}

func (m *Error) DecodeStrict(d *strict.Decoder) (err error) {
	if m.ChannelID, err = readHash32(d); err != nil {
		return err
	}
	m.Data, err = d.ReadLenBytes()
	return err
}

func (m Error) Error() string {
	return fmt.Sprintf("peer error: %s", m.Data)
}

// Ping asks the peer to answer with a Pong of NumPongBytes padding.
type Ping struct {
	NumPongBytes uint16
	Ignored      []byte
}

func (Ping) TypeID() payload.TypeID { return TypePing }

func (m Ping) EncodeStrict(e *strict.Encoder) {
	e.WriteU16(m.NumPongBytes)
	e.WriteLenBytes(m.Ignored)
}

func (m *Ping) DecodeStrict(d *strict.Decoder) (err error) {
	if m.NumPongBytes, err = d.ReadU16(); err != nil {
		return err
	}
	m.Ignored, err = d.ReadLenBytes()
	return err
}

// Reply builds the Pong answering m.
func (m Ping) Reply() (*Pong, error) {
	if m.NumPongBytes >= NoPongThreshold {
		return nil, ErrPongNotRequested
	}
	return &Pong{Ignored: make([]byte, m.NumPongBytes)}, nil
}

type Pong struct {
	Ignored []byte
}

func (Pong) TypeID() payload.TypeID { return TypePong }

func (m Pong) EncodeStrict(e *strict.Encoder) {
	e.WriteLenBytes(m.Ignored)
}

func (m *Pong) DecodeStrict(d *strict.Decoder) (err error) {
	m.Ignored, err = d.ReadLenBytes()
	return err
}

// NewControlRegistry returns a registry holding Init, Error, Ping and Pong.
func NewControlRegistry() *payload.Registry {
	r := payload.NewRegistry("control")
	payload.MustRegisterStrict[Init](r, TypeInit)
	payload.MustRegisterStrict[Error](r, TypeError)
	payload.MustRegisterStrict[Ping](r, TypePing)
	payload.MustRegisterStrict[Pong](r, TypePong)
	return r
}
