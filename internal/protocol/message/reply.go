package message

import (
	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/strict"
)

const (
	TypeFailure       payload.TypeID = 0x0001
	TypeSuccess       payload.TypeID = 0x0003
	TypeSuccessNoArgs payload.TypeID = 0x0005
	TypeKeylist       payload.TypeID = 0x0103
)

// Failure carries a human readable error from the remote service.
type Failure struct {
	Message string
}

func (Failure) TypeID() payload.TypeID { return TypeFailure }

func (m Failure) EncodeStrict(e *strict.Encoder) { e.WriteString(m.Message) }

func (m *Failure) DecodeStrict(d *strict.Decoder) (err error) {
	m.Message, err = d.ReadString()
	return err
}

type Success struct{}

func (Success) TypeID() payload.TypeID              { return TypeSuccess }
func (Success) EncodeStrict(*strict.Encoder)        {}
func (*Success) DecodeStrict(*strict.Decoder) error { return nil }

type SuccessNoArgs struct{}

func (SuccessNoArgs) TypeID() payload.TypeID              { return TypeSuccessNoArgs }
func (SuccessNoArgs) EncodeStrict(*strict.Encoder)        {}
func (*SuccessNoArgs) DecodeStrict(*strict.Decoder) error { return nil }

type Keylist struct {
	Keys []byte
}

func (Keylist) TypeID() payload.TypeID { return TypeKeylist }

func (m Keylist) EncodeStrict(e *strict.Encoder) { e.WriteLenBytes(m.Keys) }

func (m *Keylist) DecodeStrict(d *strict.Decoder) (err error) {
	m.Keys, err = d.ReadLenBytes()
	return err
}

// NewReplyRegistry returns a registry holding the generic reply set.
func NewReplyRegistry() *payload.Registry {
	r := payload.NewRegistry("reply")
	payload.MustRegisterStrict[Failure](r, TypeFailure)
	payload.MustRegisterStrict[Success](r, TypeSuccess)
	payload.MustRegisterStrict[SuccessNoArgs](r, TypeSuccessNoArgs)
	payload.MustRegisterStrict[Keylist](r, TypeKeylist)
	return r
}
