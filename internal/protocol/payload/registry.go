// Package payload maps numeric message type ids to typed message values.
//
// The wire envelope is the type id as u16 little-endian followed by the
// strict-encoded payload.
package payload

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/danmuck/lnpnet/internal/protocol/strict"
	"github.com/rs/zerolog/log"
)

// TypeID identifies a message variant within one registry.
type TypeID uint16

func (id TypeID) String() string {
	return fmt.Sprintf("0x%04x", uint16(id))
}

// Message is a value that can be sent through a registry.
type Message interface {
	strict.Encodable
	TypeID() TypeID
}

// DecodeFunc rebuilds a message from its payload bytes. The payload must be
// consumed completely.
type DecodeFunc func(payload []byte) (Message, error)

// EncodeFunc returns the payload bytes of a message.
type EncodeFunc func(Message) ([]byte, error)

var (
	ErrUnknownType   = errors.New("payload: unknown type id")
	ErrDuplicateType = errors.New("payload: type id already registered")
	ErrTypeMismatch  = errors.New("payload: message does not match registered type")
	ErrNilMessage    = errors.New("payload: nil message")
	ErrShortEnvelope = fmt.Errorf("payload: short envelope: %w", strict.ErrUnexpectedEOF)
)

// UnknownTypeError carries the id that has no registered decoder.
type UnknownTypeError struct {
	Registry string
	ID       TypeID
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("payload: %s: unknown type id %s", e.Registry, e.ID)
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType
}

type binding struct {
	encode EncodeFunc
	decode DecodeFunc
	goType reflect.Type
}

// Registry is a set of message variants keyed by TypeID. Registration is
// expected at setup time; lookups are safe for concurrent use.
type Registry struct {
	name string

	mu    sync.RWMutex
	types map[TypeID]binding
}

func NewRegistry(name string) *Registry {
	return &Registry{name: name, types: make(map[TypeID]binding)}
}

func (r *Registry) Name() string {
	return r.name
}

// Register binds id to its codec functions. Registering an id twice is an
// error.
func (r *Registry) Register(id TypeID, encode EncodeFunc, decode DecodeFunc) error {
	return r.register(id, binding{encode: encode, decode: decode})
}

func (r *Registry) register(id TypeID, b binding) error {
	if b.encode == nil || b.decode == nil {
		return fmt.Errorf("payload: %s: type %s registered without codec", r.name, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[id]; exists {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateType, id, r.name)
	}
	r.types[id] = b
	log.Debug().Str("registry", r.name).Stringer("type_id", id).Msg("payload type registered")
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (r *Registry) MustRegister(id TypeID, encode EncodeFunc, decode DecodeFunc) {
	if err := r.Register(id, encode, decode); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(id TypeID) (binding, error) {
	r.mu.RLock()
	b, ok := r.types[id]
	r.mu.RUnlock()
	if !ok {
		return binding{}, &UnknownTypeError{Registry: r.name, ID: id}
	}
	return b, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id TypeID) bool {
	_, err := r.lookup(id)
	return err == nil
}

// Types returns every registered id in ascending order.
func (r *Registry) Types() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeID, 0, len(r.types))
	for id := range r.types {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// TypeOf returns the id of an already constructed message and checks it is
// registered here.
func (r *Registry) TypeOf(m Message) (TypeID, error) {
	if IsNil(m) {
		return 0, ErrNilMessage
	}
	id := m.TypeID()
	b, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	if b.goType != nil && !sameType(reflect.TypeOf(m), b.goType) {
		return 0, fmt.Errorf("%w: %s is %T", ErrTypeMismatch, id, m)
	}
	return id, nil
}

// IsNil reports whether m is nil or a nil pointer behind the interface.
func IsNil(m Message) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// sameType accepts both M and *M for a type registered as *M.
func sameType(got, want reflect.Type) bool {
	return got == want || reflect.PointerTo(got) == want
}

// Encode returns the payload bytes of m without the type id.
func (r *Registry) Encode(m Message) ([]byte, error) {
	id, err := r.TypeOf(m)
	if err != nil {
		return nil, err
	}
	b, _ := r.lookup(id)
	return b.encode(m)
}

// Dispatch decodes payload with the decoder registered for id.
func (r *Registry) Dispatch(id TypeID, payload []byte) (Message, error) {
	b, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	m, err := b.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("payload: %s: decode %s: %w", r.name, id, err)
	}
	return m, nil
}

// Marshal returns the full envelope of m.
func (r *Registry) Marshal(m Message) ([]byte, error) {
	body, err := r.Encode(m)
	if err != nil {
		return nil, err
	}
	e := strict.NewEncoder()
	e.WriteU16(uint16(m.TypeID()))
	e.WriteFixed(body)
	return e.Bytes(), nil
}

// Unmarshal splits an envelope and dispatches its payload.
func (r *Registry) Unmarshal(envelope []byte) (Message, error) {
	d := strict.NewDecoder(envelope)
	id, err := d.ReadU16()
	if err != nil {
		return nil, ErrShortEnvelope
	}
	return r.Dispatch(TypeID(id), envelope[2:])
}

// decodable constrains P to a pointer to M that implements the strict codec.
type decodable[M any] interface {
	*M
	Message
	strict.Decodable
}

// RegisterStrict registers *M under id using its EncodeStrict and
// DecodeStrict methods. Decoded messages are returned as *M.
func RegisterStrict[M any, P decodable[M]](r *Registry, id TypeID) error {
	var probe P = new(M)
	if probe.TypeID() != id {
		return fmt.Errorf("%w: %T reports %s, registering as %s", ErrTypeMismatch, probe, probe.TypeID(), id)
	}
	return r.register(id, binding{
		encode: func(m Message) ([]byte, error) {
			return strict.Marshal(m)
		},
		decode: func(payload []byte) (Message, error) {
			var p P = new(M)
			if err := strict.Unmarshal(payload, p); err != nil {
				return nil, err
			}
			return p, nil
		},
		goType: reflect.TypeOf(probe),
	})
}

// MustRegisterStrict is RegisterStrict for package initialization.
func MustRegisterStrict[M any, P decodable[M]](r *Registry, id TypeID) {
	if err := RegisterStrict[M, P](r, id); err != nil {
		panic(err)
	}
}
