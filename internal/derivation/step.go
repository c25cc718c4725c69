// Package derivation models key derivation steps and path templates.
//
// Steps are totally ordered: first by kind (normal, hardened, wildcard,
// hardened wildcard), then by index. The order is stable across releases
// so steps can key sorted containers and encoded indexes.
package derivation

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/danmuck/lnpnet/internal/protocol/strict"
)

var (
	ErrIndexOverflow = errors.New("derivation: index out of range")
	ErrInvalidStep   = errors.New("derivation: invalid step")
	ErrInvalidKind   = errors.New("derivation: invalid step kind")
	ErrWildcard      = errors.New("derivation: wildcard has no child number")
)

// MaxIndex is the largest index of a normal or hardened step.
const MaxIndex = hdkeychain.HardenedKeyStart - 1

type Kind uint8

const (
	KindNormal Kind = iota
	KindHardened
	KindWildcard
	KindHardenedWildcard
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindHardened:
		return "hardened"
	case KindWildcard:
		return "wildcard"
	case KindHardenedWildcard:
		return "hardened-wildcard"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) Hardened() bool { return k == KindHardened || k == KindHardenedWildcard }

func (k Kind) Wildcard() bool { return k == KindWildcard || k == KindHardenedWildcard }

// Step is one element of a derivation path. Wildcards always carry index 0.
type Step struct {
	Kind  Kind
	Index uint32
}

func Normal(i uint32) Step   { return Step{Kind: KindNormal, Index: i} }
func Hardened(i uint32) Step { return Step{Kind: KindHardened, Index: i} }

var (
	Wildcard         = Step{Kind: KindWildcard}
	HardenedWildcard = Step{Kind: KindHardenedWildcard}
)

// Compare orders by kind, then by index.
func Compare(a, b Step) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

func (s Step) Less(o Step) bool { return Compare(s, o) < 0 }

func (s Step) Validate() error {
	switch {
	case s.Kind > KindHardenedWildcard:
		return fmt.Errorf("%w: %d", ErrInvalidKind, s.Kind)
	case s.Kind.Wildcard() && s.Index != 0:
		return fmt.Errorf("%w: wildcard with index %d", ErrInvalidStep, s.Index)
	case s.Index > MaxIndex:
		return fmt.Errorf("%w: %d", ErrIndexOverflow, s.Index)
	}
	return nil
}

func (s Step) String() string {
	switch s.Kind {
	case KindHardened:
		return strconv.FormatUint(uint64(s.Index), 10) + "h"
	case KindWildcard:
		return "*"
	case KindHardenedWildcard:
		return "*h"
	default:
		return strconv.FormatUint(uint64(s.Index), 10)
	}
}

// ParseStep accepts "7", "7h", "7'", "*", "*h" and "*'".
func ParseStep(s string) (Step, error) {
	raw := strings.TrimSpace(s)
	hardened := false
	if cut, ok := strings.CutSuffix(raw, "h"); ok {
		raw, hardened = cut, true
	} else if cut, ok := strings.CutSuffix(raw, "'"); ok {
		raw, hardened = cut, true
	}
	if raw == "*" {
		if hardened {
			return HardenedWildcard, nil
		}
		return Wildcard, nil
	}
	if raw == "" || raw[0] == '+' || raw[0] == '-' {
		return Step{}, fmt.Errorf("%w: %q", ErrInvalidStep, s)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Step{}, fmt.Errorf("%w: %q", ErrIndexOverflow, s)
		}
		return Step{}, fmt.Errorf("%w: %q", ErrInvalidStep, s)
	}
	if n > MaxIndex {
		return Step{}, fmt.Errorf("%w: %q", ErrIndexOverflow, s)
	}
	if hardened {
		return Hardened(uint32(n)), nil
	}
	return Normal(uint32(n)), nil
}

// FromChildNumber maps a BIP32 child number to its step.
func FromChildNumber(n uint32) Step {
	if n >= hdkeychain.HardenedKeyStart {
		return Hardened(n - hdkeychain.HardenedKeyStart)
	}
	return Normal(n)
}

// ChildNumber is the BIP32 child number of a concrete step.
func (s Step) ChildNumber() (uint32, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	switch s.Kind {
	case KindNormal:
		return s.Index, nil
	case KindHardened:
		return s.Index + hdkeychain.HardenedKeyStart, nil
	default:
		return 0, ErrWildcard
	}
}

func (s Step) TryIncrement() (Step, error) {
	if s.Kind.Wildcard() {
		return s, ErrWildcard
	}
	if s.Index >= MaxIndex {
		return s, fmt.Errorf("%w: %s + 1", ErrIndexOverflow, s)
	}
	s.Index++
	return s, nil
}

func (s Step) TryDecrement() (Step, error) {
	if s.Kind.Wildcard() {
		return s, ErrWildcard
	}
	if s.Index == 0 {
		return s, fmt.Errorf("%w: %s - 1", ErrIndexOverflow, s)
	}
	s.Index--
	return s, nil
}

// EncodeStrict writes the kind byte followed by the index.
func (s Step) EncodeStrict(e *strict.Encoder) {
	if err := s.Validate(); err != nil {
		e.Fail(err)
		return
	}
	e.WriteU8(uint8(s.Kind))
	e.WriteU32(s.Index)
}

func (s *Step) DecodeStrict(d *strict.Decoder) error {
	kind, err := d.ReadU8()
	if err != nil {
		return err
	}
	index, err := d.ReadU32()
	if err != nil {
		return err
	}
	step := Step{Kind: Kind(kind), Index: index}
	if err := step.Validate(); err != nil {
		return err
	}
	*s = step
	return nil
}
