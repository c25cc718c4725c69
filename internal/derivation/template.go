package derivation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/danmuck/lnpnet/internal/protocol/strict"
)

var ErrWildcardPosition = errors.New("derivation: wildcard must be the last step")

// Template is a derivation path from a master key, optionally ending in a
// wildcard that is filled in per derived key.
type Template []Step

// ParseTemplate reads paths such as "m/0h/1/*". The leading "m/" is
// optional.
func ParseTemplate(s string) (Template, error) {
	raw := strings.TrimSpace(s)
	if raw == "m" || raw == "" {
		return Template{}, nil
	}
	raw = strings.TrimPrefix(raw, "m/")
	parts := strings.Split(raw, "/")
	t := make(Template, 0, len(parts))
	for _, part := range parts {
		step, err := ParseStep(part)
		if err != nil {
			return nil, err
		}
		t = append(t, step)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t Template) Validate() error {
	for i, step := range t {
		if err := step.Validate(); err != nil {
			return err
		}
		if step.Kind.Wildcard() && i != len(t)-1 {
			return fmt.Errorf("%w: step %d of %s", ErrWildcardPosition, i, t)
		}
	}
	return nil
}

func (t Template) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, step := range t {
		b.WriteByte('/')
		b.WriteString(step.String())
	}
	return b.String()
}

// Ranged reports whether the template ends in a wildcard.
func (t Template) Ranged() bool {
	return len(t) > 0 && t[len(t)-1].Kind.Wildcard()
}

// At returns the child numbers of the path with the wildcard, if any,
// replaced by index.
func (t Template) At(index uint32) ([]uint32, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if index > MaxIndex {
		return nil, fmt.Errorf("%w: %d", ErrIndexOverflow, index)
	}
	out := make([]uint32, 0, len(t))
	for _, step := range t {
		switch step.Kind {
		case KindWildcard:
			step = Normal(index)
		case KindHardenedWildcard:
			step = Hardened(index)
		}
		n, err := step.ChildNumber()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Derive walks master down the path At(index).
func (t Template) Derive(master *hdkeychain.ExtendedKey, index uint32) (*hdkeychain.ExtendedKey, error) {
	path, err := t.At(index)
	if err != nil {
		return nil, err
	}
	key := master
	for _, n := range path {
		if key, err = key.Derive(n); err != nil {
			return nil, fmt.Errorf("derivation: derive %s at %d: %w", t, index, err)
		}
	}
	return key, nil
}

// DeriveKey returns the private key at index.
func (t Template) DeriveKey(master *hdkeychain.ExtendedKey, index uint32) (*btcec.PrivateKey, error) {
	key, err := t.Derive(master, index)
	if err != nil {
		return nil, err
	}
	return key.ECPrivKey()
}

func (t Template) EncodeStrict(e *strict.Encoder) {
	if err := t.Validate(); err != nil {
		e.Fail(err)
		return
	}
	strict.WriteSeq(e, t, func(e *strict.Encoder, s Step) { s.EncodeStrict(e) })
}

func (t *Template) DecodeStrict(d *strict.Decoder) error {
	steps, err := strict.ReadSeq(d, func(d *strict.Decoder) (Step, error) {
		var s Step
		err := s.DecodeStrict(d)
		return s, err
	})
	if err != nil {
		return err
	}
	if err := Template(steps).Validate(); err != nil {
		return err
	}
	*t = steps
	return nil
}
