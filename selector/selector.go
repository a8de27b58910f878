// Package selector derives Starknet entry point and event selectors.
package selector

import (
	"fmt"

	"github.com/colorfulnotion/zylith/felt"
	"github.com/colorfulnotion/zylith/poolerrors"
	"golang.org/x/crypto/sha3"
)

// Entry points that the sequencer addresses with the zero selector.
const (
	DefaultEntryPoint   = "__default__"
	L1DefaultEntryPoint = "__l1_default__"
)

// Keccak returns keccak256(data) truncated to its low 250 bits, which always
// fits in a field element.
func Keccak(data []byte) felt.Felt {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	h := hash.Sum(nil)
	h[0] &= 0x03
	f, err := felt.FromBytes(h)
	if err != nil {
		// 250 bits is always below the field modulus.
		panic(err)
	}
	return f
}

// FromName returns the selector for a function or event name. Names must be
// ASCII; anything else is rejected instead of silently mapping to zero.
func FromName(name string) (felt.Felt, error) {
	if name == DefaultEntryPoint || name == L1DefaultEntryPoint {
		return felt.Zero, nil
	}
	for i := 0; i < len(name); i++ {
		if name[i] > 0x7f {
			return felt.Zero, fmt.Errorf("%w: selector name %q is not ascii", poolerrors.ErrInvalidInput, name)
		}
	}
	return Keccak([]byte(name)), nil
}

// MustFromName is like FromName but panics on error. Only use it with literals.
func MustFromName(name string) felt.Felt {
	f, err := FromName(name)
	if err != nil {
		panic(err)
	}
	return f
}
