package felt

import (
	"fmt"

	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/holiman/uint256"
)

const halfBytes = 16

// Uint256 is a Cairo u256: two 128-bit halves carried in separate field elements.
type Uint256 struct {
	Low  uint256.Int
	High uint256.Int
}

// DecodeU256 reassembles a (low, high) pair returned by a contract. Each half
// is taken from the low 16 bytes of its big-endian form; a half with any bit
// set above 2^128 violates the u256 layout and is rejected.
func DecodeU256(low, high Felt) (Uint256, error) {
	var out Uint256
	if err := decodeHalf(&out.Low, low); err != nil {
		return Uint256{}, fmt.Errorf("low half: %w", err)
	}
	if err := decodeHalf(&out.High, high); err != nil {
		return Uint256{}, fmt.Errorf("high half: %w", err)
	}
	return out, nil
}

func decodeHalf(dst *uint256.Int, f Felt) error {
	b := f.Bytes()
	for _, v := range b[:Bytes-halfBytes] {
		if v != 0 {
			return fmt.Errorf("%w: %s does not fit in 128 bits", poolerrors.ErrProtocolMismatch, f)
		}
	}
	dst.SetBytes(b[Bytes-halfBytes:])
	return nil
}

// Int returns Low + High * 2^128.
func (u Uint256) Int() *uint256.Int {
	v := new(uint256.Int).Lsh(&u.High, 128)
	return v.Or(v, &u.Low)
}

// IsZero reports whether both halves are zero.
func (u Uint256) IsZero() bool {
	return u.Low.IsZero() && u.High.IsZero()
}

// String renders the reassembled value in decimal.
func (u Uint256) String() string {
	return u.Int().Dec()
}

// Felts encodes u back into its (low, high) calldata form.
func (u Uint256) Felts() [2]Felt {
	lo := u.Low.Bytes32()
	hi := u.High.Bytes32()
	var out [2]Felt
	out[0].val.SetBytes(lo[:])
	out[1].val.SetBytes(hi[:])
	return out
}
