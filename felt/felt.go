// Package felt provides the Starknet field element and the numeric codecs built on it.
package felt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Bytes is the canonical big-endian width of a field element.
const Bytes = fp.Bytes

// maxHexDigits is the widest hex string accepted by Parse.
const maxHexDigits = 2 * Bytes

var modulus = fp.Modulus()

// Felt is an element of the Stark prime field P = 2^251 + 17*2^192 + 1.
// The zero value is the field zero.
type Felt struct {
	val fp.Element
}

var (
	Zero = Felt{}
	One  = FromUint64(1)
)

// FromUint64 converts v into a field element.
func FromUint64(v uint64) Felt {
	var f Felt
	f.val.SetUint64(v)
	return f
}

// FromElement wraps a gnark-crypto field element.
func FromElement(e *fp.Element) Felt {
	return Felt{val: *e}
}

// FromBigInt converts b into a field element. Negative values and values
// that do not fit below the modulus are rejected rather than reduced.
func FromBigInt(b *big.Int) (Felt, error) {
	if b == nil || b.Sign() < 0 {
		return Zero, fmt.Errorf("%w: negative or nil integer", poolerrors.ErrInvalidInput)
	}
	if b.Cmp(modulus) >= 0 {
		return Zero, fmt.Errorf("%w: 0x%s exceeds field modulus", poolerrors.ErrInvalidInput, b.Text(16))
	}
	var f Felt
	f.val.SetBigInt(b)
	return f, nil
}

// FromBytes interprets b as a big-endian integer. Inputs longer than Bytes
// are accepted only when the extra leading bytes are zero.
func FromBytes(b []byte) (Felt, error) {
	return FromBigInt(new(big.Int).SetBytes(b))
}

// Parse decodes a hexadecimal scalar with an optional 0x prefix.
func Parse(s string) (Felt, error) {
	raw := strings.TrimSpace(s)
	digits := raw
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	if digits == "" {
		return Zero, fmt.Errorf("%w: empty hex scalar %q", poolerrors.ErrInvalidInput, s)
	}
	if len(digits) > maxHexDigits {
		return Zero, fmt.Errorf("%w: hex scalar %q longer than %d digits", poolerrors.ErrInvalidInput, s, maxHexDigits)
	}
	for _, c := range digits {
		if !isHexDigit(c) {
			return Zero, fmt.Errorf("%w: invalid hex digit %q in %q", poolerrors.ErrInvalidInput, c, s)
		}
	}
	b, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return Zero, fmt.Errorf("%w: cannot parse %q", poolerrors.ErrInvalidInput, s)
	}
	return FromBigInt(b)
}

// MustParse is like Parse but panics on error. Only use it with literals.
func MustParse(s string) Felt {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// Impl exposes the underlying gnark-crypto element.
func (f *Felt) Impl() *fp.Element {
	return &f.val
}

// Bytes returns the canonical big-endian encoding.
func (f Felt) Bytes() [Bytes]byte {
	return f.val.Bytes()
}

// BigInt returns f as an arbitrary precision unsigned integer.
func (f Felt) BigInt() *big.Int {
	return f.val.BigInt(new(big.Int))
}

// Uint32 returns the low 4 bytes of the big-endian encoding.
func (f Felt) Uint32() uint32 {
	b := f.Bytes()
	return binary.BigEndian.Uint32(b[Bytes-4:])
}

// Uint64 returns the low 8 bytes of the big-endian encoding.
func (f Felt) Uint64() uint64 {
	b := f.Bytes()
	return binary.BigEndian.Uint64(b[Bytes-8:])
}

func (f Felt) IsZero() bool {
	return f.val.IsZero()
}

func (f Felt) Equal(o Felt) bool {
	return f.val.Equal(&o.val)
}

// Add returns f + o mod P.
func (f Felt) Add(o Felt) Felt {
	var r Felt
	r.val.Add(&f.val, &o.val)
	return r
}

// Padded returns the 0x-prefixed, 64 digit zero-padded hex form.
func (f Felt) Padded() string {
	b := f.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// Short returns the 0x-prefixed hex form without leading zeros. Zero is "0x0".
func (f Felt) Short() string {
	return "0x" + f.BigInt().Text(16)
}

func (f Felt) String() string {
	return f.Short()
}

// MarshalText encodes f as a short hex string, the form Starknet JSON-RPC expects.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.Short()), nil
}

// UnmarshalText decodes a hex string produced by a Starknet node.
func (f *Felt) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
