// Package storage locates contract storage slots that have no dedicated
// accessor and reads them through an ordered list of address candidates.
package storage

import (
	"fmt"

	"github.com/colorfulnotion/zylith/felt"
	"github.com/colorfulnotion/zylith/selector"
	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
)

// Candidate is one plausible slot address for a logical field.
type Candidate struct {
	Name    string
	Address felt.Felt
}

// CandidateFunc computes a candidate on demand, so later formulas are never
// evaluated once an earlier one resolves.
type CandidateFunc func() (Candidate, error)

// VariableAddress returns the base address of a storage variable: sn_keccak(name).
func VariableAddress(name string) (felt.Felt, error) {
	if _, err := selector.FromName(name); err != nil {
		return felt.Zero, err
	}
	return selector.Keccak([]byte(name)), nil
}

// Pedersen is the two-input Starknet hash used to derive nested storage addresses.
func Pedersen(a, b felt.Felt) felt.Felt {
	h := pedersenhash.Pedersen(a.Impl(), b.Impl())
	return felt.FromElement(&h)
}

// NodeField is the canonical address of field inside the storage node node:
// pedersen(sn_keccak(node), sn_keccak(field)).
func NodeField(node, field string) CandidateFunc {
	return func() (Candidate, error) {
		base, err := VariableAddress(node)
		if err != nil {
			return Candidate{}, err
		}
		member, err := VariableAddress(field)
		if err != nil {
			return Candidate{}, err
		}
		return Candidate{
			Name:    fmt.Sprintf("pedersen(%s,%s)", node, field),
			Address: Pedersen(base, member),
		}, nil
	}
}

// NodeOffset is the legacy linear layout: sn_keccak(node) + offset.
func NodeOffset(node string, offset uint64) CandidateFunc {
	return func() (Candidate, error) {
		base, err := VariableAddress(node)
		if err != nil {
			return Candidate{}, err
		}
		name := node
		if offset > 0 {
			name = fmt.Sprintf("%s+%d", node, offset)
		}
		return Candidate{
			Name:    name,
			Address: base.Add(felt.FromUint64(offset)),
		}, nil
	}
}

// Fixed wraps an already known address.
func Fixed(name string, addr felt.Felt) CandidateFunc {
	return func() (Candidate, error) {
		return Candidate{Name: name, Address: addr}, nil
	}
}
