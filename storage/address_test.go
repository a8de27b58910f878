package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/colorfulnotion/zylith/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPedersenVector(t *testing.T) {
	a := felt.MustParse("0x03d937c035c878245caf64531a5756109c53068da139362728feb561405371cb")
	b := felt.MustParse("0x0208a0a10250e382e1e4bbe2880906c2791bf6275695e02fbbc6aeff9cd8b31a")
	want := felt.MustParse("0x030e480bed5fe53fa909cc0f8c4d99b8f9f2c016be4c41e13a4848797979c662")
	assert.Equal(t, want.Short(), Pedersen(a, b).Short())
}

func TestVariableAddress(t *testing.T) {
	addr, err := VariableAddress("pool")
	require.NoError(t, err)
	assert.Equal(t, "0x35b2940ca10a9581573918a0d9ed2422f97cc9196f63510c77f5a0ed5393cfd", addr.Short())
}

func TestNodeCandidates(t *testing.T) {
	base, err := VariableAddress("pool")
	require.NoError(t, err)
	token0, err := VariableAddress("token0")
	require.NoError(t, err)

	c, err := NodeField("pool", "token0")()
	require.NoError(t, err)
	assert.Equal(t, Pedersen(base, token0), c.Address)
	assert.Equal(t, "pedersen(pool,token0)", c.Name)

	c, err = NodeOffset("pool", 0)()
	require.NoError(t, err)
	assert.Equal(t, base, c.Address)
	assert.Equal(t, "pool", c.Name)

	c, err = NodeOffset("pool", 1)()
	require.NoError(t, err)
	assert.Equal(t, base.Add(felt.One), c.Address)
	assert.Equal(t, "pool+1", c.Name)

	t1, err := NodeField("pool", "token1")()
	require.NoError(t, err)
	assert.NotEqual(t, t1.Address, Pedersen(base, token0))
}

func TestFirstNonZero(t *testing.T) {
	calls := 0
	probe := func(v uint64, err error) Probe[uint64] {
		return func(context.Context) (uint64, error) {
			calls++
			return v, err
		}
	}

	v, idx := FirstNonZero(context.Background(),
		probe(0, nil),
		probe(7, errors.New("ignored value with error")),
		probe(3, nil),
		probe(4, nil),
	)
	assert.Equal(t, uint64(3), v)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 3, calls)

	_, idx = FirstNonZero[uint64](context.Background(), probe(0, nil))
	assert.Equal(t, -1, idx)

	_, idx = FirstNonZero[uint64](context.Background())
	assert.Equal(t, -1, idx)
}
