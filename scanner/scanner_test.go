package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/colorfulnotion/zylith/felt"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pool = felt.MustParse("0x04b9a2cdb7e3d4ae0c2e4a6e2a6f1ed8f1bb1b70d1a0f2f3b1b2c3d4e5f60718")

// fakeSource serves pre-built pages keyed by the continuation token that
// requests them.
type fakeSource struct {
	head    uint64
	headErr error
	pages   map[string]types.EventChunk
	errAt   map[string]error
	fetches []string
	filters []types.EventFilter
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeSource) Events(_ context.Context, filter types.EventFilter, continuation string, _ int) (types.EventChunk, error) {
	f.fetches = append(f.fetches, continuation)
	f.filters = append(f.filters, filter)
	if err := f.errAt[continuation]; err != nil {
		return types.EventChunk{}, err
	}
	return f.pages[continuation], nil
}

func depositEvent(commitment felt.Felt, leaf uint64, keys ...felt.Felt) types.EmittedEvent {
	if len(keys) == 0 {
		keys = []felt.Felt{DefaultDepositSelector}
	}
	block := uint64(4438500)
	return types.EmittedEvent{
		FromAddress: pool,
		Keys:        keys,
		Data:        []felt.Felt{commitment, felt.FromUint64(leaf), felt.FromUint64(0)},
		BlockNumber: &block,
	}
}

func otherEvent() types.EmittedEvent {
	return types.EmittedEvent{
		FromAddress: pool,
		Keys:        []felt.Felt{felt.FromUint64(0x1234)},
		Data:        []felt.Felt{felt.FromUint64(1), felt.FromUint64(2), felt.FromUint64(3)},
	}
}

func TestPagerFollowsCursors(t *testing.T) {
	src := &fakeSource{pages: map[string]types.EventChunk{
		"":   {ContinuationToken: "c1"},
		"c1": {ContinuationToken: "c2"},
		"c2": {},
	}}
	p := NewPager(src, types.EventFilter{}, 0)
	ctx := context.Background()

	n := 0
	for {
		_, ok, err := p.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, p.Pages())
	assert.Equal(t, []string{"", "c1", "c2"}, src.fetches)

	// exhausted pager does not fetch again
	_, ok, err := p.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, src.fetches, 3)

	p.Reset()
	assert.Zero(t, p.Pages())
	_, ok, err = p.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", p.Cursor())
}

func TestFindCommitmentSecondPage(t *testing.T) {
	target := felt.MustParse("0xabc")
	src := &fakeSource{
		head: 4500000,
		pages: map[string]types.EventChunk{
			"": {
				Events:            []types.EmittedEvent{otherEvent(), depositEvent(felt.FromUint64(1), 0)},
				ContinuationToken: "c1",
			},
			"c1": {
				Events:            []types.EmittedEvent{depositEvent(felt.FromUint64(2), 1), depositEvent(target, 42)},
				ContinuationToken: "c2",
			},
			"c2": {Events: []types.EmittedEvent{depositEvent(felt.FromUint64(3), 43)}},
		},
	}
	s := New(src, pool, DefaultConfig())
	res, err := s.FindCommitment(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, uint32(42), res.LeafIndex)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 4, res.EventsSearched)
	assert.Equal(t, 3, res.DepositsSeen)
	assert.Equal(t, []string{"", "c1"}, src.fetches, "scan must stop at the first match")

	// the filter spans deployment to head and carries no keys
	f := src.filters[0]
	require.NotNil(t, f.FromBlock)
	require.NotNil(t, f.ToBlock)
	assert.Equal(t, DefaultDeploymentBlock, *f.FromBlock.Number)
	assert.Equal(t, uint64(4500000), *f.ToBlock.Number)
	assert.Empty(t, f.Keys)
	assert.Equal(t, pool, *f.Address)
}

func TestFindCommitmentPaddingInsensitive(t *testing.T) {
	var ev types.EmittedEvent
	raw := `{
		"from_address": "0x1",
		"keys": ["0x9149d2123147c5f43d258257fef0b7b969db78269369ebcf5ebb9eef8592f2"],
		"data": ["0x0000000000000000000000000000000000000000000000000000000000000abc", "0x07", "0x0"],
		"transaction_hash": "0x99"
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	src := &fakeSource{
		head:  DefaultDeploymentBlock + 10,
		pages: map[string]types.EventChunk{"": {Events: []types.EmittedEvent{ev}}},
	}
	res, err := New(src, pool, DefaultConfig()).FindCommitment(context.Background(), felt.MustParse("0xABC"))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, uint32(7), res.LeafIndex)
}

func TestFindCommitmentNotFound(t *testing.T) {
	src := &fakeSource{
		head: DefaultDeploymentBlock + 1,
		pages: map[string]types.EventChunk{
			"":   {Events: []types.EmittedEvent{depositEvent(felt.FromUint64(1), 0)}, ContinuationToken: "c1"},
			"c1": {Events: []types.EmittedEvent{otherEvent()}},
		},
	}
	res, err := New(src, pool, DefaultConfig()).FindCommitment(context.Background(), felt.FromUint64(77))
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.EventsSearched)
	assert.Equal(t, 1, res.DepositsSeen)
}

func TestFindCommitmentPageError(t *testing.T) {
	src := &fakeSource{
		head: DefaultDeploymentBlock + 1,
		pages: map[string]types.EventChunk{
			"": {Events: []types.EmittedEvent{depositEvent(felt.FromUint64(1), 0)}, ContinuationToken: "c1"},
		},
		errAt: map[string]error{"c1": errors.New("connection reset")},
	}
	_, err := New(src, pool, DefaultConfig()).FindCommitment(context.Background(), felt.FromUint64(77))
	require.Error(t, err)
	assert.ErrorIs(t, err, poolerrors.ErrRemoteCallFailure)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFindCommitmentHeadError(t *testing.T) {
	src := &fakeSource{headErr: errors.New("dial tcp: refused")}
	_, err := New(src, pool, DefaultConfig()).FindCommitment(context.Background(), felt.One)
	assert.ErrorIs(t, err, poolerrors.ErrRemoteCallFailure)
	assert.Empty(t, src.fetches)
}

func TestFindCommitmentHeadBelowDeployment(t *testing.T) {
	src := &fakeSource{head: 10}
	res, err := New(src, pool, DefaultConfig()).FindCommitment(context.Background(), felt.One)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, src.fetches)
}

func TestParseDeposit(t *testing.T) {
	c := felt.FromUint64(5)

	d, ok := ParseDeposit(depositEvent(c, 3), DefaultDepositSelector)
	require.True(t, ok)
	assert.Equal(t, c, d.Commitment)
	assert.Equal(t, uint32(3), d.LeafIndex)
	assert.Equal(t, uint64(4438500), d.BlockNumber)

	// selector at a later key position, as nested component events emit it
	d, ok = ParseDeposit(depositEvent(c, 4, felt.FromUint64(0xdead), DefaultDepositSelector), DefaultDepositSelector)
	require.True(t, ok)
	assert.Equal(t, uint32(4), d.LeafIndex)

	short := depositEvent(c, 1)
	short.Data = short.Data[:2]
	_, ok = ParseDeposit(short, DefaultDepositSelector)
	assert.False(t, ok)

	_, ok = ParseDeposit(otherEvent(), DefaultDepositSelector)
	assert.False(t, ok)
}

func TestDepositsStopsEarly(t *testing.T) {
	src := &fakeSource{
		head: DefaultDeploymentBlock + 1,
		pages: map[string]types.EventChunk{
			"": {
				Events:            []types.EmittedEvent{depositEvent(felt.FromUint64(1), 0), otherEvent(), depositEvent(felt.FromUint64(2), 1)},
				ContinuationToken: "c1",
			},
			"c1": {Events: []types.EmittedEvent{depositEvent(felt.FromUint64(3), 2)}},
		},
	}
	s := New(src, pool, DefaultConfig())

	var leaves []uint32
	n, err := s.Deposits(context.Background(), func(d Deposit) bool {
		leaves = append(leaves, d.LeafIndex)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint32{0, 1, 2}, leaves)

	src.fetches = nil
	n, err = s.Deposits(context.Background(), func(d Deposit) bool { return d.LeafIndex < 1 })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{""}, src.fetches)
}
