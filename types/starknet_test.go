package types

import (
	"encoding/json"
	"testing"

	"github.com/colorfulnotion/zylith/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIDJSON(t *testing.T) {
	raw, err := json.Marshal(Latest())
	require.NoError(t, err)
	assert.Equal(t, `"latest"`, string(raw))

	raw, err = json.Marshal(AtNumber(4438440))
	require.NoError(t, err)
	assert.Equal(t, `{"block_number":4438440}`, string(raw))

	h := felt.FromUint64(0xabc)
	raw, err = json.Marshal(BlockID{Hash: &h})
	require.NoError(t, err)
	assert.Equal(t, `{"block_hash":"0xabc"}`, string(raw))

	_, err = json.Marshal(BlockID{})
	assert.Error(t, err)
}

func TestFunctionCallJSON(t *testing.T) {
	call := FunctionCall{
		ContractAddress:    felt.FromUint64(1),
		EntryPointSelector: felt.FromUint64(2),
		Calldata:           []felt.Felt{},
	}
	raw, err := json.Marshal(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"contract_address":"0x1","entry_point_selector":"0x2","calldata":[]}`, string(raw))
}

func TestEmittedEventDecode(t *testing.T) {
	payload := `{
		"from_address": "0x10",
		"keys": ["0x1", "0x9149d2123147c5f43d258257fef0b7b969db78269369ebcf5ebb9eef8592f2"],
		"data": ["0x00000abc", "0x7", "0x0"],
		"block_number": 4438500,
		"transaction_hash": "0x99"
	}`
	var ev EmittedEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))

	assert.True(t, ev.HasKey(felt.MustParse("0x9149d2123147c5f43d258257fef0b7b969db78269369ebcf5ebb9eef8592f2")))
	assert.False(t, ev.HasKey(felt.FromUint64(2)))
	require.Len(t, ev.Data, 3)
	assert.Equal(t, "0xabc", ev.Data[0].Short())
	require.NotNil(t, ev.BlockNumber)
	assert.Equal(t, uint64(4438500), *ev.BlockNumber)
}

func TestEventChunkHasMore(t *testing.T) {
	var chunk EventChunk
	require.NoError(t, json.Unmarshal([]byte(`{"events":[],"continuation_token":"c1"}`), &chunk))
	assert.True(t, chunk.HasMore())

	var last EventChunk
	require.NoError(t, json.Unmarshal([]byte(`{"events":[]}`), &last))
	assert.False(t, last.HasMore())
}
