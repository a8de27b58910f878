package types

import (
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/zylith/felt"
)

// BlockTag names a moving block reference.
type BlockTag string

const (
	BlockLatest  BlockTag = "latest"
	BlockPending BlockTag = "pending"
)

// BlockID selects the chain state a read is evaluated against. Exactly one of
// Tag, Number or Hash is set.
type BlockID struct {
	Tag    BlockTag
	Number *uint64
	Hash   *felt.Felt
}

// Latest is the block id used by every query of the client.
func Latest() BlockID {
	return BlockID{Tag: BlockLatest}
}

// AtNumber pins a read to a block height.
func AtNumber(n uint64) BlockID {
	return BlockID{Number: &n}
}

func (b BlockID) MarshalJSON() ([]byte, error) {
	switch {
	case b.Number != nil:
		return json.Marshal(map[string]uint64{"block_number": *b.Number})
	case b.Hash != nil:
		return json.Marshal(map[string]felt.Felt{"block_hash": *b.Hash})
	case b.Tag != "":
		return json.Marshal(string(b.Tag))
	default:
		return nil, fmt.Errorf("empty block id")
	}
}

func (b BlockID) String() string {
	switch {
	case b.Number != nil:
		return fmt.Sprintf("#%d", *b.Number)
	case b.Hash != nil:
		return b.Hash.Short()
	default:
		return string(b.Tag)
	}
}

// FunctionCall is a read-only invocation of a contract entry point.
type FunctionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
}

// EventFilter scopes an event query. A nil Keys matches every event.
type EventFilter struct {
	FromBlock *BlockID      `json:"from_block,omitempty"`
	ToBlock   *BlockID      `json:"to_block,omitempty"`
	Address   *felt.Felt    `json:"address,omitempty"`
	Keys      [][]felt.Felt `json:"keys,omitempty"`
}

// EmittedEvent is one event as returned by starknet_getEvents.
type EmittedEvent struct {
	FromAddress     felt.Felt   `json:"from_address"`
	Keys            []felt.Felt `json:"keys"`
	Data            []felt.Felt `json:"data"`
	BlockHash       *felt.Felt  `json:"block_hash,omitempty"`
	BlockNumber     *uint64     `json:"block_number,omitempty"`
	TransactionHash felt.Felt   `json:"transaction_hash"`
}

// HasKey reports whether k appears anywhere in the event keys.
func (e EmittedEvent) HasKey(k felt.Felt) bool {
	for _, key := range e.Keys {
		if key.Equal(k) {
			return true
		}
	}
	return false
}

// EventChunk is one page of events. An empty ContinuationToken ends the query.
type EventChunk struct {
	Events            []EmittedEvent `json:"events"`
	ContinuationToken string         `json:"continuation_token,omitempty"`
}

// HasMore reports whether another page can be requested.
func (c EventChunk) HasMore() bool {
	return c.ContinuationToken != ""
}
