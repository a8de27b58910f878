package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/colorfulnotion/zylith/client"
	"github.com/colorfulnotion/zylith/felt"
	"github.com/colorfulnotion/zylith/scanner"
	"github.com/colorfulnotion/zylith/storage"
)

// query is one read operation reachable from both a subcommand and the console.
type query struct {
	cmd   string
	js    string
	args  []string
	short string
	run   func(ctx context.Context, c *client.Client, args []string) (interface{}, error)
}

var queries = []query{
	{
		cmd: "merkle-root", js: "merkleRoot",
		short: "Current root of the commitment tree",
		run: func(ctx context.Context, c *client.Client, _ []string) (interface{}, error) {
			return c.MerkleRoot(ctx)
		},
	},
	{
		cmd: "nullifier", js: "isNullifierSpent", args: []string{"nullifier"},
		short: "Whether a nullifier has been spent",
		run: func(ctx context.Context, c *client.Client, args []string) (interface{}, error) {
			return c.IsNullifierSpent(ctx, args[0])
		},
	},
	{
		cmd: "root-known", js: "isRootKnown", args: []string{"root"},
		short: "Whether a root is in the pool's root history",
		run: func(ctx context.Context, c *client.Client, args []string) (interface{}, error) {
			return c.IsRootKnown(ctx, args[0])
		},
	},
	{
		cmd: "balance", js: "tokenBalance", args: []string{"token", "owner"},
		short: "ERC20 balance_of(owner) on a token contract",
		run: func(ctx context.Context, c *client.Client, args []string) (interface{}, error) {
			return c.TokenBalance(ctx, args[0], args[1])
		},
	},
	{
		cmd: "allowance", js: "tokenAllowance", args: []string{"token", "owner", "spender"},
		short: "ERC20 allowance(owner, spender) on a token contract",
		run: func(ctx context.Context, c *client.Client, args []string) (interface{}, error) {
			return c.TokenAllowance(ctx, args[0], args[1], args[2])
		},
	},
	{
		cmd: "initialized", js: "isPoolInitialized",
		short: "Whether the pool storage has been initialized",
		run: func(ctx context.Context, c *client.Client, _ []string) (interface{}, error) {
			return c.IsPoolInitialized(ctx)
		},
	},
	{
		cmd: "token0", js: "poolToken0",
		short: "First token of the pool pair",
		run: func(ctx context.Context, c *client.Client, _ []string) (interface{}, error) {
			return c.PoolToken0(ctx)
		},
	},
	{
		cmd: "token1", js: "poolToken1",
		short: "Second token of the pool pair",
		run: func(ctx context.Context, c *client.Client, _ []string) (interface{}, error) {
			return c.PoolToken1(ctx)
		},
	},
	{
		cmd: "find-commitment", js: "findCommitment", args: []string{"commitment"},
		short: "Leaf index of a deposit commitment, from event history",
		run: func(ctx context.Context, c *client.Client, args []string) (interface{}, error) {
			return c.FindCommitment(ctx, args[0])
		},
	},
	{
		cmd: "block-number", js: "blockNumber",
		short: "Current chain head",
		run: func(ctx context.Context, c *client.Client, _ []string) (interface{}, error) {
			return c.BlockNumber(ctx)
		},
	},
}

func queryByJS(name string) (query, bool) {
	for _, q := range queries {
		if q.js == name {
			return q, true
		}
	}
	return query{}, false
}

func jsNames() []string {
	names := make([]string, 0, len(queries))
	for _, q := range queries {
		names = append(names, q.js)
	}
	sort.Strings(names)
	return names
}

// render turns a query result into plain values for printing or for the
// console's JavaScript runtime.
func render(v interface{}) interface{} {
	switch r := v.(type) {
	case felt.Felt:
		return r.Short()
	case felt.Uint256:
		return r.String()
	case scanner.Result:
		out := map[string]interface{}{
			"found":          r.Found,
			"eventsSearched": r.EventsSearched,
			"depositsSeen":   r.DepositsSeen,
			"pages":          r.Pages,
			"fromBlock":      r.FromBlock,
			"toBlock":        r.ToBlock,
		}
		if r.Found {
			out["leafIndex"] = r.LeafIndex
			out["block"] = r.Deposit.BlockNumber
			out["transaction"] = r.Deposit.TransactionHash.Short()
		}
		return out
	case scanner.Deposit:
		return map[string]interface{}{
			"commitment":  r.Commitment.Short(),
			"leafIndex":   r.LeafIndex,
			"block":       r.BlockNumber,
			"transaction": r.TransactionHash.Short(),
		}
	case []storage.Attempt:
		out := make([]map[string]interface{}, 0, len(r))
		for _, a := range r {
			m := map[string]interface{}{
				"candidate": a.Candidate.Name,
				"address":   a.Candidate.Address.Padded(),
				"outcome":   a.Outcome.String(),
				"elapsed":   a.Elapsed.String(),
			}
			if a.Outcome == storage.OutcomeValue {
				m["value"] = a.Value.Short()
			}
			if a.Err != nil {
				m["error"] = a.Err.Error()
			}
			out = append(out, m)
		}
		return out
	case client.PoolDiagnosis:
		return map[string]interface{}{
			"initialized": r.Initialized,
			"token0":      render(r.Token0),
			"token1":      render(r.Token1),
		}
	default:
		return v
	}
}

func formatResult(v interface{}) string {
	switch r := v.(type) {
	case scanner.Result:
		if !r.Found {
			return fmt.Sprintf("not found (searched %d events, %d deposits, blocks %d..%d)",
				r.EventsSearched, r.DepositsSeen, r.FromBlock, r.ToBlock)
		}
		return fmt.Sprintf("leaf index %d (block %d, tx %s)", r.LeafIndex, r.Deposit.BlockNumber, r.Deposit.TransactionHash.Short())
	default:
		return fmt.Sprint(render(v))
	}
}
