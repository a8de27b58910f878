// Package client is the read-only query façade over a deployed privacy pool.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colorfulnotion/zylith/felt"
	log "github.com/colorfulnotion/zylith/log"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/rpc"
	"github.com/colorfulnotion/zylith/scanner"
	"github.com/colorfulnotion/zylith/selector"
	"github.com/colorfulnotion/zylith/storage"
	"github.com/colorfulnotion/zylith/telemetry"
	"github.com/colorfulnotion/zylith/types"
)

// Entry points of the pool and of ERC20 token contracts.
var (
	SelectorGetMerkleRoot    = selector.MustFromName("get_merkle_root")
	SelectorIsNullifierSpent = selector.MustFromName("is_nullifier_spent")
	SelectorIsRootKnown      = selector.MustFromName("is_root_known")
	SelectorBalanceOf        = selector.MustFromName("balance_of")
	SelectorAllowance        = selector.MustFromName("allowance")
)

// Storage layout of the pool contract.
const (
	VarInitialized = "initialized"
	VarPool        = "pool"
	FieldToken0    = "token0"
	FieldToken1    = "token1"
)

// Provider is everything the client needs from a Starknet node.
type Provider interface {
	Call(ctx context.Context, call types.FunctionCall, block types.BlockID) ([]felt.Felt, error)
	StorageAt(ctx context.Context, contract, key felt.Felt, block types.BlockID) (felt.Felt, error)
	Events(ctx context.Context, filter types.EventFilter, continuation string, chunkSize int) (types.EventChunk, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Config struct {
	RPCURL   string
	Contract string

	Scanner           scanner.Config
	FirstProbeTimeout time.Duration
	NextProbeTimeout  time.Duration

	// RateLimit and RateBurst only apply to Dial.
	RateLimit float64
	RateBurst int

	Metrics *telemetry.Metrics
}

// DefaultConfig returns a config for the Sepolia deployment with contract and
// endpoint left empty.
func DefaultConfig() Config {
	return Config{
		Scanner:           scanner.DefaultConfig(),
		FirstProbeTimeout: storage.DefaultFirstTimeout,
		NextProbeTimeout:  storage.DefaultNextTimeout,
	}
}

// Client answers pool queries. It holds no mutable state after New and is
// safe for concurrent use.
type Client struct {
	provider Provider
	contract felt.Felt
	resolver *storage.Resolver
	scanner  *scanner.Scanner
	metrics  *telemetry.Metrics
}

// New validates cfg.Contract and builds a client over provider.
func New(provider Provider, cfg Config) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", poolerrors.ErrInvalidConfiguration)
	}
	contract, err := felt.Parse(cfg.Contract)
	if err != nil {
		return nil, fmt.Errorf("%w: contract address %q: %v", poolerrors.ErrInvalidConfiguration, cfg.Contract, err)
	}
	if contract.IsZero() {
		return nil, fmt.Errorf("%w: contract address is zero", poolerrors.ErrInvalidConfiguration)
	}
	if cfg.Scanner.DepositSelector.IsZero() {
		cfg.Scanner.DepositSelector = scanner.DefaultDepositSelector
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoOpMetrics()
	}
	return &Client{
		provider: provider,
		contract: contract,
		resolver: storage.NewResolver(provider, contract,
			storage.WithTimeouts(cfg.FirstProbeTimeout, cfg.NextProbeTimeout)),
		scanner: scanner.New(provider, contract, cfg.Scanner),
		metrics: metrics,
	}, nil
}

// Dial validates the endpoint, connects to it and builds a client.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := rpc.ValidateURL(cfg.RPCURL); err != nil {
		return nil, err
	}
	if _, err := felt.Parse(cfg.Contract); err != nil {
		return nil, fmt.Errorf("%w: contract address %q: %v", poolerrors.ErrInvalidConfiguration, cfg.Contract, err)
	}
	opts := []rpc.Option{
		rpc.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		rpc.WithTracer(telemetry.Tracer()),
	}
	if cfg.Metrics != nil {
		opts = append(opts, rpc.WithMetrics(cfg.Metrics))
	}
	p, err := rpc.Dial(ctx, cfg.RPCURL, opts...)
	if err != nil {
		return nil, err
	}
	c, err := New(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	log.Info(log.ClientMonitoring, "pool client ready", "rpc", p.URL(), "contract", c.contract.Padded())
	return c, nil
}

// Close releases the provider connection when the provider holds one.
func (c *Client) Close() {
	if closer, ok := c.provider.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Contract is the pool address queried by c.
func (c *Client) Contract() felt.Felt {
	return c.contract
}

// call invokes a view function at the latest block and requires at least one
// returned value.
func (c *Client) call(ctx context.Context, contract, entryPoint felt.Felt, name string, calldata ...felt.Felt) ([]felt.Felt, error) {
	if calldata == nil {
		calldata = []felt.Felt{}
	}
	out, err := c.provider.Call(ctx, types.FunctionCall{
		ContractAddress:    contract,
		EntryPointSelector: entryPoint,
		Calldata:           calldata,
	}, types.Latest())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", poolerrors.ErrEmptyResponse, name, contract)
	}
	return out, nil
}

func (c *Client) callBool(ctx context.Context, entryPoint felt.Felt, name string, arg felt.Felt) (bool, error) {
	out, err := c.call(ctx, c.contract, entryPoint, name, arg)
	if err != nil {
		return false, err
	}
	return !out[0].IsZero(), nil
}

// callU256 reads a (low, high) pair from a token contract.
func (c *Client) callU256(ctx context.Context, token, entryPoint felt.Felt, name string, calldata ...felt.Felt) (felt.Uint256, error) {
	out, err := c.call(ctx, token, entryPoint, name, calldata...)
	if err != nil {
		return felt.Uint256{}, err
	}
	if len(out) < 2 {
		return felt.Uint256{}, fmt.Errorf("%w: %s returned %d values, want 2", poolerrors.ErrProtocolMismatch, name, len(out))
	}
	v, err := felt.DecodeU256(out[0], out[1])
	if err != nil {
		return felt.Uint256{}, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func parseArg(name, s string) (felt.Felt, error) {
	f, err := felt.Parse(s)
	if err != nil {
		return felt.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// MerkleRoot returns the current root of the commitment tree.
func (c *Client) MerkleRoot(ctx context.Context) (felt.Felt, error) {
	out, err := c.call(ctx, c.contract, SelectorGetMerkleRoot, "get_merkle_root")
	if err != nil {
		return felt.Zero, err
	}
	return out[0], nil
}

// IsNullifierSpent reports whether nullifier has already been used.
func (c *Client) IsNullifierSpent(ctx context.Context, nullifier string) (bool, error) {
	n, err := parseArg("nullifier", nullifier)
	if err != nil {
		return false, err
	}
	return c.callBool(ctx, SelectorIsNullifierSpent, "is_nullifier_spent", n)
}

// IsRootKnown reports whether root is in the pool's root history.
func (c *Client) IsRootKnown(ctx context.Context, root string) (bool, error) {
	r, err := parseArg("root", root)
	if err != nil {
		return false, err
	}
	return c.callBool(ctx, SelectorIsRootKnown, "is_root_known", r)
}

// TokenBalance returns balance_of(owner) on the token contract.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (felt.Uint256, error) {
	t, err := parseArg("token", token)
	if err != nil {
		return felt.Uint256{}, err
	}
	o, err := parseArg("owner", owner)
	if err != nil {
		return felt.Uint256{}, err
	}
	return c.callU256(ctx, t, SelectorBalanceOf, "balance_of", o)
}

// TokenAllowance returns allowance(owner, spender) on the token contract.
func (c *Client) TokenAllowance(ctx context.Context, token, owner, spender string) (felt.Uint256, error) {
	t, err := parseArg("token", token)
	if err != nil {
		return felt.Uint256{}, err
	}
	o, err := parseArg("owner", owner)
	if err != nil {
		return felt.Uint256{}, err
	}
	s, err := parseArg("spender", spender)
	if err != nil {
		return felt.Uint256{}, err
	}
	return c.callU256(ctx, t, SelectorAllowance, "allowance", o, s)
}

// IsPoolInitialized reads the pool's initialized flag from storage.
func (c *Client) IsPoolInitialized(ctx context.Context) (bool, error) {
	v, err := c.resolver.ReadVariable(ctx, VarInitialized)
	if err != nil {
		return false, err
	}
	return !v.IsZero(), nil
}

func tokenCandidates(field string, offset uint64) []storage.CandidateFunc {
	return []storage.CandidateFunc{
		storage.NodeField(VarPool, field),
		storage.NodeOffset(VarPool, offset),
	}
}

// PoolToken0 returns the first token of the pool pair.
func (c *Client) PoolToken0(ctx context.Context) (felt.Felt, error) {
	return c.poolToken(ctx, FieldToken0, 0)
}

// PoolToken1 returns the second token of the pool pair.
func (c *Client) PoolToken1(ctx context.Context) (felt.Felt, error) {
	return c.poolToken(ctx, FieldToken1, 1)
}

func (c *Client) poolToken(ctx context.Context, field string, offset uint64) (felt.Felt, error) {
	ok, err := c.IsPoolInitialized(ctx)
	if err != nil {
		return felt.Zero, err
	}
	if !ok {
		return felt.Zero, fmt.Errorf("%w: cannot read %s", poolerrors.ErrNotInitialized, field)
	}

	res, err := c.resolver.Resolve(ctx, field, tokenCandidates(field, offset)...)
	c.reportAttempts(field, res.Attempts)
	if err != nil {
		var exhausted *storage.ExhaustedError
		if errors.As(err, &exhausted) {
			log.Warn(log.ClientMonitoring, "no storage candidate held a value",
				"field", field,
				"contract", c.contract.Padded(),
				"addresses", exhausted.Addresses())
		}
		return felt.Zero, err
	}
	return res.Value, nil
}

// reportAttempts surfaces failed probes; zero reads are expected and stay quiet.
func (c *Client) reportAttempts(field string, attempts []storage.Attempt) {
	for _, a := range attempts {
		c.metrics.ObserveProbe(field, a.Outcome.String())
		switch a.Outcome {
		case storage.OutcomeTimeout, storage.OutcomeError:
			log.Warn(log.ClientMonitoring, "storage probe failed",
				"field", field,
				"candidate", a.Candidate.Name,
				"address", a.Candidate.Address.Padded(),
				"outcome", a.Outcome,
				"err", a.Err)
		}
	}
}

// PoolDiagnosis lists every token candidate and what it read back.
type PoolDiagnosis struct {
	Initialized bool
	Token0      []storage.Attempt
	Token1      []storage.Attempt
}

// DiagnosePoolTokens probes every token candidate without short-circuiting
// and without the initialization precondition.
func (c *Client) DiagnosePoolTokens(ctx context.Context) (PoolDiagnosis, error) {
	var d PoolDiagnosis
	var err error
	if d.Initialized, err = c.IsPoolInitialized(ctx); err != nil {
		return d, err
	}
	if d.Token0, err = c.resolver.Diagnose(ctx, tokenCandidates(FieldToken0, 0)...); err != nil {
		return d, err
	}
	if d.Token1, err = c.resolver.Diagnose(ctx, tokenCandidates(FieldToken1, 1)...); err != nil {
		return d, err
	}
	return d, nil
}

// FindCommitment scans the pool's Deposit events for commitment.
func (c *Client) FindCommitment(ctx context.Context, commitment string) (scanner.Result, error) {
	target, err := parseArg("commitment", commitment)
	if err != nil {
		return scanner.Result{}, err
	}
	res, err := c.scanner.FindCommitment(ctx, target)
	c.metrics.ObserveScan(res.Pages, res.EventsSearched, res.DepositsSeen)
	return res, err
}

// Deposits walks every Deposit event of the pool in chain order.
func (c *Client) Deposits(ctx context.Context, fn func(scanner.Deposit) bool) (int, error) {
	return c.scanner.Deposits(ctx, fn)
}

// BlockNumber returns the chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.provider.BlockNumber(ctx)
}
