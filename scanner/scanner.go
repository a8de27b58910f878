// Package scanner recovers deposit positions by walking the pool contract's
// full event history from its deployment block to the chain head.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/zylith/felt"
	log "github.com/colorfulnotion/zylith/log"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/selector"
	"github.com/colorfulnotion/zylith/types"
)

const (
	DefaultChunkSize              = 1000
	DefaultDeploymentBlock uint64 = 4438440

	// minDepositData is commitment, leaf index and at least one more field.
	minDepositData = 3
)

// DefaultDepositSelector is sn_keccak("Deposit").
var DefaultDepositSelector = selector.MustFromName("Deposit")

// Config pins the scan to a deployment and event layout.
type Config struct {
	DeploymentBlock uint64
	DepositSelector felt.Felt
	ChunkSize       int
}

// DefaultConfig returns the settings of the Sepolia deployment.
func DefaultConfig() Config {
	return Config{
		DeploymentBlock: DefaultDeploymentBlock,
		DepositSelector: DefaultDepositSelector,
		ChunkSize:       DefaultChunkSize,
	}
}

// Deposit is a decoded Deposit event.
type Deposit struct {
	Commitment      felt.Felt
	LeafIndex       uint32
	BlockNumber     uint64
	TransactionHash felt.Felt
	Data            []felt.Felt
}

// ParseDeposit decodes ev if it is a Deposit event. Nested components may
// emit the selector at any key position, so every key is checked.
func ParseDeposit(ev types.EmittedEvent, depositSelector felt.Felt) (Deposit, bool) {
	if !ev.HasKey(depositSelector) || len(ev.Data) < minDepositData {
		return Deposit{}, false
	}
	d := Deposit{
		Commitment:      ev.Data[0],
		LeafIndex:       ev.Data[1].Uint32(),
		TransactionHash: ev.TransactionHash,
		Data:            ev.Data,
	}
	if ev.BlockNumber != nil {
		d.BlockNumber = *ev.BlockNumber
	}
	return d, true
}

// Result reports the outcome of a commitment search. A miss is not an error.
type Result struct {
	Found          bool
	LeafIndex      uint32
	Deposit        Deposit
	EventsSearched int
	DepositsSeen   int
	Pages          int
	FromBlock      uint64
	ToBlock        uint64
}

// Scanner searches the event history of a single contract.
type Scanner struct {
	src      EventSource
	contract felt.Felt
	cfg      Config
}

func New(src EventSource, contract felt.Felt, cfg Config) *Scanner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Scanner{src: src, contract: contract, cfg: cfg}
}

// Config returns the scan settings in effect.
func (s *Scanner) Config() Config {
	return s.cfg
}

// pager builds a pager over every event of the contract from the deployment
// block to the current head. The filter has no keys on purpose.
func (s *Scanner) pager(ctx context.Context) (*Pager, uint64, error) {
	head, err := s.src.BlockNumber(ctx)
	if err != nil {
		if !errors.Is(err, poolerrors.ErrRemoteCallFailure) {
			err = fmt.Errorf("%w: block number: %w", poolerrors.ErrRemoteCallFailure, err)
		}
		return nil, 0, err
	}
	from := types.AtNumber(s.cfg.DeploymentBlock)
	to := types.AtNumber(head)
	addr := s.contract
	filter := types.EventFilter{
		FromBlock: &from,
		ToBlock:   &to,
		Address:   &addr,
	}
	return NewPager(s.src, filter, s.cfg.ChunkSize), head, nil
}

// FindCommitment returns the leaf index recorded by the Deposit event whose
// commitment equals target. Values are compared as integers so differently
// padded encodings still match. The scan stops at the first match.
func (s *Scanner) FindCommitment(ctx context.Context, target felt.Felt) (Result, error) {
	want := target.BigInt()
	res := Result{FromBlock: s.cfg.DeploymentBlock}

	pager, head, err := s.pager(ctx)
	if err != nil {
		return res, err
	}
	res.ToBlock = head
	if head < s.cfg.DeploymentBlock {
		log.Warn(log.ScanMonitoring, "chain head is below deployment block", "head", head, "deployment", s.cfg.DeploymentBlock)
		return res, nil
	}
	log.Info(log.ScanMonitoring, "searching deposit events",
		"commitment", target.Short(),
		"from", s.cfg.DeploymentBlock,
		"to", head)

	for {
		chunk, ok, err := pager.Next(ctx)
		if err != nil {
			res.Pages = pager.Pages()
			return res, err
		}
		if !ok {
			break
		}
		for _, ev := range chunk.Events {
			res.EventsSearched++
			d, isDeposit := ParseDeposit(ev, s.cfg.DepositSelector)
			if !isDeposit {
				continue
			}
			res.DepositsSeen++
			if d.Commitment.BigInt().Cmp(want) != 0 {
				continue
			}
			res.Found = true
			res.LeafIndex = d.LeafIndex
			res.Deposit = d
			res.Pages = pager.Pages()
			log.Info(log.ScanMonitoring, "found commitment in events",
				"leafIndex", d.LeafIndex,
				"block", d.BlockNumber,
				"events", res.EventsSearched,
				"deposits", res.DepositsSeen)
			return res, nil
		}
		log.Debug(log.ScanMonitoring, "events page scanned",
			"page", pager.Pages(),
			"events", len(chunk.Events),
			"more", chunk.HasMore())
	}
	res.Pages = pager.Pages()
	log.Info(log.ScanMonitoring, "commitment not found in events",
		"commitment", target.Short(),
		"events", res.EventsSearched,
		"deposits", res.DepositsSeen)
	return res, nil
}

// Deposits calls fn for every Deposit event in order until fn returns false.
// It returns the number of deposits visited.
func (s *Scanner) Deposits(ctx context.Context, fn func(Deposit) bool) (int, error) {
	pager, head, err := s.pager(ctx)
	if err != nil {
		return 0, err
	}
	if head < s.cfg.DeploymentBlock {
		return 0, nil
	}
	seen := 0
	for {
		chunk, ok, err := pager.Next(ctx)
		if err != nil {
			return seen, err
		}
		if !ok {
			return seen, nil
		}
		for _, ev := range chunk.Events {
			d, isDeposit := ParseDeposit(ev, s.cfg.DepositSelector)
			if !isDeposit {
				continue
			}
			seen++
			if !fn(d) {
				return seen, nil
			}
		}
	}
}
