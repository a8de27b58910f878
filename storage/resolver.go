package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/colorfulnotion/zylith/felt"
	log "github.com/colorfulnotion/zylith/log"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/types"
)

const (
	DefaultFirstTimeout = 5 * time.Second
	DefaultNextTimeout  = 3 * time.Second
)

// Reader is the part of the RPC provider the resolver depends on.
type Reader interface {
	StorageAt(ctx context.Context, contract, key felt.Felt, block types.BlockID) (felt.Felt, error)
}

// Outcome classifies a single candidate probe.
type Outcome int

const (
	OutcomeValue Outcome = iota
	OutcomeZero
	OutcomeTimeout
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValue:
		return "value"
	case OutcomeZero:
		return "zero"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Attempt records what happened when one candidate was probed.
type Attempt struct {
	Candidate Candidate
	Outcome   Outcome
	Value     felt.Felt
	Err       error
	Elapsed   time.Duration
}

func (a Attempt) String() string {
	switch a.Outcome {
	case OutcomeValue:
		return fmt.Sprintf("%s %s -> %s", a.Candidate.Name, a.Candidate.Address, a.Value)
	case OutcomeZero:
		return fmt.Sprintf("%s %s -> 0", a.Candidate.Name, a.Candidate.Address)
	default:
		return fmt.Sprintf("%s %s -> %s: %v", a.Candidate.Name, a.Candidate.Address, a.Outcome, a.Err)
	}
}

// Resolution is the result of a successful lookup.
type Resolution struct {
	Field    string
	Value    felt.Felt
	Winner   Candidate
	Attempts []Attempt
}

// ExhaustedError is returned when every candidate read back zero (or failed).
// It lists every computed address so the on-chain layout can be checked by hand.
type ExhaustedError struct {
	Field    string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v field=%s tried:", poolerrors.ErrAllCandidatesExhausted, e.Field)
	for _, a := range e.Attempts {
		b.WriteString(" [")
		b.WriteString(a.String())
		b.WriteString("]")
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error {
	return poolerrors.ErrAllCandidatesExhausted
}

// Addresses returns every candidate address that was probed, in order.
func (e *ExhaustedError) Addresses() []felt.Felt {
	out := make([]felt.Felt, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Candidate.Address)
	}
	return out
}

// Resolver reads nested storage fields of one contract.
type Resolver struct {
	reader       Reader
	contract     felt.Felt
	block        types.BlockID
	firstTimeout time.Duration
	nextTimeout  time.Duration
}

type Option func(*Resolver)

// WithTimeouts sets the budget of the first probe and of every later probe.
func WithTimeouts(first, next time.Duration) Option {
	return func(r *Resolver) {
		if first > 0 {
			r.firstTimeout = first
		}
		if next > 0 {
			r.nextTimeout = next
		}
	}
}

// WithBlock evaluates reads against a block other than latest.
func WithBlock(block types.BlockID) Option {
	return func(r *Resolver) {
		r.block = block
	}
}

func NewResolver(reader Reader, contract felt.Felt, opts ...Option) *Resolver {
	r := &Resolver{
		reader:       reader,
		contract:     contract,
		block:        types.Latest(),
		firstTimeout: DefaultFirstTimeout,
		nextTimeout:  DefaultNextTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadVariable reads a plain storage variable at sn_keccak(name).
func (r *Resolver) ReadVariable(ctx context.Context, name string) (felt.Felt, error) {
	addr, err := VariableAddress(name)
	if err != nil {
		return felt.Zero, err
	}
	v, err := r.reader.StorageAt(ctx, r.contract, addr, r.block)
	if err != nil {
		return felt.Zero, fmt.Errorf("read storage %s at %s: %w", name, addr, err)
	}
	return v, nil
}

// Resolve probes candidates in order and returns the first non-zero value.
// Each probe is bounded by its own timeout; a timeout, an error or a zero
// value moves on to the next candidate.
func (r *Resolver) Resolve(ctx context.Context, field string, candidates ...CandidateFunc) (Resolution, error) {
	res := Resolution{Field: field}
	var buildErr error
	probes := make([]Probe[felt.Felt], len(candidates))
	for i, next := range candidates {
		timeout := r.nextTimeout
		if i == 0 {
			timeout = r.firstTimeout
		}
		probes[i] = func(ctx context.Context) (felt.Felt, error) {
			c, err := next()
			if err != nil {
				if buildErr == nil {
					buildErr = err
				}
				return felt.Zero, err
			}
			attempt := r.probe(ctx, c, timeout)
			res.Attempts = append(res.Attempts, attempt)
			return attempt.Value, attempt.Err
		}
	}

	value, idx := FirstNonZero(ctx, probes...)
	if idx >= 0 {
		res.Value = value
		res.Winner = res.Attempts[len(res.Attempts)-1].Candidate
		log.Debug(log.StorageMonitoring, "storage field resolved",
			"field", field,
			"candidate", res.Winner.Name,
			"address", res.Winner.Address.Padded(),
			"attempts", len(res.Attempts))
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("resolve %s: %w", field, err)
	}
	if buildErr != nil {
		// A candidate formula itself failed; that is an input problem, not exhaustion.
		return res, fmt.Errorf("resolve %s: %w", field, buildErr)
	}
	return res, &ExhaustedError{Field: field, Attempts: res.Attempts}
}

// Diagnose probes every candidate without short-circuiting.
func (r *Resolver) Diagnose(ctx context.Context, candidates ...CandidateFunc) ([]Attempt, error) {
	attempts := make([]Attempt, 0, len(candidates))
	for i, next := range candidates {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		c, err := next()
		if err != nil {
			return attempts, err
		}
		timeout := r.nextTimeout
		if i == 0 {
			timeout = r.firstTimeout
		}
		attempts = append(attempts, r.probe(ctx, c, timeout))
	}
	return attempts, nil
}

type readResult struct {
	value felt.Felt
	err   error
}

// probe issues one bounded storage read. The read runs in its own goroutine so
// a reader that ignores cancellation still cannot hold up the chain.
func (r *Resolver) probe(ctx context.Context, c Candidate, timeout time.Duration) Attempt {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan readResult, 1)
	go func() {
		v, err := r.reader.StorageAt(probeCtx, r.contract, c.Address, r.block)
		done <- readResult{v, err}
	}()

	attempt := Attempt{Candidate: c}
	select {
	case res := <-done:
		attempt.Value, attempt.Err = res.value, res.err
	case <-probeCtx.Done():
		attempt.Err = probeCtx.Err()
	}
	attempt.Elapsed = time.Since(start)

	switch {
	case attempt.Err == nil && attempt.Value.IsZero():
		attempt.Outcome = OutcomeZero
	case attempt.Err == nil:
		attempt.Outcome = OutcomeValue
	case errors.Is(attempt.Err, context.DeadlineExceeded) && ctx.Err() == nil:
		attempt.Outcome = OutcomeTimeout
		attempt.Value = felt.Zero
		attempt.Err = fmt.Errorf("%w: %s after %s: %w", poolerrors.ErrTimeout, c.Name, timeout, attempt.Err)
	default:
		attempt.Outcome = OutcomeError
		attempt.Value = felt.Zero
	}
	log.Trace(log.StorageMonitoring, "storage probe",
		"candidate", c.Name,
		"address", c.Address.Padded(),
		"outcome", attempt.Outcome,
		"elapsed", attempt.Elapsed)
	return attempt
}
