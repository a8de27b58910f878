// Package rpc adapts a Starknet JSON-RPC endpoint to the query client's
// provider interface.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/colorfulnotion/zylith/felt"
	log "github.com/colorfulnotion/zylith/log"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/telemetry"
	"github.com/colorfulnotion/zylith/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

const (
	MethodCall         = "starknet_call"
	MethodGetStorageAt = "starknet_getStorageAt"
	MethodGetEvents    = "starknet_getEvents"
	MethodBlockNumber  = "starknet_blockNumber"
)

// Provider issues read-only Starknet JSON-RPC calls. It is safe for
// concurrent use; the rate limiter is shared by every caller.
type Provider struct {
	c       *gethrpc.Client
	url     string
	limiter *rate.Limiter
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

type Option func(*Provider)

// WithRateLimit caps outgoing calls at rps with the given burst. A
// non-positive rps leaves calls unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Provider) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

// WithTracer records a client span per call. Without it calls are not traced.
func WithTracer(t trace.Tracer) Option {
	return func(p *Provider) {
		p.tracer = t
	}
}

// ValidateURL checks that endpoint is an absolute http(s) or ws(s) URL.
func ValidateURL(endpoint string) error {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("%w: rpc url %q: %w", poolerrors.ErrInvalidConfiguration, endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%w: rpc url %q: unsupported scheme %q", poolerrors.ErrInvalidConfiguration, endpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: rpc url %q: missing host", poolerrors.ErrInvalidConfiguration, endpoint)
	}
	return nil
}

// Dial connects to a Starknet JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Provider, error) {
	if err := ValidateURL(endpoint); err != nil {
		return nil, err
	}
	c, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", poolerrors.ErrInvalidConfiguration, endpoint, err)
	}
	return NewProvider(c, endpoint, opts...), nil
}

// NewProvider wraps an existing client.
func NewProvider(c *gethrpc.Client, endpoint string, opts ...Option) *Provider {
	p := &Provider{
		c:       c,
		url:     endpoint,
		metrics: telemetry.NewNoOpMetrics(),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URL returns the endpoint the provider was dialed with.
func (p *Provider) URL() string {
	return p.url
}

func (p *Provider) Close() {
	p.c.Close()
}

// call performs one round trip with rate limiting, a span and metrics.
// Every failure wraps ErrRemoteCallFailure and keeps the transport cause.
func (p *Provider) call(ctx context.Context, result interface{}, method string, args ...interface{}) (err error) {
	ctx, span := p.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
	)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		p.metrics.ObserveCall(method, elapsed, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		log.Trace(log.RPCMonitoring, "rpc call", "method", method, "elapsed", elapsed, "err", err)
	}()

	if p.limiter != nil {
		if werr := p.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("%w: %s: rate limit: %w", poolerrors.ErrRemoteCallFailure, method, werr)
		}
	}
	if cerr := p.c.CallContext(ctx, result, method, args...); cerr != nil {
		var rpcErr gethrpc.Error
		if errors.As(cerr, &rpcErr) {
			span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", rpcErr.ErrorCode()))
		}
		return fmt.Errorf("%w: %s: %w", poolerrors.ErrRemoteCallFailure, method, cerr)
	}
	return nil
}

// Call invokes a view function and returns its raw result felts.
func (p *Provider) Call(ctx context.Context, call types.FunctionCall, block types.BlockID) ([]felt.Felt, error) {
	if call.Calldata == nil {
		call.Calldata = []felt.Felt{}
	}
	var out []felt.Felt
	if err := p.call(ctx, &out, MethodCall, call, block); err != nil {
		return nil, err
	}
	return out, nil
}

// StorageAt reads one storage slot of contract.
func (p *Provider) StorageAt(ctx context.Context, contract, key felt.Felt, block types.BlockID) (felt.Felt, error) {
	var out felt.Felt
	if err := p.call(ctx, &out, MethodGetStorageAt, contract, key.Padded(), block); err != nil {
		return felt.Zero, err
	}
	return out, nil
}

// eventsRequest is the flattened filter object of starknet_getEvents.
type eventsRequest struct {
	types.EventFilter
	ChunkSize         int    `json:"chunk_size"`
	ContinuationToken string `json:"continuation_token,omitempty"`
}

// Events fetches one page of events matching filter.
func (p *Provider) Events(ctx context.Context, filter types.EventFilter, continuation string, chunkSize int) (types.EventChunk, error) {
	req := eventsRequest{
		EventFilter:       filter,
		ChunkSize:         chunkSize,
		ContinuationToken: continuation,
	}
	var out types.EventChunk
	if err := p.call(ctx, &out, MethodGetEvents, req); err != nil {
		return types.EventChunk{}, err
	}
	return out, nil
}

// BlockNumber returns the height of the latest accepted block.
func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	if err := p.call(ctx, &out, MethodBlockNumber); err != nil {
		return 0, err
	}
	return out, nil
}
