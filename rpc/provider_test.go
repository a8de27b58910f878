package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/colorfulnotion/zylith/felt"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/telemetry"
	"github.com/colorfulnotion/zylith/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handlerFunc answers one method. A non-nil rpcError becomes a JSON-RPC error.
type handlerFunc func(params []json.RawMessage) (interface{}, *rpcError)

// fakeNode is a minimal JSON-RPC 2.0 server over HTTP.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	seen     []rpcRequest
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.seen = append(n.seen, req)
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = rpcError{Code: -32601, Message: "method not found"}
	} else if result, rerr := h(req.Params); rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) last() rpcRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seen[len(n.seen)-1]
}

func startNode(t *testing.T, handlers map[string]handlerFunc, opts ...Option) (*Provider, *fakeNode) {
	t.Helper()
	node := &fakeNode{handlers: handlers}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	p, err := Dial(context.Background(), srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, node
}

func TestBlockNumber(t *testing.T) {
	p, node := startNode(t, map[string]handlerFunc{
		MethodBlockNumber: func([]json.RawMessage) (interface{}, *rpcError) { return 4500000, nil },
	})
	n, err := p.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4500000), n)
	assert.Empty(t, node.last().Params)
}

func TestCallSendsFunctionCall(t *testing.T) {
	p, node := startNode(t, map[string]handlerFunc{
		MethodCall: func([]json.RawMessage) (interface{}, *rpcError) { return []string{"0x5", "0x0"}, nil },
	})
	call := types.FunctionCall{
		ContractAddress:    felt.MustParse("0x123"),
		EntryPointSelector: felt.MustParse("0x2e4263afad30923c891518314c3c95dbe830a16874e8abc5777a9a20b54c76e"),
	}
	out, err := p.Call(context.Background(), call, types.Latest())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(5), out[0].Uint64())
	assert.True(t, out[1].IsZero())

	req := node.last()
	require.Len(t, req.Params, 2)
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Params[0], &sent))
	assert.Equal(t, "0x123", sent["contract_address"])
	assert.Equal(t, []interface{}{}, sent["calldata"])
	assert.JSONEq(t, `"latest"`, string(req.Params[1]))
}

func TestCallNullResult(t *testing.T) {
	p, _ := startNode(t, map[string]handlerFunc{
		MethodCall: func([]json.RawMessage) (interface{}, *rpcError) { return nil, nil },
	})
	out, err := p.Call(context.Background(), types.FunctionCall{ContractAddress: felt.One}, types.Latest())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStorageAt(t *testing.T) {
	p, node := startNode(t, map[string]handlerFunc{
		MethodGetStorageAt: func([]json.RawMessage) (interface{}, *rpcError) { return "0x01", nil },
	})
	v, err := p.StorageAt(context.Background(), felt.MustParse("0xabc"), felt.MustParse("0x7"), types.Latest())
	require.NoError(t, err)
	assert.True(t, v.Equal(felt.One))

	req := node.last()
	require.Len(t, req.Params, 3)
	assert.JSONEq(t, `"0xabc"`, string(req.Params[0]))
	assert.JSONEq(t, `"0x0000000000000000000000000000000000000000000000000000000000000007"`, string(req.Params[1]))
}

func TestEventsFilterEncoding(t *testing.T) {
	p, node := startNode(t, map[string]handlerFunc{
		MethodGetEvents: func([]json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{
				"events": []map[string]interface{}{{
					"from_address":     "0xabc",
					"keys":             []string{"0x9149d2123147c5f43d258257fef0b7b969db78269369ebcf5ebb9eef8592f2"},
					"data":             []string{"0x1", "0x2", "0x3"},
					"block_number":     4438441,
					"transaction_hash": "0xfeed",
				}},
				"continuation_token": "4438441-1",
			}, nil
		},
	})
	from, to := types.AtNumber(4438440), types.AtNumber(4438500)
	addr := felt.MustParse("0xabc")
	filter := types.EventFilter{FromBlock: &from, ToBlock: &to, Address: &addr}

	chunk, err := p.Events(context.Background(), filter, "", 1000)
	require.NoError(t, err)
	require.Len(t, chunk.Events, 1)
	assert.Equal(t, "4438441-1", chunk.ContinuationToken)
	assert.Equal(t, uint64(4438441), *chunk.Events[0].BlockNumber)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(node.last().Params[0], &sent))
	assert.Equal(t, map[string]interface{}{"block_number": float64(4438440)}, sent["from_block"])
	assert.Equal(t, float64(1000), sent["chunk_size"])
	assert.Equal(t, "0xabc", sent["address"])
	assert.NotContains(t, sent, "continuation_token")
	assert.NotContains(t, sent, "keys")

	_, err = p.Events(context.Background(), filter, "4438441-1", 1000)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(node.last().Params[0], &sent))
	assert.Equal(t, "4438441-1", sent["continuation_token"])
}

func TestRemoteErrorIsWrapped(t *testing.T) {
	p, _ := startNode(t, map[string]handlerFunc{
		MethodGetStorageAt: func([]json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: 20, Message: "Contract not found"}
		},
	})
	_, err := p.StorageAt(context.Background(), felt.One, felt.One, types.Latest())
	require.Error(t, err)
	assert.ErrorIs(t, err, poolerrors.ErrRemoteCallFailure)

	var rpcErr gethrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 20, rpcErr.ErrorCode())
	assert.Contains(t, err.Error(), MethodGetStorageAt)
}

func TestCancelledContextKeepsCause(t *testing.T) {
	p, _ := startNode(t, map[string]handlerFunc{
		MethodBlockNumber: func([]json.RawMessage) (interface{}, *rpcError) { return 1, nil },
	}, WithRateLimit(1000, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.BlockNumber(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, poolerrors.ErrRemoteCallFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitSpacesCalls(t *testing.T) {
	p, node := startNode(t, map[string]handlerFunc{
		MethodBlockNumber: func([]json.RawMessage) (interface{}, *rpcError) { return 1, nil },
	}, WithRateLimit(10, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.BlockNumber(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
	assert.Len(t, node.seen, 3)
}

func TestRateLimitRespectsDeadline(t *testing.T) {
	p, node := startNode(t, map[string]handlerFunc{
		MethodBlockNumber: func([]json.RawMessage) (interface{}, *rpcError) { return 1, nil },
	}, WithRateLimit(1, 1))

	_, err := p.BlockNumber(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.BlockNumber(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, poolerrors.ErrRemoteCallFailure)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Len(t, node.seen, 1)
}

func TestTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p, _ := startNode(t, map[string]handlerFunc{
		MethodBlockNumber: func([]json.RawMessage) (interface{}, *rpcError) { return 1, nil },
	}, WithTracer(tp.Tracer("test")))

	_, err := p.BlockNumber(context.Background())
	require.NoError(t, err)
	_, err = p.StorageAt(context.Background(), felt.One, felt.One, types.Latest())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, MethodBlockNumber, spans[0].Name())
	assert.Equal(t, MethodGetStorageAt, spans[1].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
	assert.Contains(t, p.URL(), "http://127.0.0.1")
}

func TestMetricsObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, _ := startNode(t, map[string]handlerFunc{
		MethodBlockNumber: func([]json.RawMessage) (interface{}, *rpcError) { return 7, nil },
	}, WithMetrics(telemetry.NewMetrics(reg)))

	for i := 0; i < 3; i++ {
		_, err := p.BlockNumber(context.Background())
		require.NoError(t, err)
	}
	_, err := p.StorageAt(context.Background(), felt.One, felt.One, types.Latest())
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, telemetry.MetricRPCCalls, telemetry.MetricRPCErrors)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestValidateURL(t *testing.T) {
	for _, good := range []string{"http://localhost:9545", "https://starknet-sepolia.public.blastapi.io/rpc/v0_7", "wss://node/ws"} {
		assert.NoError(t, ValidateURL(good), good)
	}
	for _, bad := range []string{"", "localhost:9545", "ftp://node", "http://", "::"} {
		err := ValidateURL(bad)
		assert.ErrorIs(t, err, poolerrors.ErrInvalidConfiguration, bad)
	}
}
