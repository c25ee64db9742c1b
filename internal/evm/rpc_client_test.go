package evm

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// rpcServer answers every request with handler(req).
func rpcServer(t *testing.T, handler func(req rpcRequest) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req),
		})
	}))
}

func fastClient(url string) *HTTPClient {
	return NewHTTPClient(url, WithRetryDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))
}

func TestHTTPClient_BlockNumber(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) any {
		if req.Method != "eth_blockNumber" {
			t.Errorf("expected eth_blockNumber, got %s", req.Method)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %s", req.JSONRPC)
		}
		return "0x121eac0"
	})
	defer server.Close()

	n, err := NewHTTPClient(server.URL).BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if n != 19_000_000 {
		t.Errorf("expected 19000000, got %d", n)
	}
}

func TestHTTPClient_ChainID(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) any { return "0x1" })
	defer server.Close()

	id, err := NewHTTPClient(server.URL).ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if id.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected chain 1, got %s", id)
	}
}

func TestHTTPClient_CallContract(t *testing.T) {
	to := common.HexToAddress("0xF403C135812408BFbE8713b5A23a04b3D48AAE31")
	data := []byte{0x08, 0x1e, 0x3e, 0xda}

	server := rpcServer(t, func(req rpcRequest) any {
		if req.Method != "eth_call" {
			t.Errorf("expected eth_call, got %s", req.Method)
		}
		if len(req.Params) != 2 {
			t.Errorf("expected 2 params, got %d", len(req.Params))
			return "0x"
		}
		args := req.Params[0].(map[string]any)
		if got := common.HexToAddress(args["to"].(string)); got != to {
			t.Errorf("expected to %s, got %s", to.Hex(), got.Hex())
		}
		if args["data"] != hexutil.Encode(data) {
			t.Errorf("expected data %s, got %v", hexutil.Encode(data), args["data"])
		}
		if req.Params[1] != "0x10" {
			t.Errorf("expected block tag 0x10, got %v", req.Params[1])
		}
		return "0x00000000000000000000000000000000000000000000000000000000000000ff"
	})
	defer server.Close()

	out, err := NewHTTPClient(server.URL).CallContract(context.Background(), to, data, big.NewInt(16))
	if err != nil {
		t.Fatalf("CallContract: %v", err)
	}
	if len(out) != 32 || out[31] != 0xff {
		t.Errorf("unexpected result %x", out)
	}
}

func TestHTTPClient_HeaderByNumber(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) any {
		if req.Params[0] != "latest" {
			t.Errorf("expected latest, got %v", req.Params[0])
		}
		return map[string]any{
			"number":    "0x64",
			"hash":      "0xabababababababababababababababababababababababababababababababab",
			"timestamp": "0x65920080",
		}
	})
	defer server.Close()

	h, err := NewHTTPClient(server.URL).HeaderByNumber(context.Background(), nil)
	if err != nil {
		t.Fatalf("HeaderByNumber: %v", err)
	}
	head := h.Head()
	if head.Number != 100 {
		t.Errorf("expected block 100, got %d", head.Number)
	}
	if head.Timestamp != 1_704_067_200 {
		t.Errorf("expected timestamp 1704067200, got %d", head.Timestamp)
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x2a"})
	}))
	defer server.Close()

	n, err := fastClient(server.URL).BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := fastClient(server.URL).BlockNumber(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls.Load() != DefaultMaxRetries+1 {
		t.Errorf("expected %d calls, got %d", DefaultMaxRetries+1, calls.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": 3, "message": "execution reverted", "data": "0x08c379a0"},
		})
	}))
	defer server.Close()

	_, err := fastClient(server.URL).CallContract(context.Background(), common.Address{}, nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %v", err)
	}
	if rpcErr.Code != 3 {
		t.Errorf("expected code 3, got %d", rpcErr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.BlockNumber(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
