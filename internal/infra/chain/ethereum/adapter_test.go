package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/chain"
	"github.com/vietddude/basis/internal/infra/rpc"
)

const (
	walletAddr   = "0xaaaa000000000000000000000000000000000001"
	counterparty = "0xbbbb000000000000000000000000000000000002"
	tokenAddr    = "0xcccc000000000000000000000000000000000003"
)

// fakeTx is one ERC-20 transfer on the fake chain backing the test server.
type fakeTx struct {
	hash  string
	block uint64
	from  string
	to    string
	value uint64
}

// evmServer serves a minimal JSON-RPC view over a fixed transfer set.
type evmServer struct {
	txs []fakeTx

	requests     atomic.Int64
	getLogsCalls atomic.Int64
	throttleN    atomic.Int64 // respond 429 to the first N eth_getLogs calls
}

func (s *evmServer) txByHash(hash string) *fakeTx {
	for i := range s.txs {
		if s.txs[i].hash == hash {
			return &s.txs[i]
		}
	}
	return nil
}

func transferLog(t *fakeTx) map[string]any {
	return map[string]any{
		"transactionHash": t.hash,
		"address":         tokenAddr,
		"topics": []any{
			transferEventSig,
			addressTopic(t.from),
			addressTopic(t.to),
		},
		"data": fmt.Sprintf("0x%064x", t.value),
	}
}

func (s *evmServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		var req struct {
			ID     int               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "eth_blockNumber":
			result = "0x64"

		case "eth_getLogs":
			s.getLogsCalls.Add(1)
			if s.throttleN.Load() > 0 {
				s.throttleN.Add(-1)
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			var filter struct {
				FromBlock string `json:"fromBlock"`
				ToBlock   string `json:"toBlock"`
				Topics    []any  `json:"topics"`
			}
			json.Unmarshal(req.Params[0], &filter)
			from, _ := parseHexUint64(filter.FromBlock)
			to, _ := parseHexUint64(filter.ToBlock)

			logs := []any{}
			for i := range s.txs {
				t := &s.txs[i]
				if t.block < from || t.block > to {
					continue
				}
				switch len(filter.Topics) {
				case 2:
					if filter.Topics[1] == addressTopic(walletAddr) && t.from == walletAddr {
						logs = append(logs, transferLog(t))
					}
				case 3:
					if filter.Topics[2] == addressTopic(walletAddr) && t.to == walletAddr {
						logs = append(logs, transferLog(t))
					}
				}
			}
			result = logs

		case "eth_getTransactionByHash":
			var hash string
			json.Unmarshal(req.Params[0], &hash)
			t := s.txByHash(hash)
			if t == nil {
				result = nil
				break
			}
			result = map[string]any{
				"hash":        t.hash,
				"blockNumber": fmt.Sprintf("0x%x", t.block),
				"from":        t.from,
				"to":          tokenAddr,
				"value":       "0x0",
				"gasPrice":    "0x3b9aca00",
			}

		case "eth_getTransactionReceipt":
			var hash string
			json.Unmarshal(req.Params[0], &hash)
			t := s.txByHash(hash)
			if t == nil {
				result = nil
				break
			}
			result = map[string]any{
				"status":            "0x1",
				"gasUsed":           "0x5208",
				"effectiveGasPrice": "0x3b9aca00",
				"logs":              []any{transferLog(t)},
			}

		case "eth_getBlockByNumber":
			var blockHex string
			json.Unmarshal(req.Params[0], &blockHex)
			n, _ := parseHexUint64(blockHex)
			result = map[string]any{
				"timestamp": fmt.Sprintf("0x%x", 1700000000+n*12),
			}

		case "eth_call":
			// symbol()/decimals() metadata calls
			var call struct {
				Data string `json:"data"`
			}
			json.Unmarshal(req.Params[0], &call)
			if strings.HasPrefix(call.Data, decimalsSelector) {
				result = fmt.Sprintf("0x%064x", 6)
			} else {
				// ABI string "USDC"
				result = "0x" +
					fmt.Sprintf("%064x", 32) +
					fmt.Sprintf("%064x", 4) +
					"5553444300000000000000000000000000000000000000000000000000000000"
			}

		default:
			http.Error(w, "unknown method "+req.Method, http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}
}

func defaultTxs() []fakeTx {
	return []fakeTx{
		{hash: "0xt1", block: 2, from: counterparty, to: walletAddr, value: 1_000_000},
		{hash: "0xt2", block: 5, from: walletAddr, to: counterparty, value: 250_000},
		{hash: "0xt3", block: 6, from: counterparty, to: walletAddr, value: 42},
		{hash: "0xt4", block: 9, from: walletAddr, to: counterparty, value: 7},
	}
}

func newTestAdapter(t *testing.T, srv *evmServer, chunkSize uint64) *Adapter {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	a := New()
	err := a.Initialize(chain.Config{
		RPCURL:    ts.URL,
		ChunkSize: chunkSize,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a.retryCfg = rpc.RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffMultiple: 2,
	}
	return a
}

func hashesOf(txs []domain.RawTransaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash
	}
	return out
}

func TestGetTransactionsSingleRange(t *testing.T) {
	srv := &evmServer{txs: defaultTxs()}
	a := newTestAdapter(t, srv, 100)

	txs, err := a.GetTransactions(context.Background(), walletAddr, chain.TxQuery{FromBlock: 0, ToBlock: 10})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d: %v", len(txs), hashesOf(txs))
	}
	// Sorted by block ascending.
	want := []string{"0xt1", "0xt2", "0xt3", "0xt4"}
	for i, h := range hashesOf(txs) {
		if h != want[i] {
			t.Errorf("tx[%d] = %s, want %s", i, h, want[i])
		}
	}
	if txs[0].Status != domain.TxStatusSuccess {
		t.Errorf("status = %s, want success", txs[0].Status)
	}
}

func TestGetTransactionsChunkEquivalence(t *testing.T) {
	srv := &evmServer{txs: defaultTxs()}
	whole := newTestAdapter(t, srv, 100)

	wholeTxs, err := whole.GetTransactions(context.Background(), walletAddr, chain.TxQuery{FromBlock: 0, ToBlock: 10})
	if err != nil {
		t.Fatalf("GetTransactions whole: %v", err)
	}

	// Every chunk size must yield the same set, whatever boundary it puts
	// inside the range.
	for _, chunkSize := range []uint64{1, 2, 3, 4, 7, 11} {
		srv2 := &evmServer{txs: defaultTxs()}
		chunked := newTestAdapter(t, srv2, chunkSize)

		chunkedTxs, err := chunked.GetTransactions(context.Background(), walletAddr, chain.TxQuery{FromBlock: 0, ToBlock: 10})
		if err != nil {
			t.Fatalf("GetTransactions chunk=%d: %v", chunkSize, err)
		}
		if len(chunkedTxs) != len(wholeTxs) {
			t.Fatalf("chunk=%d returned %d txs, whole range returned %d",
				chunkSize, len(chunkedTxs), len(wholeTxs))
		}
		for i := range wholeTxs {
			if chunkedTxs[i].Hash != wholeTxs[i].Hash {
				t.Errorf("chunk=%d tx[%d] = %s, want %s",
					chunkSize, i, chunkedTxs[i].Hash, wholeTxs[i].Hash)
			}
		}
	}
}

func TestGetTransactionsSplitRangeEquivalence(t *testing.T) {
	ctx := context.Background()
	for mid := uint64(0); mid < 10; mid++ {
		srv := &evmServer{txs: defaultTxs()}
		a := newTestAdapter(t, srv, 100)

		low, err := a.GetTransactions(ctx, walletAddr, chain.TxQuery{FromBlock: 0, ToBlock: mid})
		if err != nil {
			t.Fatalf("low range: %v", err)
		}
		high, err := a.GetTransactions(ctx, walletAddr, chain.TxQuery{FromBlock: mid + 1, ToBlock: 10})
		if err != nil {
			t.Fatalf("high range: %v", err)
		}

		combined := append(hashesOf(low), hashesOf(high)...)
		if len(combined) != 4 {
			t.Errorf("mid=%d: split ranges yielded %d txs, want 4 (%v)", mid, len(combined), combined)
		}
		seen := map[string]bool{}
		for _, h := range combined {
			if seen[h] {
				t.Errorf("mid=%d: duplicate hash %s across split", mid, h)
			}
			seen[h] = true
		}
	}
}

func TestGetTransactionsRateLimitRetry(t *testing.T) {
	srv := &evmServer{txs: defaultTxs()}
	srv.throttleN.Store(1)
	a := newTestAdapter(t, srv, 100)

	txs, err := a.GetTransactions(context.Background(), walletAddr, chain.TxQuery{FromBlock: 0, ToBlock: 10})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 4 {
		t.Errorf("expected complete list after retry, got %d txs", len(txs))
	}
}

func TestGetTransactionsRateLimitExhaustion(t *testing.T) {
	srv := &evmServer{txs: defaultTxs()}
	srv.throttleN.Store(1000)
	a := newTestAdapter(t, srv, 100)

	_, err := a.GetTransactions(context.Background(), walletAddr, chain.TxQuery{FromBlock: 0, ToBlock: 10})
	if err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if got := srv.getLogsCalls.Load(); got != int64(a.retryCfg.MaxAttempts) {
		t.Errorf("getLogs attempts = %d, want %d", got, a.retryCfg.MaxAttempts)
	}
}

func TestIsValidAddressPure(t *testing.T) {
	srv := &evmServer{}
	a := newTestAdapter(t, srv, 100)

	cases := map[string]bool{
		walletAddr: true,
		"0xAAAA000000000000000000000000000000000001": true,
		"":    false,
		"0x1": false,
		"aaaa000000000000000000000000000000000001":    false,
		"0xzzzz000000000000000000000000000000000001":  false,
		"0xaaaa0000000000000000000000000000000000012": false,
	}

	for i := 0; i < 3; i++ {
		for addr, want := range cases {
			if got := a.IsValidAddress(addr); got != want {
				t.Errorf("IsValidAddress(%q) = %v, want %v", addr, got, want)
			}
		}
	}
	if n := srv.requests.Load(); n != 0 {
		t.Errorf("validation performed %d network calls, want 0", n)
	}
}

func TestGetTransactionsInvalidAddressNoNetwork(t *testing.T) {
	srv := &evmServer{}
	a := newTestAdapter(t, srv, 100)

	_, err := a.GetTransactions(context.Background(), "nonsense", chain.TxQuery{})
	if !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if n := srv.requests.Load(); n != 0 {
		t.Errorf("invalid address caused %d network calls, want 0", n)
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	a := New()
	if err := a.Initialize(chain.Config{RPCURL: "http://localhost"}); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	err := a.Initialize(chain.Config{RPCURL: "http://localhost"})
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func payloadFor(t *testing.T, legs []map[string]any, tokens map[string]tokenMeta) []byte {
	t.Helper()
	data, err := json.Marshal(rawPayload{
		Tx:      map[string]any{},
		Receipt: map[string]any{"logs": toAnySlice(legs)},
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func toAnySlice(in []map[string]any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func rawTransferLog(contract, from, to string, value uint64) map[string]any {
	return map[string]any{
		"address": contract,
		"topics": []any{
			transferEventSig,
			addressTopic(from),
			addressTopic(to),
		},
		"data": fmt.Sprintf("0x%064x", value),
	}
}

func TestParseTransactionNativeTransfer(t *testing.T) {
	a := New()
	raw := &domain.RawTransaction{
		Hash:      "0xn1",
		From:      walletAddr,
		To:        counterparty,
		Value:     "1500000000000000000",
		Timestamp: 1700000000000,
		Status:    domain.TxStatusSuccess,
	}

	parsed, err := a.ParseTransaction(context.Background(), raw)
	if err != nil {
		t.Fatalf("ParseTransaction: %v", err)
	}
	if parsed.Type != domain.TxTypeTransfer {
		t.Errorf("type = %s, want transfer", parsed.Type)
	}
	if parsed.TokenSymbol != "ETH" || parsed.Decimals != 18 {
		t.Errorf("token = %s/%d, want ETH/18", parsed.TokenSymbol, parsed.Decimals)
	}
	if parsed.Amount != "1500000000000000000" {
		t.Errorf("amount = %s", parsed.Amount)
	}
}

func TestParseTransactionTokenTransfer(t *testing.T) {
	a := New()
	raw := &domain.RawTransaction{
		Hash:      "0xk1",
		From:      walletAddr,
		To:        tokenAddr,
		Timestamp: 1700000000000,
		Status:    domain.TxStatusSuccess,
		RawData: payloadFor(t,
			[]map[string]any{rawTransferLog(tokenAddr, walletAddr, counterparty, 5_000_000)},
			map[string]tokenMeta{tokenAddr: {Symbol: "USDC", Decimals: 6}},
		),
	}

	parsed, err := a.ParseTransaction(context.Background(), raw)
	if err != nil {
		t.Fatalf("ParseTransaction: %v", err)
	}
	if parsed.Type != domain.TxTypeTransfer {
		t.Errorf("type = %s, want transfer", parsed.Type)
	}
	if parsed.TokenSymbol != "USDC" || parsed.Decimals != 6 {
		t.Errorf("token = %s/%d, want USDC/6", parsed.TokenSymbol, parsed.Decimals)
	}
	if parsed.Amount != "5000000" {
		t.Errorf("amount = %s, want 5000000", parsed.Amount)
	}
	// From/To come from the log, not the envelope.
	if parsed.From != walletAddr || parsed.To != counterparty {
		t.Errorf("from/to = %s/%s", parsed.From, parsed.To)
	}
}

func TestParseTransactionMultiLegSwap(t *testing.T) {
	a := New()
	other := "0xdddd000000000000000000000000000000000004"
	raw := &domain.RawTransaction{
		Hash:      "0xs1",
		From:      walletAddr,
		Timestamp: 1700000000000,
		Status:    domain.TxStatusSuccess,
		RawData: payloadFor(t,
			[]map[string]any{
				rawTransferLog(tokenAddr, walletAddr, counterparty, 5_000_000),
				rawTransferLog(other, counterparty, walletAddr, 900),
			},
			map[string]tokenMeta{tokenAddr: {Symbol: "USDC", Decimals: 6}},
		),
	}

	parsed, err := a.ParseTransaction(context.Background(), raw)
	if err != nil {
		t.Fatalf("ParseTransaction: %v", err)
	}
	if parsed.Type != domain.TxTypeSwap {
		t.Errorf("type = %s, want swap", parsed.Type)
	}
	legs, ok := parsed.Metadata["transfers"].([]transferLeg)
	if !ok || len(legs) != 2 {
		t.Fatalf("expected 2 legs in metadata, got %v", parsed.Metadata["transfers"])
	}
	// Unknown contract falls back to the placeholder symbol.
	if !strings.HasPrefix(legs[1].Symbol, "TKN-") {
		t.Errorf("placeholder symbol = %s", legs[1].Symbol)
	}
}

func TestNotInitialized(t *testing.T) {
	a := New()
	_, err := a.GetTransactions(context.Background(), walletAddr, chain.TxQuery{})
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestGetTransactionsDateBounds(t *testing.T) {
	srv := &evmServer{txs: defaultTxs()}
	a := newTestAdapter(t, srv, 100)

	// Block timestamps step 12s from 1700000000; blocks 5 and 6 fall
	// inside the window, blocks 2 and 9 outside.
	from := time.Unix(1700000060, 0)
	to := time.Unix(1700000072, 0)
	txs, err := a.GetTransactions(context.Background(), walletAddr, chain.TxQuery{
		FromBlock: 0, ToBlock: 10, FromDate: from, ToDate: to,
	})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	want := []string{"0xt2", "0xt3"}
	if len(txs) != len(want) {
		t.Fatalf("expected %d transactions in window, got %d: %v", len(want), len(txs), hashesOf(txs))
	}
	for i, h := range hashesOf(txs) {
		if h != want[i] {
			t.Errorf("tx[%d] = %s, want %s", i, h, want[i])
		}
	}

	// A window that predates all activity matches nothing.
	empty, err := a.GetTransactions(context.Background(), walletAddr, chain.TxQuery{
		FromBlock: 0, ToBlock: 10,
		FromDate:  time.Unix(1600000000, 0),
		ToDate:    time.Unix(1600086400, 0),
	})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no transactions before first activity, got %v", hashesOf(empty))
	}
}
