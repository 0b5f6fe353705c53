package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/vietddude/basis/internal/infra/chain"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// historyServer fakes the two RPC methods behind GetTransactions.
type historyServer struct {
	sigs      []solana.Signature
	txResults map[string]string
	sigLimits []int
}

func (s *historyServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result string
		switch req.Method {
		case "getSignaturesForAddress":
			var opts struct {
				Limit int `json:"limit"`
			}
			if len(req.Params) > 1 {
				json.Unmarshal(req.Params[1], &opts)
			}
			s.sigLimits = append(s.sigLimits, opts.Limit)

			n := len(s.sigs)
			if opts.Limit > 0 && opts.Limit < n {
				n = opts.Limit
			}
			entries := make([]string, 0, n)
			for _, sig := range s.sigs[:n] {
				entries = append(entries, fmt.Sprintf(`{"signature": %q, "slot": 100}`, sig.String()))
			}
			result = "[" + strings.Join(entries, ",") + "]"
		case "getTransaction":
			var sig string
			if len(req.Params) > 0 {
				json.Unmarshal(req.Params[0], &sig)
			}
			result = s.txResults[sig]
			if result == "" {
				result = "null"
			}
		default:
			result = "null"
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}
}

func historyTxResult(blockTime int64) string {
	return fmt.Sprintf(`{
		"slot": 100,
		"blockTime": %d,
		"transaction": {
			"signatures": [],
			"message": {
				"accountKeys": [%q, %q],
				"header": {"numRequiredSignatures": 1, "numReadonlySignedAccounts": 0, "numReadonlyUnsignedAccounts": 1},
				"recentBlockhash": "11111111111111111111111111111111",
				"instructions": []
			}
		},
		"meta": {
			"err": null,
			"fee": 5000,
			"preBalances": [5000000000, 0],
			"postBalances": [4000000000, 1000000000],
			"preTokenBalances": [],
			"postTokenBalances": [],
			"loadedAddresses": {"writable": [], "readonly": []},
			"logMessages": []
		}
	}`, blockTime, usdcMintStr, bonkMintStr)
}

func historySig(b byte) solana.Signature {
	var raw [64]byte
	for i := range raw {
		raw[i] = b
	}
	return solana.SignatureFromBytes(raw[:])
}

func newHistoryAdapter(t *testing.T, srv *historyServer) *Adapter {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	a := New()
	if err := a.Initialize(chain.Config{RPCURL: ts.URL}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func TestGetTransactionsSignatureWindowCoversOffset(t *testing.T) {
	srv := &historyServer{}
	a := newHistoryAdapter(t, srv)

	_, err := a.GetTransactions(context.Background(), usdcMintStr, chain.TxQuery{Limit: 5, Offset: 3})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(srv.sigLimits) != 1 || srv.sigLimits[0] != 8 {
		t.Errorf("requested signature window = %v, want [8]", srv.sigLimits)
	}
}

func TestGetTransactionsOffsetYieldsFullLimit(t *testing.T) {
	sigs := []solana.Signature{historySig(1), historySig(2), historySig(3), historySig(4)}
	srv := &historyServer{sigs: sigs, txResults: map[string]string{}}
	for _, sig := range sigs {
		srv.txResults[sig.String()] = historyTxResult(1685577600)
	}
	a := newHistoryAdapter(t, srv)

	txs, err := a.GetTransactions(context.Background(), usdcMintStr, chain.TxQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Limit=2 Offset=1 returned %d transactions, want 2", len(txs))
	}
	if txs[0].Hash != sigs[1].String() || txs[1].Hash != sigs[2].String() {
		t.Errorf("hashes = %s, %s; want the two after the offset", txs[0].Hash, txs[1].Hash)
	}
}

func TestGetTransactionsDateBounds(t *testing.T) {
	sigs := []solana.Signature{historySig(5), historySig(6)}
	srv := &historyServer{sigs: sigs, txResults: map[string]string{
		sigs[0].String(): historyTxResult(1685577600), // 2023-06-01
		sigs[1].String(): historyTxResult(1609459200), // 2021-01-01
	}}
	a := newHistoryAdapter(t, srv)

	txs, err := a.GetTransactions(context.Background(), usdcMintStr, chain.TxQuery{
		FromDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("date-bounded query returned %d transactions, want 1", len(txs))
	}
	if txs[0].Hash != sigs[0].String() {
		t.Errorf("hash = %s, want the 2023 transaction", txs[0].Hash)
	}
}
