// Package bitcoin implements the chain adapter over an Esplora-style REST
// indexer. Bitcoin has no single from/to, so each transaction's wallet
// effect is the net of outputs paying the address minus inputs spending
// from it.
package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	logger "log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/chain"
	"github.com/vietddude/basis/internal/infra/rpc"
	"github.com/vietddude/basis/internal/pricing"
)

const (
	// Esplora pages 25 txs per request.
	indexerPageSize = 25
	defaultTxLimit  = 50
)

type Adapter struct {
	mu          sync.Mutex
	initialized bool

	provider *rpc.HTTPProvider
	params   *chaincfg.Params
	prices   pricing.Lookup
	log      logger.Logger
}

func New() *Adapter {
	return &Adapter{log: *logger.Default()}
}

// NewAdapter satisfies the factory constructor signature.
func NewAdapter() chain.Adapter { return New() }

func (a *Adapter) Chain() domain.Chain { return domain.ChainBitcoin }

func (a *Adapter) Initialize(cfg chain.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return &domain.ChainError{Chain: domain.ChainBitcoin, Kind: domain.ErrAlreadyInitialized}
	}

	a.provider = rpc.NewHTTPProvider("bitcoin", strings.TrimSuffix(cfg.RPCURL, "/"), cfg.Timeout)
	if cfg.APIKey != "" {
		a.provider.SetAPIKey(cfg.APIKey)
	}

	a.params = &chaincfg.MainNetParams
	if cfg.Network == "testnet" {
		a.params = &chaincfg.TestNet3Params
	}

	a.prices = cfg.Prices
	a.initialized = true
	return nil
}

// IsValidAddress accepts legacy (1/3 prefix, 26-35 chars) and bech32
// (bc1, 42-62 chars) addresses. Validity is decided by deriving the
// address's output script; a decode failure means invalid.
func (a *Adapter) IsValidAddress(address string) bool {
	if !plausibleShape(address) {
		return false
	}
	params := a.params
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return false
	}
	if _, err := txscript.PayToAddrScript(addr); err != nil {
		return false
	}
	return true
}

func plausibleShape(address string) bool {
	switch {
	case strings.HasPrefix(address, "bc1"), strings.HasPrefix(address, "tb1"):
		return len(address) >= 42 && len(address) <= 62
	case strings.HasPrefix(address, "1"), strings.HasPrefix(address, "3"),
		strings.HasPrefix(address, "m"), strings.HasPrefix(address, "n"), strings.HasPrefix(address, "2"):
		return len(address) >= 26 && len(address) <= 35
	}
	return false
}

// Esplora wire shapes.

type indexerTx struct {
	TxID   string `json:"txid"`
	Fee    int64  `json:"fee"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint64 `json:"block_height"`
		BlockTime   int64  `json:"block_time"`
	} `json:"status"`
	Vin []struct {
		Prevout *struct {
			ScriptPubKeyAddress string `json:"scriptpubkey_address"`
			Value               int64  `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
}

type addressStats struct {
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
}

func (a *Adapter) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	if err := a.requireInit(); err != nil {
		return 0, err
	}
	var height uint64
	if err := a.provider.Get(ctx, "/blocks/tip/height", &height); err != nil {
		return 0, chain.WrapError(domain.ChainBitcoin, err)
	}
	return height, nil
}

func (a *Adapter) GetTransactions(
	ctx context.Context,
	address string,
	q chain.TxQuery,
) ([]domain.RawTransaction, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if !a.IsValidAddress(address) {
		return nil, domain.NewInvalidAddressError(domain.ChainBitcoin, address)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultTxLimit
	}
	want := q.Offset + limit

	// Walk the indexer's pages (most recent first) until enough rows.
	var page []indexerTx
	var all []indexerTx
	path := fmt.Sprintf("/address/%s/txs", address)
	for {
		page = page[:0]
		if err := a.provider.Get(ctx, path, &page); err != nil {
			return nil, chain.WrapError(domain.ChainBitcoin, err)
		}
		all = append(all, page...)
		if len(page) < indexerPageSize || len(all) >= want {
			break
		}
		path = fmt.Sprintf("/address/%s/txs/chain/%s", address, page[len(page)-1].TxID)
	}

	if q.Offset >= len(all) {
		return []domain.RawTransaction{}, nil
	}
	all = all[q.Offset:]
	if limit < len(all) {
		all = all[:limit]
	}

	txs := make([]domain.RawTransaction, 0, len(all))
	for i := range all {
		raw, err := a.buildRaw(address, &all[i])
		if err != nil {
			a.log.Warn("failed to parse transaction", "chain", "bitcoin", "tx", all[i].TxID, "error", err)
			continue
		}
		txs = append(txs, *raw)
	}
	return chain.FilterByDate(txs, q), nil
}

// btcPayload is the opaque stage-1 output carried in RawTransaction.RawData.
type btcPayload struct {
	Address  string    `json:"address"`
	NetValue string    `json:"net_value"` // signed satoshis
	Tx       indexerTx `json:"tx"`
}

// buildRaw reduces one indexer transaction to the raw record for address.
// Net value = sum(outputs to address) - sum(inputs from address).
func (a *Adapter) buildRaw(address string, tx *indexerTx) (*domain.RawTransaction, error) {
	if tx.TxID == "" {
		return nil, fmt.Errorf("missing txid")
	}

	received := big.NewInt(0)
	spent := big.NewInt(0)
	recipient := ""
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == address {
			received.Add(received, big.NewInt(out.Value))
		} else if recipient == "" && out.ScriptPubKeyAddress != "" {
			// Heuristic recipient: first output paying someone else.
			recipient = out.ScriptPubKeyAddress
		}
	}
	for _, in := range tx.Vin {
		if in.Prevout != nil && in.Prevout.ScriptPubKeyAddress == address {
			spent.Add(spent, big.NewInt(in.Prevout.Value))
		}
	}

	net := new(big.Int).Sub(received, spent)

	from := ""
	to := address
	if net.Sign() < 0 {
		from = address
		to = recipient
	}

	status := domain.TxStatusPending
	var ts int64
	if tx.Status.Confirmed {
		status = domain.TxStatusSuccess
		ts = tx.Status.BlockTime * 1000
	}

	payload, _ := json.Marshal(btcPayload{Address: address, NetValue: net.String(), Tx: *tx})

	return &domain.RawTransaction{
		Hash:        tx.TxID,
		Timestamp:   ts,
		From:        from,
		To:          to,
		Value:       new(big.Int).Abs(net).String(),
		Fee:         fmt.Sprintf("%d", tx.Fee),
		Status:      status,
		BlockNumber: tx.Status.BlockHeight,
		RawData:     payload,
	}, nil
}

// ParseTransaction always emits a BTC transfer: Bitcoin has no token or
// swap semantics at this layer.
func (a *Adapter) ParseTransaction(ctx context.Context, raw *domain.RawTransaction) (*domain.ParsedTransaction, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil raw transaction")
	}

	parsed := &domain.ParsedTransaction{
		Hash:        raw.Hash,
		Chain:       domain.ChainBitcoin,
		Type:        domain.TxTypeTransfer,
		From:        raw.From,
		To:          raw.To,
		TokenSymbol: "BTC",
		Decimals:    8,
		Amount:      raw.Value,
		FeeAmount:   raw.Fee,
		BlockNumber: raw.BlockNumber,
		Timestamp:   time.UnixMilli(raw.Timestamp).UTC(),
		Status:      raw.Status,
		Metadata:    map[string]any{},
	}
	if parsed.Amount == "" {
		parsed.Amount = "0"
	}

	if len(raw.RawData) > 0 {
		var payload btcPayload
		if err := json.Unmarshal(raw.RawData, &payload); err == nil {
			parsed.Metadata["net_value"] = payload.NetValue
			parsed.Metadata["address"] = payload.Address
		}
	}

	if a.prices != nil {
		pt, err := a.prices.GetHistoricalPrice(ctx, "BTC", parsed.Timestamp, domain.ChainBitcoin)
		if err != nil {
			a.log.Warn("price lookup failed", "chain", "bitcoin", "error", err)
		} else if pt != nil {
			parsed.PriceUSD = &pt.Price
		}
	}

	return parsed, nil
}

func (a *Adapter) GetTransactionByHash(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	var tx indexerTx
	if err := a.provider.Get(ctx, "/tx/"+hash, &tx); err != nil {
		if rpc.IsNotFound(err) {
			return nil, nil
		}
		return nil, chain.WrapError(domain.ChainBitcoin, err)
	}

	// Without a queried address there is no net-value perspective; report
	// the first output as the transaction value.
	raw, err := a.buildRaw("", &tx)
	if err != nil {
		return nil, domain.NewNetworkError(domain.ChainBitcoin, err)
	}
	return raw, nil
}

func (a *Adapter) GetBalance(ctx context.Context, address, tokenAddress string) ([]domain.WalletBalance, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if tokenAddress != "" {
		return nil, domain.NewNetworkError(domain.ChainBitcoin,
			fmt.Errorf("token balances are not supported on bitcoin"))
	}
	if !a.IsValidAddress(address) {
		return nil, domain.NewInvalidAddressError(domain.ChainBitcoin, address)
	}

	var stats addressStats
	if err := a.provider.Get(ctx, "/address/"+address, &stats); err != nil {
		return nil, chain.WrapError(domain.ChainBitcoin, err)
	}

	balance := stats.ChainStats.FundedTxoSum - stats.ChainStats.SpentTxoSum
	return []domain.WalletBalance{{
		Chain:       domain.ChainBitcoin,
		Address:     address,
		TokenSymbol: "BTC",
		Amount:      fmt.Sprintf("%d", balance),
		Decimals:    8,
	}}, nil
}

func (a *Adapter) requireInit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return &domain.ChainError{Chain: domain.ChainBitcoin, Kind: domain.ErrNotInitialized}
	}
	return nil
}
