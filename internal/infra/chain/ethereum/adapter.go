// Package ethereum implements the chain adapter for EVM JSON-RPC
// endpoints. Transaction discovery is log-based: ERC-20 Transfer logs are
// queried over chunked block ranges with the target address in the from-
// and to-topic slots, then each unique transaction is hydrated with its
// receipt and block.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"sync"

	logger "log/slog"

	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/chain"
	"github.com/vietddude/basis/internal/infra/rpc"
	"github.com/vietddude/basis/internal/pricing"
	"golang.org/x/sync/errgroup"
)

const (
	// ERC20 Transfer(address,address,uint256) event signature
	transferEventSig = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

	// symbol() / decimals() selectors for token metadata calls
	symbolSelector   = "0x95d89b41"
	decimalsSelector = "0x313ce567"
	// balanceOf(address)
	balanceOfSelector = "0x70a08231"

	defaultChunkSize  = 1000
	detailConcurrency = 5
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type tokenMeta struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type Adapter struct {
	mu          sync.Mutex
	initialized bool

	provider  *rpc.HTTPProvider
	retryCfg  rpc.RetryConfig
	chunkSize uint64
	prices    pricing.Lookup
	log       logger.Logger

	// address → {symbol, decimals}; entries are immutable once cached and
	// computed idempotently, so concurrent population just repeats the
	// same call and converges.
	tokenMu    sync.RWMutex
	tokenCache map[string]tokenMeta
}

func New() *Adapter {
	return &Adapter{
		tokenCache: make(map[string]tokenMeta),
		log:        *logger.Default(),
	}
}

// NewAdapter satisfies the factory constructor signature.
func NewAdapter() chain.Adapter { return New() }

func (a *Adapter) Chain() domain.Chain { return domain.ChainEthereum }

func (a *Adapter) Initialize(cfg chain.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return &domain.ChainError{Chain: domain.ChainEthereum, Kind: domain.ErrAlreadyInitialized}
	}

	a.provider = rpc.NewHTTPProvider("ethereum", cfg.RPCURL, cfg.Timeout)
	if cfg.APIKey != "" {
		a.provider.SetAPIKey(cfg.APIKey)
	}

	a.chunkSize = cfg.ChunkSize
	if a.chunkSize == 0 {
		a.chunkSize = defaultChunkSize
	}

	a.retryCfg = rpc.DefaultRetryConfig
	if cfg.MaxRetries > 0 {
		a.retryCfg.MaxAttempts = cfg.MaxRetries
	}

	a.prices = cfg.Prices
	a.initialized = true
	return nil
}

// IsValidAddress checks the 0x + 40 hex chars shape. Pure, no I/O.
func (a *Adapter) IsValidAddress(address string) bool {
	return addressRe.MatchString(address)
}

func (a *Adapter) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	if err := a.requireInit(); err != nil {
		return 0, err
	}
	result, err := a.provider.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, chain.WrapError(domain.ChainEthereum, err)
	}
	blockHex, ok := result.(string)
	if !ok {
		return 0, domain.NewNetworkError(domain.ChainEthereum, fmt.Errorf("invalid block number response"))
	}
	n, err := parseHexUint64(blockHex)
	if err != nil {
		return 0, domain.NewNetworkError(domain.ChainEthereum, err)
	}
	return n, nil
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
		return nil, domain.NewInvalidAddressError(domain.ChainEthereum, address)
	}

	toBlock := q.ToBlock
	if toBlock == 0 {
		latest, err := a.GetCurrentBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		toBlock = latest
	}
	fromBlock := q.FromBlock
	if fromBlock > toBlock {
		return []domain.RawTransaction{}, nil
	}

	hashes, err := a.discoverTransferHashes(ctx, address, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	txs, err := a.fetchTransactionDetails(ctx, hashes)
	if err != nil {
		return nil, err
	}

	// Stable output ordering so downstream cost-basis sorting is
	// well-defined.
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].BlockNumber != txs[j].BlockNumber {
			return txs[i].BlockNumber < txs[j].BlockNumber
		}
		return txs[i].Timestamp < txs[j].Timestamp
	})

	txs = chain.FilterByDate(txs, q)
	return paginate(txs, q.Offset, q.Limit), nil
}

// discoverTransferHashes queries Transfer logs chunk by chunk, once with
// the address in the from-topic slot and once in the to-topic slot, and
// merges the unique transaction hashes.
func (a *Adapter) discoverTransferHashes(
	ctx context.Context,
	address string,
	fromBlock, toBlock uint64,
) ([]string, error) {
	topic := addressTopic(address)
	seen := make(map[string]struct{})
	var ordered []string

	for start := fromBlock; start <= toBlock; {
		end := start + a.chunkSize - 1
		if end > toBlock || end < start { // overflow guard
			end = toBlock
		}

		for _, topics := range [][]any{
			{transferEventSig, topic},
			{transferEventSig, nil, topic},
		} {
			logs, err := a.getLogs(ctx, start, end, topics)
			if err != nil {
				return nil, err
			}
			for _, l := range logs {
				logData, ok := l.(map[string]any)
				if !ok {
					continue
				}
				hash := getString(logData["transactionHash"])
				if hash == "" {
					continue
				}
				if _, dup := seen[hash]; !dup {
					seen[hash] = struct{}{}
					ordered = append(ordered, hash)
				}
			}
		}

		if end == toBlock {
			break
		}
		start = end + 1
	}

	return ordered, nil
}

func (a *Adapter) getLogs(ctx context.Context, from, to uint64, topics []any) ([]any, error) {
	params := []any{map[string]any{
		"fromBlock": fmt.Sprintf("0x%x", from),
		"toBlock":   fmt.Sprintf("0x%x", to),
		"topics":    topics,
	}}

	result, err := rpc.CallWithRetry(ctx, a.retryCfg, func(ctx context.Context) (any, error) {
		return a.provider.Call(ctx, "eth_getLogs", params)
	})
	if err != nil {
		return nil, chain.WrapError(domain.ChainEthereum, err)
	}

	logs, ok := result.([]any)
	if !ok {
		return nil, domain.NewNetworkError(domain.ChainEthereum, fmt.Errorf("invalid logs response"))
	}
	return logs, nil
}

// rawPayload is the opaque stage-1 output carried in RawTransaction.RawData.
type rawPayload struct {
	Tx      map[string]any       `json:"tx"`
	Receipt map[string]any       `json:"receipt,omitempty"`
	Tokens  map[string]tokenMeta `json:"tokens,omitempty"`
}

// fetchTransactionDetails hydrates each hash with its transaction, receipt
// and block, with bounded concurrency. Token metadata referenced by the
// receipt logs is resolved here (cached per token address) so that
// ParseTransaction stays free of network I/O.
func (a *Adapter) fetchTransactionDetails(ctx context.Context, hashes []string) ([]domain.RawTransaction, error) {
	results := make([]*domain.RawTransaction, len(hashes))
	blockTimes := newBlockTimeCache(a)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)

	for i, hash := range hashes {
		g.Go(func() error {
			raw, err := a.fetchOne(gctx, hash, blockTimes)
			if err != nil {
				// One bad record must not abort the batch.
				a.log.Warn("failed to fetch transaction", "chain", "ethereum", "tx", hash, "error", err)
				return nil
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.RawTransaction, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (a *Adapter) fetchOne(ctx context.Context, hash string, blockTimes *blockTimeCache) (*domain.RawTransaction, error) {
	txResult, err := a.provider.Call(ctx, "eth_getTransactionByHash", []any{hash})
	if err != nil {
		return nil, chain.WrapError(domain.ChainEthereum, err)
	}
	if txResult == nil {
		return nil, nil
	}
	txData, ok := txResult.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid transaction format")
	}

	receiptResult, err := a.provider.Call(ctx, "eth_getTransactionReceipt", []any{hash})
	if err != nil {
		return nil, chain.WrapError(domain.ChainEthereum, err)
	}
	receipt, _ := receiptResult.(map[string]any)

	blockNumber, _ := parseHexUint64(getString(txData["blockNumber"]))
	blockTime, err := blockTimes.get(ctx, blockNumber)
	if err != nil {
		return nil, err
	}

	return a.buildRaw(ctx, hash, txData, receipt, blockNumber, blockTime)
}

func (a *Adapter) buildRaw(
	ctx context.Context,
	hash string,
	txData, receipt map[string]any,
	blockNumber uint64,
	blockTime uint64,
) (*domain.RawTransaction, error) {
	status := domain.TxStatusPending
	fee := ""
	tokens := map[string]tokenMeta{}

	if receipt != nil {
		status = domain.TxStatusSuccess
		if st := getString(receipt["status"]); st == "0x0" {
			status = domain.TxStatusFailed
		}

		gasUsed, _ := parseHexBig(getString(receipt["gasUsed"]))
		gasPrice, _ := parseHexBig(getString(receipt["effectiveGasPrice"]))
		if gasPrice == nil {
			gasPrice, _ = parseHexBig(getString(txData["gasPrice"]))
		}
		if gasUsed != nil && gasPrice != nil {
			fee = new(big.Int).Mul(gasUsed, gasPrice).String()
		}

		for _, contract := range transferContracts(receipt) {
			meta := a.tokenMetadata(ctx, contract)
			tokens[contract] = meta
		}
	}

	payload, _ := json.Marshal(rawPayload{Tx: txData, Receipt: receipt, Tokens: tokens})

	return &domain.RawTransaction{
		Hash:        hash,
		Timestamp:   int64(blockTime) * 1000,
		From:        strings.ToLower(getString(txData["from"])),
		To:          strings.ToLower(getString(txData["to"])),
		Value:       hexToDecimal(getString(txData["value"])),
		Fee:         fee,
		Status:      status,
		BlockNumber: blockNumber,
		RawData:     payload,
	}, nil
}

// transferContracts lists the distinct token contracts emitting Transfer
// logs in a receipt.
func transferContracts(receipt map[string]any) []string {
	logs, ok := receipt["logs"].([]any)
	if !ok {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, logRaw := range logs {
		logData, ok := logRaw.(map[string]any)
		if !ok {
			continue
		}
		topics, ok := logData["topics"].([]any)
		if !ok || len(topics) < 3 {
			continue
		}
		if getString(topics[0]) != transferEventSig {
			continue
		}
		contract := strings.ToLower(getString(logData["address"]))
		if contract == "" {
			continue
		}
		if _, dup := seen[contract]; !dup {
			seen[contract] = struct{}{}
			out = append(out, contract)
		}
	}
	return out
}

func (a *Adapter) GetTransactionByHash(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	txResult, err := a.provider.Call(ctx, "eth_getTransactionByHash", []any{hash})
	if err != nil {
		return nil, chain.WrapError(domain.ChainEthereum, err)
	}
	if txResult == nil {
		return nil, nil
	}
	txData, ok := txResult.(map[string]any)
	if !ok {
		return nil, domain.NewNetworkError(domain.ChainEthereum, fmt.Errorf("invalid transaction format"))
	}

	receiptResult, err := a.provider.Call(ctx, "eth_getTransactionReceipt", []any{hash})
	if err != nil {
		return nil, chain.WrapError(domain.ChainEthereum, err)
	}
	receipt, _ := receiptResult.(map[string]any)

	blockNumber, _ := parseHexUint64(getString(txData["blockNumber"]))
	var blockTime uint64
	if blockNumber > 0 {
		bt, err := a.blockTimestamp(ctx, blockNumber)
		if err != nil {
			return nil, err
		}
		blockTime = bt
	}

	return a.buildRaw(ctx, hash, txData, receipt, blockNumber, blockTime)
}

func (a *Adapter) GetBalance(ctx context.Context, address, tokenAddress string) ([]domain.WalletBalance, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if !a.IsValidAddress(address) {
		return nil, domain.NewInvalidAddressError(domain.ChainEthereum, address)
	}

	if tokenAddress == "" {
		result, err := a.provider.Call(ctx, "eth_getBalance", []any{address, "latest"})
		if err != nil {
			return nil, chain.WrapError(domain.ChainEthereum, err)
		}
		return []domain.WalletBalance{{
			Chain:       domain.ChainEthereum,
			Address:     address,
			TokenSymbol: "ETH",
			Amount:      hexToDecimal(getString(result)),
			Decimals:    18,
		}}, nil
	}

	if !a.IsValidAddress(tokenAddress) {
		return nil, domain.NewInvalidAddressError(domain.ChainEthereum, tokenAddress)
	}

	data := balanceOfSelector + "000000000000000000000000" + strings.TrimPrefix(strings.ToLower(address), "0x")
	result, err := a.provider.Call(ctx, "eth_call", []any{
		map[string]any{"to": tokenAddress, "data": data}, "latest",
	})
	if err != nil {
		return nil, chain.WrapError(domain.ChainEthereum, err)
	}

	meta := a.tokenMetadata(ctx, strings.ToLower(tokenAddress))
	return []domain.WalletBalance{{
		Chain:        domain.ChainEthereum,
		Address:      address,
		TokenSymbol:  meta.Symbol,
		TokenAddress: strings.ToLower(tokenAddress),
		Amount:       hexToDecimal(getString(result)),
		Decimals:     meta.Decimals,
	}}, nil
}

// tokenMetadata resolves symbol/decimals for a token contract, cached per
// address. Failures degrade to a placeholder symbol with 18 decimals.
func (a *Adapter) tokenMetadata(ctx context.Context, contract string) tokenMeta {
	a.tokenMu.RLock()
	meta, ok := a.tokenCache[contract]
	a.tokenMu.RUnlock()
	if ok {
		return meta
	}

	meta = tokenMeta{Symbol: shortAddress(contract), Decimals: 18}

	if symResult, err := a.provider.Call(ctx, "eth_call", []any{
		map[string]any{"to": contract, "data": symbolSelector}, "latest",
	}); err == nil {
		if sym := decodeABIString(getString(symResult)); sym != "" {
			meta.Symbol = sym
		}
	} else {
		a.log.Warn("token symbol lookup failed", "contract", contract, "error", err)
	}

	if decResult, err := a.provider.Call(ctx, "eth_call", []any{
		map[string]any{"to": contract, "data": decimalsSelector}, "latest",
	}); err == nil {
		if dec, err := parseHexUint64(getString(decResult)); err == nil && dec <= 77 {
			meta.Decimals = int(dec)
		}
	}

	a.tokenMu.Lock()
	a.tokenCache[contract] = meta
	a.tokenMu.Unlock()
	return meta
}

func (a *Adapter) blockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	result, err := a.provider.Call(ctx, "eth_getBlockByNumber",
		[]any{fmt.Sprintf("0x%x", blockNumber), false})
	if err != nil {
		return 0, chain.WrapError(domain.ChainEthereum, err)
	}
	blockData, ok := result.(map[string]any)
	if !ok {
		return 0, domain.NewNetworkError(domain.ChainEthereum, fmt.Errorf("invalid block format"))
	}
	ts, _ := parseHexUint64(getString(blockData["timestamp"]))
	return ts, nil
}

func (a *Adapter) requireInit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return &domain.ChainError{Chain: domain.ChainEthereum, Kind: domain.ErrNotInitialized}
	}
	return nil
}

// blockTimeCache memoizes block timestamps across the detail-fetch fan-out.
type blockTimeCache struct {
	adapter *Adapter
	mu      sync.Mutex
	times   map[uint64]uint64
}

func newBlockTimeCache(a *Adapter) *blockTimeCache {
	return &blockTimeCache{adapter: a, times: make(map[uint64]uint64)}
}

func (c *blockTimeCache) get(ctx context.Context, blockNumber uint64) (uint64, error) {
	c.mu.Lock()
	ts, ok := c.times[blockNumber]
	c.mu.Unlock()
	if ok {
		return ts, nil
	}

	ts, err := c.adapter.blockTimestamp(ctx, blockNumber)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.times[blockNumber] = ts
	c.mu.Unlock()
	return ts, nil
}

func paginate(txs []domain.RawTransaction, offset, limit int) []domain.RawTransaction {
	if offset >= len(txs) {
		return []domain.RawTransaction{}
	}
	txs = txs[offset:]
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	return txs
}
