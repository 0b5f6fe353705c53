// Package solana implements the chain adapter for Solana RPC endpoints.
// History is discovered via signature listing; each transaction's wallet
// effect is derived from pre/post balance deltas, with swap decomposition
// for aggregator trades.
package solana

import (
	"context"
	"encoding/json"
	"fmt"
	logger "log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/chain"
	"github.com/vietddude/basis/internal/pricing"
)

const defaultSignatureLimit = 50

var maxTxVersion uint64 = 0

type Adapter struct {
	mu          sync.Mutex
	initialized bool

	client *solrpc.Client
	delay  time.Duration
	prices pricing.Lookup
	log    logger.Logger
}

func New() *Adapter {
	return &Adapter{log: *logger.Default()}
}

// NewAdapter satisfies the factory constructor signature.
func NewAdapter() chain.Adapter { return New() }

func (a *Adapter) Chain() domain.Chain { return domain.ChainSolana }

func (a *Adapter) Initialize(cfg chain.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return &domain.ChainError{Chain: domain.ChainSolana, Kind: domain.ErrAlreadyInitialized}
	}

	a.client = solrpc.New(cfg.RPCURL)
	a.delay = cfg.RateLimitDelay
	a.prices = cfg.Prices
	a.initialized = true
	return nil
}

// IsValidAddress checks base58 shape, length 32-44, and that the decoded
// key is a point on the Ed25519 curve. The system program id is the one
// all-same-character string accepted.
func (a *Adapter) IsValidAddress(address string) bool {
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	if strings.HasPrefix(address, "0x") {
		return false
	}
	if allSameChar(address) {
		return address == solana.SystemProgramID.String()
	}
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != solana.PublicKeyLength {
		return false
	}
	return solana.PublicKeyFromBytes(raw).IsOnCurve()
}

func allSameChar(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return len(s) > 0
}

func (a *Adapter) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	if err := a.requireInit(); err != nil {
		return 0, err
	}
	slot, err := a.client.GetSlot(ctx, solrpc.CommitmentFinalized)
	if err != nil {
		return 0, chain.WrapError(domain.ChainSolana, err)
	}
	return slot, nil
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
		return nil, domain.NewInvalidAddressError(domain.ChainSolana, address)
	}
	owner := solana.MustPublicKeyFromBase58(address)

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSignatureLimit
	}
	// The offset is skipped from the fetched window, so the window must
	// cover offset+limit signatures.
	want := q.Offset + limit

	sigs, err := a.client.GetSignaturesForAddressWithOpts(ctx, owner, &solrpc.GetSignaturesForAddressOpts{
		Limit:      &want,
		Commitment: solrpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, chain.WrapError(domain.ChainSolana, err)
	}

	// Provider order is preserved (most recent first).
	txs := make([]domain.RawTransaction, 0, len(sigs))
	for i, sig := range sigs {
		if i < q.Offset {
			continue
		}

		raw, err := a.fetchTransaction(ctx, owner, sig.Signature)
		if err != nil {
			// One bad record must not abort the batch.
			a.log.Warn("failed to fetch transaction", "chain", "solana", "signature", sig.Signature.String(), "error", err)
			continue
		}
		if raw != nil {
			txs = append(txs, *raw)
		}

		// Politeness delay between per-signature fetches.
		if a.delay > 0 && i < len(sigs)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.delay):
			}
		}
	}

	return chain.FilterByDate(txs, q), nil
}

// solPayload is the opaque stage-1 output carried in RawTransaction.RawData.
type solPayload struct {
	Owner        string    `json:"owner"`
	LamportDelta string    `json:"lamport_delta"` // signed
	SPL          *splDelta `json:"spl,omitempty"`
	Swap         *swapInfo `json:"swap,omitempty"`
	SwapPrograms []string  `json:"swap_programs,omitempty"`
}

type splDelta struct {
	Mint     string `json:"mint"`
	Delta    string `json:"delta"` // signed base units
	Decimals int    `json:"decimals"`
}

func (a *Adapter) fetchTransaction(
	ctx context.Context,
	owner solana.PublicKey,
	sig solana.Signature,
) (*domain.RawTransaction, error) {
	result, err := a.client.GetTransaction(ctx, sig, &solrpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     solrpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if err != nil {
		return nil, chain.WrapError(domain.ChainSolana, err)
	}
	if result == nil || result.Meta == nil {
		return nil, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	accountKeys := append(solana.PublicKeySlice{}, tx.Message.AccountKeys...)
	accountKeys = append(accountKeys, result.Meta.LoadedAddresses.Writable...)
	accountKeys = append(accountKeys, result.Meta.LoadedAddresses.ReadOnly...)

	payload := solPayload{
		Owner:        owner.String(),
		LamportDelta: lamportDelta(owner, accountKeys, result.Meta).String(),
		SPL:          ownerTokenDelta(owner, result.Meta),
		SwapPrograms: knownSwapProgramNames(accountKeys),
	}

	// Aggregator decomposition is best-effort: a decode failure is logged
	// and the transaction still flows through the heuristic fallbacks.
	if swap, err := extractSwap(owner, accountKeys, result.Meta); err != nil {
		a.log.Warn("swap decode failed", "chain", "solana", "signature", sig.String(), "error", err)
	} else if swap != nil {
		payload.Swap = swap
	}

	rawData, _ := json.Marshal(payload)

	status := domain.TxStatusSuccess
	if result.Meta.Err != nil {
		status = domain.TxStatusFailed
	}

	var ts int64
	if result.BlockTime != nil {
		ts = result.BlockTime.Time().UnixMilli()
	}

	from := owner.String()
	if len(accountKeys) > 0 {
		from = accountKeys[0].String() // fee payer
	}

	value := payload.LamportDelta
	value = strings.TrimPrefix(value, "-")

	return &domain.RawTransaction{
		Hash:        sig.String(),
		Timestamp:   ts,
		From:        from,
		Value:       value,
		Fee:         fmt.Sprintf("%d", result.Meta.Fee),
		Status:      status,
		BlockNumber: result.Slot,
		RawData:     rawData,
	}, nil
}

// lamportDelta is the owner's signed native balance change,
// postBalances[idx] - preBalances[idx].
func lamportDelta(owner solana.PublicKey, keys solana.PublicKeySlice, meta *solrpc.TransactionMeta) *big.Int {
	for i, key := range keys {
		if !key.Equals(owner) {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			break
		}
		pre := new(big.Int).SetUint64(meta.PreBalances[i])
		post := new(big.Int).SetUint64(meta.PostBalances[i])
		return post.Sub(post, pre)
	}
	return big.NewInt(0)
}

// ownerTokenDelta derives the owner's largest SPL balance change from the
// pre/post token balances, matched by (owner, mint).
func ownerTokenDelta(owner solana.PublicKey, meta *solrpc.TransactionMeta) *splDelta {
	type entry struct {
		amount   *big.Int
		decimals int
	}
	pre := map[string]entry{}
	post := map[string]entry{}

	collect := func(balances []solrpc.TokenBalance, into map[string]entry) {
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(owner) || b.UiTokenAmount == nil {
				continue
			}
			amt, ok := new(big.Int).SetString(b.UiTokenAmount.Amount, 10)
			if !ok {
				continue
			}
			mint := b.Mint.String()
			prev := into[mint]
			if prev.amount == nil {
				prev.amount = big.NewInt(0)
			}
			prev.amount.Add(prev.amount, amt)
			prev.decimals = int(b.UiTokenAmount.Decimals)
			into[mint] = prev
		}
	}
	collect(meta.PreTokenBalances, pre)
	collect(meta.PostTokenBalances, post)

	var best *splDelta
	var bestAbs *big.Int
	mints := map[string]struct{}{}
	for m := range pre {
		mints[m] = struct{}{}
	}
	for m := range post {
		mints[m] = struct{}{}
	}

	for mint := range mints {
		preAmt := big.NewInt(0)
		decimals := 0
		if e, ok := pre[mint]; ok {
			preAmt = e.amount
			decimals = e.decimals
		}
		postAmt := big.NewInt(0)
		if e, ok := post[mint]; ok {
			postAmt = e.amount
			decimals = e.decimals
		}
		delta := new(big.Int).Sub(postAmt, preAmt)
		if delta.Sign() == 0 {
			continue
		}
		abs := new(big.Int).Abs(delta)
		if bestAbs == nil || abs.Cmp(bestAbs) > 0 {
			bestAbs = abs
			best = &splDelta{Mint: mint, Delta: delta.String(), Decimals: decimals}
		}
	}
	return best
}

func (a *Adapter) GetTransactionByHash(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	sig, err := solana.SignatureFromBase58(hash)
	if err != nil {
		return nil, domain.NewNetworkError(domain.ChainSolana, fmt.Errorf("invalid signature %q: %w", hash, err))
	}

	result, err := a.client.GetTransaction(ctx, sig, &solrpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     solrpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, nil
		}
		return nil, chain.WrapError(domain.ChainSolana, err)
	}
	if result == nil || result.Meta == nil {
		return nil, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, domain.NewNetworkError(domain.ChainSolana, fmt.Errorf("decode transaction: %w", err))
	}

	// Without a queried owner, the fee payer is the reference account.
	owner := tx.Message.AccountKeys[0]
	return a.fetchFromResult(owner, sig, result)
}

// fetchFromResult rebuilds the raw record from an already fetched result.
func (a *Adapter) fetchFromResult(
	owner solana.PublicKey,
	sig solana.Signature,
	result *solrpc.GetTransactionResult,
) (*domain.RawTransaction, error) {
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	accountKeys := append(solana.PublicKeySlice{}, tx.Message.AccountKeys...)
	accountKeys = append(accountKeys, result.Meta.LoadedAddresses.Writable...)
	accountKeys = append(accountKeys, result.Meta.LoadedAddresses.ReadOnly...)

	payload := solPayload{
		Owner:        owner.String(),
		LamportDelta: lamportDelta(owner, accountKeys, result.Meta).String(),
		SPL:          ownerTokenDelta(owner, result.Meta),
		SwapPrograms: knownSwapProgramNames(accountKeys),
	}
	if swap, err := extractSwap(owner, accountKeys, result.Meta); err == nil && swap != nil {
		payload.Swap = swap
	}
	rawData, _ := json.Marshal(payload)

	status := domain.TxStatusSuccess
	if result.Meta.Err != nil {
		status = domain.TxStatusFailed
	}
	var ts int64
	if result.BlockTime != nil {
		ts = result.BlockTime.Time().UnixMilli()
	}

	return &domain.RawTransaction{
		Hash:        sig.String(),
		Timestamp:   ts,
		From:        accountKeys[0].String(),
		Value:       strings.TrimPrefix(payload.LamportDelta, "-"),
		Fee:         fmt.Sprintf("%d", result.Meta.Fee),
		Status:      status,
		BlockNumber: result.Slot,
		RawData:     rawData,
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context, address, tokenAddress string) ([]domain.WalletBalance, error) {
	if err := a.requireInit(); err != nil {
		return nil, err
	}
	if !a.IsValidAddress(address) {
		return nil, domain.NewInvalidAddressError(domain.ChainSolana, address)
	}
	owner := solana.MustPublicKeyFromBase58(address)

	if tokenAddress == "" {
		result, err := a.client.GetBalance(ctx, owner, solrpc.CommitmentFinalized)
		if err != nil {
			return nil, chain.WrapError(domain.ChainSolana, err)
		}
		return []domain.WalletBalance{{
			Chain:       domain.ChainSolana,
			Address:     address,
			TokenSymbol: "SOL",
			Amount:      fmt.Sprintf("%d", result.Value),
			Decimals:    9,
		}}, nil
	}

	mint, err := solana.PublicKeyFromBase58(tokenAddress)
	if err != nil {
		return nil, domain.NewInvalidAddressError(domain.ChainSolana, tokenAddress)
	}

	accounts, err := a.client.GetTokenAccountsByOwner(ctx, owner,
		&solrpc.GetTokenAccountsConfig{Mint: &mint},
		&solrpc.GetTokenAccountsOpts{Commitment: solrpc.CommitmentFinalized},
	)
	if err != nil {
		return nil, chain.WrapError(domain.ChainSolana, err)
	}

	total := big.NewInt(0)
	decimals := 0
	for _, acct := range accounts.Value {
		bal, err := a.client.GetTokenAccountBalance(ctx, acct.Pubkey, solrpc.CommitmentFinalized)
		if err != nil {
			return nil, chain.WrapError(domain.ChainSolana, err)
		}
		if bal.Value == nil {
			continue
		}
		amt, ok := new(big.Int).SetString(bal.Value.Amount, 10)
		if !ok {
			continue
		}
		total.Add(total, amt)
		decimals = int(bal.Value.Decimals)
	}

	return []domain.WalletBalance{{
		Chain:        domain.ChainSolana,
		Address:      address,
		TokenSymbol:  mintSymbol(tokenAddress),
		TokenAddress: tokenAddress,
		Amount:       total.String(),
		Decimals:     decimals,
	}}, nil
}

func (a *Adapter) requireInit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return &domain.ChainError{Chain: domain.ChainSolana, Kind: domain.ErrNotInitialized}
	}
	return nil
}
