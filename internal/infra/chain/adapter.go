package chain

import (
	"context"
	"time"

	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/pricing"
)

// Config holds per-chain adapter settings.
type Config struct {
	RPCURL string
	APIKey string
	// Network tag, e.g. "mainnet".
	Network string
	// RateLimitDelay is an optional pause between successive per-item
	// fetches (used by Solana instead of concurrency).
	RateLimitDelay time.Duration
	// ChunkSize bounds log-range queries (Ethereum). 0 = adapter default.
	ChunkSize uint64
	// MaxRetries bounds rate-limit retries. 0 = adapter default.
	MaxRetries int
	Timeout    time.Duration
	// Prices is the injected historical price capability; nil disables
	// price enrichment.
	Prices pricing.Lookup
}

// TxQuery bounds a transaction-history fetch.
type TxQuery struct {
	FromBlock uint64
	ToBlock   uint64
	FromDate  time.Time
	ToDate    time.Time
	Limit     int
	Offset    int
}

// FilterByDate drops transactions outside the query's date bounds, both
// inclusive. Zero bounds are open. Unconfirmed transactions carry no
// timestamp and fall outside any bounded query.
func FilterByDate(txs []domain.RawTransaction, q TxQuery) []domain.RawTransaction {
	if q.FromDate.IsZero() && q.ToDate.IsZero() {
		return txs
	}
	out := txs[:0]
	for _, tx := range txs {
		ts := time.UnixMilli(tx.Timestamp)
		if !q.FromDate.IsZero() && ts.Before(q.FromDate) {
			continue
		}
		if !q.ToDate.IsZero() && ts.After(q.ToDate) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Adapter is the capability contract every chain implements. The three
// chains share no implementation; selection happens via the factory.
type Adapter interface {
	// Initialize is one-shot; a second call fails with ErrAlreadyInitialized.
	Initialize(cfg Config) error

	// IsValidAddress is pure syntactic validation. Never performs network
	// I/O; used to fast-reject before any RPC call.
	IsValidAddress(address string) bool

	// GetTransactions fetches the address's transaction history, bounded
	// and paginated by q. Safe to call with wide block ranges; adapters
	// chunk internally into provider-safe windows.
	GetTransactions(ctx context.Context, address string, q TxQuery) ([]domain.RawTransaction, error)

	// ParseTransaction reduces one raw transaction to canonical form.
	// Deterministic; performs no network I/O other than the optional
	// price lookup.
	ParseTransaction(ctx context.Context, raw *domain.RawTransaction) (*domain.ParsedTransaction, error)

	// GetBalance returns the native-asset balance when tokenAddress is
	// empty, or the token/account balance otherwise.
	GetBalance(ctx context.Context, address, tokenAddress string) ([]domain.WalletBalance, error)

	// GetTransactionByHash returns (nil, nil) when the chain reports
	// not-found.
	GetTransactionByHash(ctx context.Context, hash string) (*domain.RawTransaction, error)

	// GetCurrentBlockNumber returns the latest block/slot/height.
	GetCurrentBlockNumber(ctx context.Context) (uint64, error)

	// Chain returns the chain identifier.
	Chain() domain.Chain
}
