// Package control wires adapters, storage, pricing and the cost-basis
// engine into the two user-facing operations: sync and report.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/basis/internal/control/metrics"
	"github.com/vietddude/basis/internal/core/config"
	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/chain"
	"github.com/vietddude/basis/internal/infra/chain/bitcoin"
	"github.com/vietddude/basis/internal/infra/chain/ethereum"
	"github.com/vietddude/basis/internal/infra/chain/solana"
	redisclient "github.com/vietddude/basis/internal/infra/redis"
	"github.com/vietddude/basis/internal/infra/storage"
	"github.com/vietddude/basis/internal/infra/storage/memory"
	"github.com/vietddude/basis/internal/infra/storage/postgres"
	"github.com/vietddude/basis/internal/pricing"
	"github.com/vietddude/basis/internal/tax"
)

const syncConcurrency = 5

// FailureReason classifies why a wallet sync failed, for the per-wallet
// report shown to the user.
type FailureReason string

const (
	ReasonInvalidAddress FailureReason = "invalid_address"
	ReasonRateLimited    FailureReason = "rate_limited"
	ReasonNetwork        FailureReason = "network"
	ReasonStorage        FailureReason = "storage"
)

// WalletReport is one wallet's sync outcome.
type WalletReport struct {
	WalletID      string
	Chain         domain.Chain
	Address       string
	Fetched       int
	Saved         int
	ParseFailures int
	Err           error
	Reason        FailureReason
}

// SyncReport aggregates per-wallet outcomes for one SyncUser call. A
// wallet's failure never aborts its siblings; callers inspect each entry.
type SyncReport struct {
	UserID  string
	Wallets []WalletReport
}

// Failed returns the reports of wallets whose sync failed.
func (r *SyncReport) Failed() []WalletReport {
	var failed []WalletReport
	for _, w := range r.Wallets {
		if w.Err != nil {
			failed = append(failed, w)
		}
	}
	return failed
}

// ReportOptions controls a cost-basis report run.
type ReportOptions struct {
	Method       domain.Method
	TaxYear      int
	Jurisdiction string
}

// Report is the outcome of a cost-basis run. UnpricedEntries counts
// ledger rows that carried no USD price; the engine treats those as
// zero-cost rather than failing, so presentation layers flag them here.
type Report struct {
	Results         []domain.CostBasisResult
	UnpricedEntries int
}

// Syncer owns the adapters and repositories for sync and report runs.
type Syncer struct {
	adapters map[domain.Chain]chain.Adapter
	wallets  storage.WalletRepository
	ledger   storage.LedgerRepository
	entries  storage.CostBasisRepository
	engine   *tax.Engine
	redis    *redisclient.Client
	db       *postgres.DB
	log      *slog.Logger
}

// NewSyncer builds a syncer from configuration: storage (PostgreSQL when a
// database URL is set, in-memory otherwise), the price lookup (Redis-backed
// cache when configured), and one initialized adapter per configured chain.
func NewSyncer(ctx context.Context, cfg *config.AppConfig) (*Syncer, error) {
	s := &Syncer{
		adapters: make(map[domain.Chain]chain.Adapter),
		engine:   tax.NewEngine(),
		log:      slog.Default(),
	}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(cfg.Migrations); err != nil {
			return nil, err
		}
		s.db = db
		s.wallets = postgres.NewWalletRepo(db)
		s.ledger = postgres.NewLedgerRepo(db)
		s.entries = postgres.NewEntryRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		s.wallets = memory.NewWalletRepo(store)
		s.ledger = memory.NewLedgerRepo(store)
		s.entries = memory.NewEntryRepo(store)
		slog.Info("Using Memory storage")
	}

	var prices pricing.Lookup
	if cfg.Pricing.Enabled {
		var cache pricing.Cache
		if cfg.Redis.URL != "" {
			rc, err := redisclient.NewClient(cfg.Redis)
			if err != nil {
				return nil, fmt.Errorf("failed to init redis: %w", err)
			}
			s.redis = rc
			cache = rc
		}
		prices = pricing.NewCoinGecko(cfg.Pricing.BaseURL, cfg.Pricing.APIKey, cache)
	}

	for _, chainCfg := range cfg.Chains {
		adapter, err := chain.CreateAdapter(chainCfg.Chain)
		if err != nil {
			return nil, err
		}
		err = adapter.Initialize(chain.Config{
			RPCURL:         chainCfg.RPCURL,
			APIKey:         chainCfg.APIKey,
			Network:        chainCfg.Network,
			RateLimitDelay: chainCfg.RateLimitDelay,
			ChunkSize:      chainCfg.ChunkSize,
			MaxRetries:     chainCfg.MaxRetries,
			Timeout:        chainCfg.Timeout,
			Prices:         prices,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init %s adapter: %w", chainCfg.Chain, err)
		}
		s.adapters[chainCfg.Chain] = adapter
	}

	return s, nil
}

func init() {
	chain.Register(domain.ChainEthereum, ethereum.NewAdapter)
	chain.Register(domain.ChainSolana, solana.NewAdapter)
	chain.Register(domain.ChainBitcoin, bitcoin.NewAdapter)
}

// Close releases held connections.
func (s *Syncer) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// SyncUser fetches and persists ledger rows for every wallet the user has
// registered. Wallets run concurrently; each wallet's outcome lands in the
// returned report and one failure never aborts the rest.
func (s *Syncer) SyncUser(ctx context.Context, userID string, q chain.TxQuery) (*SyncReport, error) {
	wallets, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}

	report := &SyncReport{
		UserID:  userID,
		Wallets: make([]WalletReport, len(wallets)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)

	for i, w := range wallets {
		i, w := i, w
		g.Go(func() error {
			report.Wallets[i] = s.syncWallet(gctx, w, q)
			return nil
		})
	}
	// Workers never return errors; failures live in the report.
	_ = g.Wait()

	return report, nil
}

func (s *Syncer) syncWallet(ctx context.Context, wallet *domain.Wallet, q chain.TxQuery) WalletReport {
	wr := WalletReport{
		WalletID: wallet.ID,
		Chain:    wallet.Chain,
		Address:  wallet.Address,
	}

	adapter, ok := s.adapters[wallet.Chain]
	if !ok {
		wr.Err = fmt.Errorf("no adapter configured for chain %s", wallet.Chain)
		wr.Reason = ReasonNetwork
		metrics.WalletsSynced.WithLabelValues(string(wallet.Chain), "failed").Inc()
		return wr
	}

	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues(string(wallet.Chain)).Observe(time.Since(start).Seconds())
	}()

	raws, err := adapter.GetTransactions(ctx, wallet.Address, q)
	if err != nil {
		wr.Err = err
		wr.Reason = classify(err)
		s.log.Error("wallet sync failed",
			"chain", wallet.Chain, "address", wallet.Address, "reason", wr.Reason, "error", err)
		metrics.WalletsSynced.WithLabelValues(string(wallet.Chain), "failed").Inc()
		return wr
	}
	wr.Fetched = len(raws)
	metrics.TransactionsFetched.WithLabelValues(string(wallet.Chain)).Add(float64(len(raws)))

	var rows []*domain.LedgerTransaction
	for i := range raws {
		parsed, err := adapter.ParseTransaction(ctx, &raws[i])
		if err != nil {
			// One bad record never aborts the batch.
			wr.ParseFailures++
			metrics.ParseFailures.WithLabelValues(string(wallet.Chain)).Inc()
			s.log.Warn("skipping unparseable transaction",
				"chain", wallet.Chain, "hash", raws[i].Hash, "error", err)
			continue
		}
		row, err := tax.MapTransaction(parsed, wallet)
		if err != nil {
			wr.ParseFailures++
			metrics.ParseFailures.WithLabelValues(string(wallet.Chain)).Inc()
			s.log.Warn("skipping unmappable transaction",
				"chain", wallet.Chain, "hash", parsed.Hash, "error", err)
			continue
		}
		rows = append(rows, row)
	}

	if err := s.ledger.SaveBatch(ctx, rows); err != nil {
		wr.Err = err
		wr.Reason = ReasonStorage
		metrics.WalletsSynced.WithLabelValues(string(wallet.Chain), "failed").Inc()
		return wr
	}
	wr.Saved = len(rows)
	metrics.WalletsSynced.WithLabelValues(string(wallet.Chain), "success").Inc()
	return wr
}

// Report loads the user's ledger, runs the cost-basis engine and persists
// the resulting entries.
func (s *Syncer) Report(ctx context.Context, userID string, opts ReportOptions) (*Report, error) {
	txs, err := s.ledger.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	method := opts.Method
	if method == "" {
		method = domain.MethodFIFO
	}

	unpriced := 0
	input := make([]domain.LedgerTransaction, 0, len(txs))
	for _, t := range txs {
		if t.PriceUSD == nil {
			unpriced++
		}
		input = append(input, *t)
	}

	results := s.engine.Calculate(input, tax.Options{
		Method:       method,
		TaxYear:      opts.TaxYear,
		Jurisdiction: opts.Jurisdiction,
	})
	metrics.ReportsGenerated.WithLabelValues(string(method)).Inc()

	var entries []*domain.CostBasisEntry
	for _, r := range results {
		entries = append(entries, r.Entries...)
	}
	if err := s.entries.ReplaceForUser(ctx, userID, method, entries); err != nil {
		return nil, fmt.Errorf("failed to persist cost basis entries: %w", err)
	}

	return &Report{Results: results, UnpricedEntries: unpriced}, nil
}

// RegisterWallet validates the address with the chain's adapter before
// persisting. Validation is pure; no network call happens here.
func (s *Syncer) RegisterWallet(ctx context.Context, wallet *domain.Wallet) error {
	adapter, ok := s.adapters[wallet.Chain]
	if !ok {
		return fmt.Errorf("no adapter configured for chain %s", wallet.Chain)
	}
	if !adapter.IsValidAddress(wallet.Address) {
		return domain.NewInvalidAddressError(wallet.Chain, wallet.Address)
	}
	if err := s.wallets.Save(ctx, wallet); err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

func classify(err error) FailureReason {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return ReasonInvalidAddress
	case errors.Is(err, domain.ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonNetwork
	}
}
