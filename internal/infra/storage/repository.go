package storage

import (
	"context"
	"errors"

	"github.com/vietddude/basis/internal/core/domain"
)

var (
	// ErrWalletNotFound is returned when a wallet doesn't exist
	ErrWalletNotFound = errors.New("wallet not found")
)

// WalletRepository handles registered wallet storage operations
type WalletRepository interface {
	// Save inserts a wallet, updating the label on address conflict
	Save(ctx context.Context, wallet *domain.Wallet) error

	// GetByID retrieves a wallet by id
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)

	// GetByUser retrieves all wallets registered by a user
	GetByUser(ctx context.Context, userID string) ([]*domain.Wallet, error)

	// GetByAddress retrieves a wallet by chain and address
	GetByAddress(ctx context.Context, chain domain.Chain, address string) (*domain.Wallet, error)

	// Delete removes a wallet and its dependent rows
	Delete(ctx context.Context, id string) error
}

// LedgerRepository handles ledger transaction storage operations
type LedgerRepository interface {
	// SaveBatch upserts transactions, keyed by (wallet_id, chain, tx_hash)
	SaveBatch(ctx context.Context, txs []*domain.LedgerTransaction) error

	// GetByWallet retrieves a wallet's transactions ordered by timestamp
	GetByWallet(ctx context.Context, walletID string) ([]*domain.LedgerTransaction, error)

	// GetByUser retrieves all transactions across a user's wallets
	GetByUser(ctx context.Context, userID string) ([]*domain.LedgerTransaction, error)

	// DeleteByWallet removes all transactions for a wallet
	DeleteByWallet(ctx context.Context, walletID string) error
}

// CostBasisRepository handles persisted cost-basis entries
type CostBasisRepository interface {
	// ReplaceForUser atomically replaces a user's entries for one method
	ReplaceForUser(ctx context.Context, userID string, method domain.Method, entries []*domain.CostBasisEntry) error

	// GetByUser retrieves a user's entries for one method, optionally
	// filtered by tax year (0 means all years)
	GetByUser(ctx context.Context, userID string, method domain.Method, taxYear int) ([]*domain.CostBasisEntry, error)
}
