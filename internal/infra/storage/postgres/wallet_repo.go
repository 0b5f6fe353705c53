package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/storage"
)

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	db *DB
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Save saves a wallet, updating the label when the address is already
// registered for the chain.
func (r *WalletRepo) Save(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, chain, address, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id, chain, address) DO UPDATE SET
			label = EXCLUDED.label,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		wallet.ID, wallet.UserID, string(wallet.Chain), wallet.Address, wallet.Label,
	)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// GetByID retrieves a wallet by id.
func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.db.GetContext(ctx, &wallet, `SELECT * FROM wallets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// GetByUser retrieves all wallets registered by a user.
func (r *WalletRepo) GetByUser(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	err := r.db.SelectContext(ctx, &wallets,
		`SELECT * FROM wallets WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets for user: %w", err)
	}
	return wallets, nil
}

// GetByAddress retrieves a wallet by chain and address.
func (r *WalletRepo) GetByAddress(
	ctx context.Context,
	chain domain.Chain,
	address string,
) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.db.GetContext(ctx, &wallet,
		`SELECT * FROM wallets WHERE chain = $1 AND address = $2`, string(chain), address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet by address: %w", err)
	}
	return &wallet, nil
}

// Delete removes a wallet. Ledger rows cascade via the schema.
func (r *WalletRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrWalletNotFound
	}
	return nil
}
