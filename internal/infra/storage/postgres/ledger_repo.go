package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/basis/internal/core/domain"
)

// LedgerRepo implements storage.LedgerRepository using PostgreSQL.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new PostgreSQL ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// SaveBatch upserts transactions keyed by (wallet_id, chain, tx_hash) so a
// re-sync refreshes price and amount without duplicating rows.
func (r *LedgerRepo) SaveBatch(ctx context.Context, txs []*domain.LedgerTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO ledger_transactions (
			id, wallet_id, tx_hash, chain, type, token_symbol, token_address,
			amount, price_usd, timestamp, block_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (wallet_id, chain, tx_hash, token_symbol) DO UPDATE SET
			type = EXCLUDED.type,
			amount = EXCLUDED.amount,
			price_usd = EXCLUDED.price_usd
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.WalletID, t.Hash, string(t.Chain), string(t.Type),
			t.TokenSymbol, t.TokenAddress, t.Amount, t.PriceUSD,
			t.Timestamp, t.BlockNumber,
		)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", t.Hash, err)
		}
	}

	return tx.Commit()
}

// GetByWallet retrieves a wallet's transactions ordered by timestamp.
func (r *LedgerRepo) GetByWallet(
	ctx context.Context,
	walletID string,
) ([]*domain.LedgerTransaction, error) {
	var txs []*domain.LedgerTransaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT * FROM ledger_transactions WHERE wallet_id = $1 ORDER BY timestamp, block_number`,
		walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for wallet: %w", err)
	}
	return txs, nil
}

// GetByUser retrieves all transactions across a user's wallets, ordered by
// timestamp so the engine sees dispositions in chronological order.
func (r *LedgerRepo) GetByUser(
	ctx context.Context,
	userID string,
) ([]*domain.LedgerTransaction, error) {
	query := `
		SELECT t.* FROM ledger_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1
		ORDER BY t.timestamp, t.block_number
	`
	var txs []*domain.LedgerTransaction
	if err := r.db.SelectContext(ctx, &txs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get transactions for user: %w", err)
	}
	return txs, nil
}

// DeleteByWallet removes all transactions for a wallet.
func (r *LedgerRepo) DeleteByWallet(ctx context.Context, walletID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_transactions WHERE wallet_id = $1`, walletID)
	if err != nil {
		return fmt.Errorf("failed to delete transactions for wallet: %w", err)
	}
	return nil
}
