package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/basis/internal/core/domain"
)

// EntryRepo implements storage.CostBasisRepository using PostgreSQL.
type EntryRepo struct {
	db *DB
}

// NewEntryRepo creates a new PostgreSQL cost-basis entry repository.
func NewEntryRepo(db *DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// ReplaceForUser drops and rewrites a user's entries for one method in a
// single transaction. Entries are derived data; a rerun of the engine is
// the source of truth, so replace beats reconcile.
func (r *EntryRepo) ReplaceForUser(
	ctx context.Context,
	userID string,
	method domain.Method,
	entries []*domain.CostBasisEntry,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM cost_basis_entries WHERE user_id = $1 AND method = $2`,
		userID, string(method))
	if err != nil {
		return fmt.Errorf("failed to clear cost basis entries: %w", err)
	}

	query := `
		INSERT INTO cost_basis_entries (
			id, user_id, transaction_id, token_symbol, amount, cost_basis_usd,
			acquisition_date, method, tax_year, is_disposed, disposal_txn_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ID, userID, e.TransactionID, e.TokenSymbol, e.Amount, e.CostBasisUSD,
			e.AcquisitionDate, string(e.Method), e.TaxYear, e.IsDisposed, e.DisposalTxnID,
		)
		if err != nil {
			return fmt.Errorf("failed to save cost basis entry: %w", err)
		}
	}

	return tx.Commit()
}

// GetByUser retrieves a user's entries for one method. taxYear 0 means all
// years.
func (r *EntryRepo) GetByUser(
	ctx context.Context,
	userID string,
	method domain.Method,
	taxYear int,
) ([]*domain.CostBasisEntry, error) {
	query := `
		SELECT id, transaction_id, token_symbol, amount, cost_basis_usd,
			acquisition_date, method, tax_year, is_disposed, disposal_txn_id
		FROM cost_basis_entries
		WHERE user_id = $1 AND method = $2 AND ($3 = 0 OR tax_year = $3)
		ORDER BY acquisition_date
	`
	var entries []*domain.CostBasisEntry
	err := r.db.SelectContext(ctx, &entries, query, userID, string(method), taxYear)
	if err != nil {
		return nil, fmt.Errorf("failed to get cost basis entries: %w", err)
	}
	return entries, nil
}
