package domain

import "time"

// Method selects the lot-consumption ordering for disposal matching.
type Method string

const (
	MethodFIFO Method = "fifo"
	MethodLIFO Method = "lifo"
)

// CostBasisEntry is one acquisition lot or one lot-consumption record.
//
// For an undisposed lot: Amount is the remaining quantity (positive) and
// CostBasisUSD the total basis of that remaining quantity. For a
// disposition record: Amount is the quantity consumed from a lot
// (negative) and CostBasisUSD holds the realized gain/loss in USD, not
// the basis.
type CostBasisEntry struct {
	ID              string    `json:"id"                db:"id"`
	TransactionID   string    `json:"transaction_id"    db:"transaction_id"`
	TokenSymbol     string    `json:"token_symbol"      db:"token_symbol"`
	Amount          string    `json:"amount"            db:"amount"`
	CostBasisUSD    float64   `json:"cost_basis_usd"    db:"cost_basis_usd"`
	AcquisitionDate time.Time `json:"acquisition_date"  db:"acquisition_date"`
	Method          Method    `json:"method"            db:"method"`
	TaxYear         int       `json:"tax_year"          db:"tax_year"`
	IsDisposed      bool      `json:"is_disposed"       db:"is_disposed"`
	DisposalTxnID   string    `json:"disposal_txn_id"   db:"disposal_txn_id"`
}

// CostBasisResult is the per-token summary produced by the engine.
// Quantities are token-unit decimal strings; gains and basis are USD.
type CostBasisResult struct {
	TokenSymbol       string            `json:"token_symbol"`
	TotalAcquired     string            `json:"total_acquired"`
	TotalDisposed     string            `json:"total_disposed"`
	RemainingQuantity string            `json:"remaining_quantity"`
	RealizedGainLoss  float64           `json:"realized_gain_loss"`
	CostBasis         float64           `json:"cost_basis"`
	Entries           []*CostBasisEntry `json:"entries"`
}
