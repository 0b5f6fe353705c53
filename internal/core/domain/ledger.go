package domain

import "time"

// LedgerType is the cost-basis vocabulary for one economic event.
type LedgerType string

const (
	LedgerBuy      LedgerType = "buy"
	LedgerSell     LedgerType = "sell"
	LedgerSwap     LedgerType = "swap"
	LedgerTransfer LedgerType = "transfer"
	LedgerAirdrop  LedgerType = "airdrop"
	LedgerReward   LedgerType = "reward"
	LedgerFee      LedgerType = "fee"
)

// LedgerTransaction is one economic event for one wallet, the cost-basis
// engine's input. Unlike the canonical adapter output, Amount here is a
// signed token-unit decimal string: negative means disposition, positive
// means acquisition. This sign convention is a deliberate interface
// contract of the engine input.
type LedgerTransaction struct {
	ID           string     `json:"id"            db:"id"`
	WalletID     string     `json:"wallet_id"     db:"wallet_id"`
	Hash         string     `json:"hash"          db:"tx_hash"`
	Chain        Chain      `json:"chain"         db:"chain"`
	Type         LedgerType `json:"type"          db:"type"`
	TokenSymbol  string     `json:"token_symbol"  db:"token_symbol"`
	TokenAddress string     `json:"token_address" db:"token_address"`
	Amount       string     `json:"amount"        db:"amount"`
	PriceUSD     *float64   `json:"price_usd"     db:"price_usd"`
	Timestamp    time.Time  `json:"timestamp"     db:"timestamp"`
	BlockNumber  uint64     `json:"block_number"  db:"block_number"`
}

// IsAcquisition reports whether the type always adds to inventory.
func (t LedgerType) IsAcquisition() bool {
	switch t {
	case LedgerBuy, LedgerAirdrop, LedgerReward:
		return true
	}
	return false
}

// IsDisposalEligible reports whether the type can dispose inventory when
// the amount is negative (outgoing).
func (t LedgerType) IsDisposalEligible() bool {
	switch t {
	case LedgerSell, LedgerSwap, LedgerTransfer:
		return true
	}
	return false
}
