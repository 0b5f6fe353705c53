package domain

import "time"

type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	TxStatusPending TxStatus = "pending"
)

// ParsedTxType classifies a canonical transaction at the adapter level.
type ParsedTxType string

const (
	TxTypeTransfer ParsedTxType = "transfer"
	TxTypeSwap     ParsedTxType = "swap"
	TxTypeStake    ParsedTxType = "stake"
	TxTypeUnstake  ParsedTxType = "unstake"
	TxTypeMint     ParsedTxType = "mint"
	TxTypeBurn     ParsedTxType = "burn"
	TxTypeDeposit  ParsedTxType = "deposit"
	TxTypeWithdraw ParsedTxType = "withdraw"
	TxTypeClaim    ParsedTxType = "claim"
	TxTypeUnknown  ParsedTxType = "unknown"
)

// RawTransaction is a chain-native transaction as fetched, before semantic
// interpretation. Value and Fee are base-unit integer strings (wei,
// lamports, satoshis), never floats, so precision survives every stage.
// RawData carries the opaque provider payload (logs, instructions,
// balances) needed by the second parsing stage.
type RawTransaction struct {
	Hash        string   `json:"hash"`
	Timestamp   int64    `json:"timestamp"` // epoch milliseconds
	From        string   `json:"from"`
	To          string   `json:"to,omitempty"`
	Value       string   `json:"value,omitempty"`
	Fee         string   `json:"fee,omitempty"`
	Status      TxStatus `json:"status"`
	BlockNumber uint64   `json:"block_number,omitempty"`
	RawData     []byte   `json:"raw_data,omitempty"`
}

// ParsedTransaction is the canonical, chain-agnostic record produced by an
// adapter from one RawTransaction. Exactly one exists per (chain, hash).
// Amount is the wallet-relative net magnitude in base units; direction is
// conveyed by Type/From/To, never by a negative string.
type ParsedTransaction struct {
	Hash         string         `json:"hash"`
	Chain        Chain          `json:"chain"`
	Type         ParsedTxType   `json:"type"`
	From         string         `json:"from"`
	To           string         `json:"to,omitempty"`
	TokenSymbol  string         `json:"token_symbol"`
	TokenAddress string         `json:"token_address,omitempty"`
	Amount       string         `json:"amount"`
	Decimals     int            `json:"decimals"`
	PriceUSD     *float64       `json:"price_usd,omitempty"`
	FeeAmount    string         `json:"fee_amount,omitempty"`
	BlockNumber  uint64         `json:"block_number,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Status       TxStatus       `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// WalletBalance is a single asset balance for an address.
type WalletBalance struct {
	Chain        Chain  `json:"chain"`
	Address      string `json:"address"`
	TokenSymbol  string `json:"token_symbol"`
	TokenAddress string `json:"token_address,omitempty"`
	Amount       string `json:"amount"` // base units
	Decimals     int    `json:"decimals"`
}
