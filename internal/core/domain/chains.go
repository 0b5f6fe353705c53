package domain

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainSolana   Chain = "solana"
	ChainBitcoin  Chain = "bitcoin"
)

// NativeSymbol maps a chain to its native asset symbol.
var NativeSymbol = map[Chain]string{
	ChainEthereum: "ETH",
	ChainSolana:   "SOL",
	ChainBitcoin:  "BTC",
}

// NativeDecimals maps a chain to its base-unit precision
// (wei = 1e-18 ETH, lamport = 1e-9 SOL, satoshi = 1e-8 BTC).
var NativeDecimals = map[Chain]int{
	ChainEthereum: 18,
	ChainSolana:   9,
	ChainBitcoin:  8,
}

func (c Chain) String() string {
	return string(c)
}

// Valid reports whether the chain is one of the supported identifiers.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainSolana, ChainBitcoin:
		return true
	}
	return false
}
