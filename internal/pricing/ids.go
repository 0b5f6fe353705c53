package pricing

import (
	"strings"

	"github.com/vietddude/basis/internal/core/domain"
)

// Symbol → CoinGecko id tables, scoped per chain. Native assets first,
// then the common ERC-20 / SPL sets. No match resolves to "" and the
// lookup returns nil gracefully.

var nativeIDs = map[domain.Chain]string{
	domain.ChainEthereum: "ethereum",
	domain.ChainSolana:   "solana",
	domain.ChainBitcoin:  "bitcoin",
}

var erc20IDs = map[string]string{
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"DAI":   "dai",
	"WETH":  "weth",
	"WBTC":  "wrapped-bitcoin",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"MATIC": "matic-network",
	"SHIB":  "shiba-inu",
}

var splIDs = map[string]string{
	"USDT": "tether",
	"USDC": "usd-coin",
	"RAY":  "raydium",
	"JUP":  "jupiter-exchange-solana",
	"BONK": "bonk",
	"WSOL": "wrapped-solana",
	"ORCA": "orca",
}

// coinID resolves a symbol to an external id for the given chain.
func coinID(symbol string, chain domain.Chain) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return ""
	}
	if sym == domain.NativeSymbol[chain] {
		return nativeIDs[chain]
	}
	switch chain {
	case domain.ChainEthereum:
		return erc20IDs[sym]
	case domain.ChainSolana:
		return splIDs[sym]
	}
	return ""
}
