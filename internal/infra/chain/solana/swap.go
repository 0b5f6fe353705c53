package solana

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
)

// Known swap program ids. Presence among a transaction's account keys is
// the heuristic fallback when no decomposition is available.
var (
	jupiterProgramID        = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	raydiumV4ProgramID      = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	raydiumCLMMProgramID    = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	raydiumCPMMProgramID    = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	orcaWhirlpoolProgramID  = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	meteoraDLMMProgramID    = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	wrappedSOLMint          = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdcMint                = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	usdtMint                = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

var swapProgramNames = map[solana.PublicKey]string{
	jupiterProgramID:       "jupiter",
	raydiumV4ProgramID:     "raydium-v4",
	raydiumCLMMProgramID:   "raydium-clmm",
	raydiumCPMMProgramID:   "raydium-cpmm",
	orcaWhirlpoolProgramID: "orca-whirlpool",
	meteoraDLMMProgramID:   "meteora-dlmm",
}

var wellKnownMints = map[string]string{
	wrappedSOLMint.String(): "WSOL",
	usdcMint.String():       "USDC",
	usdtMint.String():       "USDT",
}

// swapInfo is a decoded aggregator swap: the wallet's outgoing and
// incoming legs.
type swapInfo struct {
	AMM         string `json:"amm"`
	InMint      string `json:"in_mint"`
	InAmount    string `json:"in_amount"` // base units, positive
	InDecimals  int    `json:"in_decimals"`
	OutMint     string `json:"out_mint"`
	OutAmount   string `json:"out_amount"` // base units, positive
	OutDecimals int    `json:"out_decimals"`
}

// knownSwapProgramNames lists the recognized swap programs among a
// transaction's account keys, in key order.
func knownSwapProgramNames(keys solana.PublicKeySlice) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, key := range keys {
		name, ok := swapProgramNames[key]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// extractSwap attempts a Jupiter-route decomposition: when the Jupiter
// program appears in the account keys, the owner's token balance deltas
// are resolved into one outgoing and one incoming leg. Returns (nil, nil)
// when the transaction is not a Jupiter route; errors are reported for
// the caller to log and swallow; a failed decode never fails the fetch.
func extractSwap(
	owner solana.PublicKey,
	keys solana.PublicKeySlice,
	meta *solrpc.TransactionMeta,
) (*swapInfo, error) {
	hasJupiter := false
	for _, key := range keys {
		if key.Equals(jupiterProgramID) {
			hasJupiter = true
			break
		}
	}
	if !hasJupiter {
		return nil, nil
	}

	deltas := ownerTokenDeltas(owner, meta)
	var in, out *mintDelta
	for i := range deltas {
		d := &deltas[i]
		switch {
		case d.delta.Sign() < 0 && (in == nil || absCmp(d.delta, in.delta) > 0):
			in = d
		case d.delta.Sign() > 0 && (out == nil || absCmp(d.delta, out.delta) > 0):
			out = d
		}
	}

	// Native SOL legs surface as lamport movement, not token balances.
	if in == nil || out == nil {
		lamports := lamportDelta(owner, keys, meta)
		if in == nil && lamports.Sign() < 0 {
			in = &mintDelta{mint: wrappedSOLMint.String(), delta: lamports, decimals: 9}
		}
		if out == nil && lamports.Sign() > 0 {
			out = &mintDelta{mint: wrappedSOLMint.String(), delta: lamports, decimals: 9}
		}
	}

	if in == nil || out == nil {
		return nil, fmt.Errorf("jupiter route without resolvable in/out legs for %s", owner)
	}

	return &swapInfo{
		AMM:         "jupiter",
		InMint:      in.mint,
		InAmount:    new(big.Int).Abs(in.delta).String(),
		InDecimals:  in.decimals,
		OutMint:     out.mint,
		OutAmount:   new(big.Int).Abs(out.delta).String(),
		OutDecimals: out.decimals,
	}, nil
}

type mintDelta struct {
	mint     string
	delta    *big.Int
	decimals int
}

// ownerTokenDeltas computes every signed per-mint balance change for the
// owner from pre/post token balances.
func ownerTokenDeltas(owner solana.PublicKey, meta *solrpc.TransactionMeta) []mintDelta {
	pre := map[string]mintDelta{}
	post := map[string]mintDelta{}

	collect := func(balances []solrpc.TokenBalance, into map[string]mintDelta) {
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(owner) || b.UiTokenAmount == nil {
				continue
			}
			amt, ok := new(big.Int).SetString(b.UiTokenAmount.Amount, 10)
			if !ok {
				continue
			}
			mint := b.Mint.String()
			prev, exists := into[mint]
			if !exists {
				prev = mintDelta{mint: mint, delta: big.NewInt(0)}
			}
			prev.delta.Add(prev.delta, amt)
			prev.decimals = int(b.UiTokenAmount.Decimals)
			into[mint] = prev
		}
	}
	collect(meta.PreTokenBalances, pre)
	collect(meta.PostTokenBalances, post)

	mints := map[string]struct{}{}
	for m := range pre {
		mints[m] = struct{}{}
	}
	for m := range post {
		mints[m] = struct{}{}
	}

	var out []mintDelta
	for mint := range mints {
		preAmt := big.NewInt(0)
		decimals := 0
		if e, ok := pre[mint]; ok {
			preAmt = e.delta
			decimals = e.decimals
		}
		postAmt := big.NewInt(0)
		if e, ok := post[mint]; ok {
			postAmt = e.delta
			decimals = e.decimals
		}
		delta := new(big.Int).Sub(postAmt, preAmt)
		if delta.Sign() == 0 {
			continue
		}
		out = append(out, mintDelta{mint: mint, delta: delta, decimals: decimals})
	}
	return out
}

func absCmp(a, b *big.Int) int {
	return new(big.Int).Abs(a).Cmp(new(big.Int).Abs(b))
}

// mintSymbol maps a mint to a display symbol, falling back to a shortened
// mint string for unknown tokens.
func mintSymbol(mint string) string {
	if sym, ok := wellKnownMints[mint]; ok {
		return sym
	}
	if len(mint) > 8 {
		return mint[:4] + ".." + mint[len(mint)-4:]
	}
	return mint
}
