package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vietddude/basis/internal/core/domain"
)

// ParseTransaction reduces one raw transaction to canonical form using
// the stage-1 payload. Priority: aggregator decomposition, then known
// swap-program heuristic, then SPL balance delta, then native SOL delta.
func (a *Adapter) ParseTransaction(ctx context.Context, raw *domain.RawTransaction) (*domain.ParsedTransaction, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil raw transaction")
	}

	var payload solPayload
	if len(raw.RawData) > 0 {
		if err := json.Unmarshal(raw.RawData, &payload); err != nil {
			return nil, fmt.Errorf("decode raw payload for %s: %w", raw.Hash, err)
		}
	}

	parsed := &domain.ParsedTransaction{
		Hash:        raw.Hash,
		Chain:       domain.ChainSolana,
		From:        raw.From,
		FeeAmount:   raw.Fee,
		BlockNumber: raw.BlockNumber,
		Timestamp:   time.UnixMilli(raw.Timestamp).UTC(),
		Status:      raw.Status,
		Metadata:    map[string]any{},
	}

	switch {
	case payload.Swap != nil:
		swap := payload.Swap
		parsed.Type = domain.TxTypeSwap
		// Primary leg is what the wallet received.
		parsed.TokenSymbol = mintSymbol(swap.OutMint)
		parsed.TokenAddress = swap.OutMint
		parsed.Amount = swap.OutAmount
		parsed.Decimals = swap.OutDecimals
		parsed.To = payload.Owner
		parsed.Metadata["swap"] = swap

	case len(payload.SwapPrograms) > 0:
		// A known swap program touched the wallet but no decomposition
		// was recoverable; record the swap without leg detail.
		parsed.Type = domain.TxTypeSwap
		parsed.TokenSymbol = "SOL"
		parsed.Decimals = 9
		parsed.Amount = absString(payload.LamportDelta)
		parsed.Metadata["swap_programs"] = payload.SwapPrograms

	case payload.SPL != nil:
		spl := payload.SPL
		parsed.Type = domain.TxTypeTransfer
		parsed.TokenSymbol = mintSymbol(spl.Mint)
		parsed.TokenAddress = spl.Mint
		parsed.Amount = absString(spl.Delta)
		parsed.Decimals = spl.Decimals
		if strings.HasPrefix(spl.Delta, "-") {
			parsed.From = payload.Owner
		} else {
			parsed.To = payload.Owner
		}
		parsed.Metadata["spl_delta"] = spl

	default:
		parsed.Type = domain.TxTypeTransfer
		parsed.TokenSymbol = "SOL"
		parsed.Decimals = 9
		parsed.Amount = absString(payload.LamportDelta)
		if strings.HasPrefix(payload.LamportDelta, "-") {
			parsed.From = payload.Owner
		} else {
			parsed.To = payload.Owner
		}
	}

	// Historical price lookup is best-effort; a miss leaves PriceUSD
	// unset rather than failing the parse.
	if a.prices != nil {
		pt, err := a.prices.GetHistoricalPrice(ctx, parsed.TokenSymbol, parsed.Timestamp, domain.ChainSolana)
		if err != nil {
			a.log.Warn("price lookup failed", "chain", "solana", "symbol", parsed.TokenSymbol, "error", err)
		} else if pt != nil {
			parsed.PriceUSD = &pt.Price
		}
	}

	return parsed, nil
}

func absString(s string) string {
	if s == "" {
		return "0"
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "0"
	}
	return n.Abs(n).String()
}
