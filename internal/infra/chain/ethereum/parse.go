package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vietddude/basis/internal/core/domain"
)

// transferLeg is one decoded ERC-20 Transfer log.
type transferLeg struct {
	Contract string `json:"contract"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ParseTransaction reduces one raw transaction to canonical form. Token
// metadata was resolved during stage 1 and rides in RawData, so this stage
// performs no network I/O beyond the optional price lookup.
//
// Zero decoded Transfer logs means a plain ETH transfer, exactly one a
// token transfer, more than one a swap.
func (a *Adapter) ParseTransaction(ctx context.Context, raw *domain.RawTransaction) (*domain.ParsedTransaction, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil raw transaction")
	}

	var payload rawPayload
	if len(raw.RawData) > 0 {
		if err := json.Unmarshal(raw.RawData, &payload); err != nil {
			return nil, fmt.Errorf("decode raw payload for %s: %w", raw.Hash, err)
		}
	}

	legs := decodeTransferLegs(payload)

	parsed := &domain.ParsedTransaction{
		Hash:        raw.Hash,
		Chain:       domain.ChainEthereum,
		From:        raw.From,
		To:          raw.To,
		FeeAmount:   raw.Fee,
		BlockNumber: raw.BlockNumber,
		Timestamp:   time.UnixMilli(raw.Timestamp).UTC(),
		Status:      raw.Status,
		Metadata:    map[string]any{},
	}

	switch len(legs) {
	case 0:
		parsed.Type = domain.TxTypeTransfer
		parsed.TokenSymbol = "ETH"
		parsed.Decimals = 18
		parsed.Amount = raw.Value
		if parsed.Amount == "" {
			parsed.Amount = "0"
		}
	case 1:
		leg := legs[0]
		parsed.Type = domain.TxTypeTransfer
		parsed.TokenSymbol = leg.Symbol
		parsed.TokenAddress = leg.Contract
		parsed.Decimals = leg.Decimals
		parsed.Amount = leg.Value
		parsed.From = leg.From
		parsed.To = leg.To
		parsed.Metadata["transfer"] = leg
	default:
		// Multiple token movements in one transaction: classify as swap
		// and keep every decoded leg for audit.
		leg := legs[0]
		parsed.Type = domain.TxTypeSwap
		parsed.TokenSymbol = leg.Symbol
		parsed.TokenAddress = leg.Contract
		parsed.Decimals = leg.Decimals
		parsed.Amount = leg.Value
		parsed.Metadata["transfers"] = legs
	}

	a.enrichPrice(ctx, parsed)
	return parsed, nil
}

func (a *Adapter) enrichPrice(ctx context.Context, parsed *domain.ParsedTransaction) {
	if a.prices == nil {
		return
	}
	pt, err := a.prices.GetHistoricalPrice(ctx, parsed.TokenSymbol, parsed.Timestamp, domain.ChainEthereum)
	if err != nil {
		a.log.Warn("price lookup failed", "chain", "ethereum", "symbol", parsed.TokenSymbol, "error", err)
		return
	}
	if pt != nil {
		parsed.PriceUSD = &pt.Price
	}
}

// decodeTransferLegs decodes every Transfer log in the receipt via the
// standard event signature.
func decodeTransferLegs(payload rawPayload) []transferLeg {
	if payload.Receipt == nil {
		return nil
	}
	logs, ok := payload.Receipt["logs"].([]any)
	if !ok {
		return nil
	}

	var legs []transferLeg
	for _, logRaw := range logs {
		logData, ok := logRaw.(map[string]any)
		if !ok {
			continue
		}
		topics, ok := logData["topics"].([]any)
		if !ok || len(topics) < 3 {
			continue
		}
		if getString(topics[0]) != transferEventSig {
			continue
		}

		contract := strings.ToLower(getString(logData["address"]))
		value := "0"
		if dataHex := getString(logData["data"]); len(dataHex) > 2 {
			if parsed, err := parseHexBig(dataHex); err == nil {
				value = parsed.String()
			}
		}

		leg := transferLeg{
			Contract: contract,
			From:     extractAddress(getString(topics[1])),
			To:       extractAddress(getString(topics[2])),
			Value:    value,
			Symbol:   shortAddress(contract),
			Decimals: 18,
		}
		if meta, ok := payload.Tokens[contract]; ok {
			leg.Symbol = meta.Symbol
			leg.Decimals = meta.Decimals
		}
		legs = append(legs, leg)
	}
	return legs
}

// Helpers

// extractAddress normalizes a 32-byte topic to a lowercase address.
func extractAddress(topic string) string {
	if len(topic) >= 42 {
		return strings.ToLower("0x" + topic[len(topic)-40:])
	}
	return ""
}

// addressTopic pads an address into the 32-byte topic slot.
func addressTopic(address string) string {
	return "0x000000000000000000000000" + strings.TrimPrefix(strings.ToLower(address), "0x")
}

func shortAddress(contract string) string {
	s := strings.TrimPrefix(contract, "0x")
	if len(s) > 8 {
		s = s[:8]
	}
	return "TKN-" + strings.ToUpper(s)
}

func parseHexBig(hexStr string) (*big.Int, error) {
	s := strings.TrimPrefix(hexStr, "0x")
	if s == "" {
		return nil, fmt.Errorf("empty hex")
	}
	n := new(big.Int)
	if _, ok := n.SetString(s, 16); !ok {
		return nil, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return n, nil
}

func parseHexUint64(hexStr string) (uint64, error) {
	n, err := parseHexBig(hexStr)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func hexToDecimal(hexStr string) string {
	if hexStr == "" || hexStr == "0x" {
		return "0"
	}
	n, err := parseHexBig(hexStr)
	if err != nil {
		return "0"
	}
	return n.String()
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// decodeABIString decodes an ABI-encoded string return value (offset,
// length, data). Some older tokens return bytes32 instead; both shapes are
// handled.
func decodeABIString(hexStr string) string {
	s := strings.TrimPrefix(hexStr, "0x")
	if s == "" {
		return ""
	}

	decode := func(hexPart string) string {
		var out []byte
		for i := 0; i+1 < len(hexPart); i += 2 {
			var b byte
			if _, err := fmt.Sscanf(hexPart[i:i+2], "%02x", &b); err != nil {
				return ""
			}
			if b == 0 {
				break
			}
			out = append(out, b)
		}
		return strings.TrimSpace(string(out))
	}

	// Dynamic string: two 32-byte words (offset, length) then data.
	if len(s) >= 192 {
		length, err := parseHexUint64("0x" + s[64:128])
		if err == nil && length > 0 && 128+int(length)*2 <= len(s) {
			return decode(s[128 : 128+int(length)*2])
		}
	}

	// bytes32 fallback
	if len(s) == 64 {
		return decode(s)
	}
	return ""
}
