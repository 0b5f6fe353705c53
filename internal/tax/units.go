package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts a base-unit integer string (wei, lamports,
// satoshis, token base units) to a token-unit decimal string without
// precision loss.
func FromBaseUnits(amount string, decimals int) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid base-unit amount %q: %w", amount, err)
	}
	return d.Shift(int32(-decimals)).String(), nil
}

// ToBaseUnits converts a token-unit decimal string back to a base-unit
// integer string. Fails when the value has more fractional digits than
// the token supports.
func ToBaseUnits(amount string, decimals int) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return "", fmt.Errorf("amount %q exceeds %d decimal places", amount, decimals)
	}
	return shifted.String(), nil
}
