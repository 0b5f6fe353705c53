package tax

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vietddude/basis/internal/core/domain"
)

// adapter-level type → cost-basis vocabulary. Direction decides the sign;
// this table decides the word.
var typeMap = map[domain.ParsedTxType]domain.LedgerType{
	domain.TxTypeTransfer: domain.LedgerTransfer,
	domain.TxTypeSwap:     domain.LedgerSwap,
	domain.TxTypeStake:    domain.LedgerTransfer,
	domain.TxTypeUnstake:  domain.LedgerTransfer,
	domain.TxTypeMint:     domain.LedgerBuy,
	domain.TxTypeBurn:     domain.LedgerSell,
	domain.TxTypeDeposit:  domain.LedgerTransfer,
	domain.TxTypeWithdraw: domain.LedgerTransfer,
	domain.TxTypeClaim:    domain.LedgerReward,
	domain.TxTypeUnknown:  domain.LedgerTransfer,
}

// MapTransaction translates a canonical adapter transaction into the
// engine's ledger row for one wallet. The canonical amount is an unsigned
// base-unit magnitude; the ledger amount is a signed token-unit decimal
// string, negative when the wallet is the sender.
func MapTransaction(
	parsed *domain.ParsedTransaction,
	wallet *domain.Wallet,
) (*domain.LedgerTransaction, error) {
	if parsed == nil {
		return nil, fmt.Errorf("nil parsed transaction")
	}

	ledgerType, ok := typeMap[parsed.Type]
	if !ok {
		return nil, fmt.Errorf("unmapped transaction type %q", parsed.Type)
	}

	amount, err := FromBaseUnits(parsed.Amount, parsed.Decimals)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", parsed.Hash, err)
	}

	outgoing := sameAddress(parsed.From, wallet.Address) && !sameAddress(parsed.To, wallet.Address)
	if outgoing && amount != "0" && !ledgerType.IsAcquisition() {
		amount = "-" + amount
	}

	return &domain.LedgerTransaction{
		ID:           uuid.NewString(),
		WalletID:     wallet.ID,
		Hash:         parsed.Hash,
		Chain:        parsed.Chain,
		Type:         ledgerType,
		TokenSymbol:  parsed.TokenSymbol,
		TokenAddress: parsed.TokenAddress,
		Amount:       amount,
		PriceUSD:     parsed.PriceUSD,
		Timestamp:    parsed.Timestamp,
		BlockNumber:  parsed.BlockNumber,
	}, nil
}

// sameAddress compares addresses case-insensitively; EVM addresses mix
// checksum casing while base58 chains are case-sensitive but never
// collide under folding.
func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
