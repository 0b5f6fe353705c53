package tax

import (
	"testing"
	"time"

	"github.com/vietddude/basis/internal/core/domain"
)

func testWallet(chain domain.Chain, address string) *domain.Wallet {
	return &domain.Wallet{
		ID:      "wallet-1",
		UserID:  "user-1",
		Chain:   chain,
		Address: address,
	}
}

func parsedTx(typ domain.ParsedTxType, from, to, amount string, decimals int) *domain.ParsedTransaction {
	return &domain.ParsedTransaction{
		Hash:        "0xabc",
		Chain:       domain.ChainEthereum,
		Type:        typ,
		From:        from,
		To:          to,
		TokenSymbol: "ETH",
		Amount:      amount,
		Decimals:    decimals,
		Timestamp:   time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:      domain.TxStatusSuccess,
	}
}

func TestMapTransactionOutgoingIsNegative(t *testing.T) {
	wallet := testWallet(domain.ChainEthereum, "0xAAAA000000000000000000000000000000000001")
	parsed := parsedTx(domain.TxTypeTransfer,
		wallet.Address, "0xBBBB000000000000000000000000000000000002",
		"1500000000000000000", 18)

	row, err := MapTransaction(parsed, wallet)
	if err != nil {
		t.Fatalf("MapTransaction: %v", err)
	}
	if row.Amount != "-1.5" {
		t.Errorf("amount = %q, want %q", row.Amount, "-1.5")
	}
	if row.Type != domain.LedgerTransfer {
		t.Errorf("type = %q, want %q", row.Type, domain.LedgerTransfer)
	}
}

func TestMapTransactionIncomingIsPositive(t *testing.T) {
	wallet := testWallet(domain.ChainEthereum, "0xAAAA000000000000000000000000000000000001")
	parsed := parsedTx(domain.TxTypeTransfer,
		"0xBBBB000000000000000000000000000000000002", wallet.Address,
		"1500000000000000000", 18)

	row, err := MapTransaction(parsed, wallet)
	if err != nil {
		t.Fatalf("MapTransaction: %v", err)
	}
	if row.Amount != "1.5" {
		t.Errorf("amount = %q, want %q", row.Amount, "1.5")
	}
}

func TestMapTransactionAddressCaseInsensitive(t *testing.T) {
	wallet := testWallet(domain.ChainEthereum, "0xaaaa000000000000000000000000000000000001")
	parsed := parsedTx(domain.TxTypeTransfer,
		"0xAAAA000000000000000000000000000000000001", "0xBBBB000000000000000000000000000000000002",
		"1000000000000000000", 18)

	row, err := MapTransaction(parsed, wallet)
	if err != nil {
		t.Fatalf("MapTransaction: %v", err)
	}
	if row.Amount != "-1" {
		t.Errorf("amount = %q, want %q (checksum casing must not hide direction)", row.Amount, "-1")
	}
}

func TestMapTransactionTypeVocabulary(t *testing.T) {
	cases := []struct {
		in   domain.ParsedTxType
		want domain.LedgerType
	}{
		{domain.TxTypeSwap, domain.LedgerSwap},
		{domain.TxTypeMint, domain.LedgerBuy},
		{domain.TxTypeBurn, domain.LedgerSell},
		{domain.TxTypeClaim, domain.LedgerReward},
		{domain.TxTypeStake, domain.LedgerTransfer},
		{domain.TxTypeUnknown, domain.LedgerTransfer},
	}

	wallet := testWallet(domain.ChainEthereum, "0xAAAA000000000000000000000000000000000001")
	for _, c := range cases {
		parsed := parsedTx(c.in, "0xBBBB000000000000000000000000000000000002", wallet.Address, "1", 0)
		row, err := MapTransaction(parsed, wallet)
		if err != nil {
			t.Fatalf("MapTransaction(%q): %v", c.in, err)
		}
		if row.Type != c.want {
			t.Errorf("type for %q = %q, want %q", c.in, row.Type, c.want)
		}
	}
}

func TestMapTransactionAcquisitionNeverNegated(t *testing.T) {
	wallet := testWallet(domain.ChainEthereum, "0xAAAA000000000000000000000000000000000001")
	parsed := parsedTx(domain.TxTypeClaim,
		wallet.Address, "0xBBBB000000000000000000000000000000000002", "2500000000", 9)

	row, err := MapTransaction(parsed, wallet)
	if err != nil {
		t.Fatalf("MapTransaction: %v", err)
	}
	if row.Amount != "2.5" {
		t.Errorf("amount = %q, want %q (rewards stay positive)", row.Amount, "2.5")
	}
}

func TestMapTransactionNilParsed(t *testing.T) {
	if _, err := MapTransaction(nil, testWallet(domain.ChainEthereum, "0x1")); err == nil {
		t.Error("expected error for nil transaction")
	}
}
