package chain

import (
	"context"
	"testing"

	"github.com/vietddude/basis/internal/core/domain"
)

type stubAdapter struct {
	chain domain.Chain
}

func (s *stubAdapter) Initialize(Config) error             { return nil }
func (s *stubAdapter) IsValidAddress(string) bool          { return true }
func (s *stubAdapter) Chain() domain.Chain                 { return s.chain }
func (s *stubAdapter) GetCurrentBlockNumber(context.Context) (uint64, error) {
	return 0, nil
}
func (s *stubAdapter) GetTransactions(context.Context, string, TxQuery) ([]domain.RawTransaction, error) {
	return nil, nil
}
func (s *stubAdapter) ParseTransaction(context.Context, *domain.RawTransaction) (*domain.ParsedTransaction, error) {
	return nil, nil
}
func (s *stubAdapter) GetBalance(context.Context, string, string) ([]domain.WalletBalance, error) {
	return nil, nil
}
func (s *stubAdapter) GetTransactionByHash(context.Context, string) (*domain.RawTransaction, error) {
	return nil, nil
}

func withCleanRegistry(t *testing.T) {
	t.Helper()
	saved := registry
	registry = map[domain.Chain]Constructor{}
	t.Cleanup(func() { registry = saved })
}

func TestCreateAdapter(t *testing.T) {
	withCleanRegistry(t)
	Register(domain.ChainEthereum, func() Adapter {
		return &stubAdapter{chain: domain.ChainEthereum}
	})

	a, err := CreateAdapter(domain.ChainEthereum)
	if err != nil {
		t.Fatalf("CreateAdapter: %v", err)
	}
	if a.Chain() != domain.ChainEthereum {
		t.Errorf("chain = %s", a.Chain())
	}

	// Each call builds a fresh instance.
	b, _ := CreateAdapter(domain.ChainEthereum)
	if a == b {
		t.Error("CreateAdapter returned a shared instance")
	}
}

func TestCreateAdapterUnsupported(t *testing.T) {
	withCleanRegistry(t)
	_, err := CreateAdapter(domain.Chain("dogecoin"))
	if err == nil {
		t.Fatal("expected error for unregistered chain")
	}
}

func TestIsChainSupported(t *testing.T) {
	withCleanRegistry(t)
	Register(domain.ChainSolana, func() Adapter {
		return &stubAdapter{chain: domain.ChainSolana}
	})

	if !IsChainSupported(domain.ChainSolana) {
		t.Error("registered chain reported unsupported")
	}
	if IsChainSupported(domain.ChainBitcoin) {
		t.Error("unregistered chain reported supported")
	}
}

func TestSupportedChainsSorted(t *testing.T) {
	withCleanRegistry(t)
	for _, c := range []domain.Chain{domain.ChainSolana, domain.ChainBitcoin, domain.ChainEthereum} {
		cc := c
		Register(cc, func() Adapter { return &stubAdapter{chain: cc} })
	}

	got := SupportedChains()
	want := []domain.Chain{domain.ChainBitcoin, domain.ChainEthereum, domain.ChainSolana}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chains[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
