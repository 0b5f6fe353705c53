package chain

import (
	"fmt"
	"sort"

	"github.com/vietddude/basis/internal/core/domain"
)

// Constructor builds a fresh, uninitialized adapter.
type Constructor func() Adapter

var registry = map[domain.Chain]Constructor{}

// Register adds a constructor for a chain. Called from adapter package
// init or from wiring code.
func Register(chain domain.Chain, ctor Constructor) {
	registry[chain] = ctor
}

// CreateAdapter returns a new adapter for the chain, or an error when no
// constructor is registered.
func CreateAdapter(chain domain.Chain) (Adapter, error) {
	ctor, ok := registry[chain]
	if !ok {
		return nil, fmt.Errorf("unsupported blockchain: %s", chain)
	}
	return ctor(), nil
}

// IsChainSupported reports whether a constructor is registered.
func IsChainSupported(chain domain.Chain) bool {
	_, ok := registry[chain]
	return ok
}

// SupportedChains lists registered chains in stable order.
func SupportedChains() []domain.Chain {
	chains := make([]domain.Chain, 0, len(registry))
	for c := range registry {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}
