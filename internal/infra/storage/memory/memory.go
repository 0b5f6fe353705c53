// Package memory provides in-memory repository implementations for tests
// and for running without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/storage"
)

type MemoryStorage struct {
	wallets map[string]*domain.Wallet
	ledger  map[string]*domain.LedgerTransaction // keyed by wallet|chain|hash|token
	entries map[string][]*domain.CostBasisEntry  // keyed by user|method
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		wallets: make(map[string]*domain.Wallet),
		ledger:  make(map[string]*domain.LedgerTransaction),
		entries: make(map[string][]*domain.CostBasisEntry),
	}
}

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	store *MemoryStorage
}

func NewWalletRepo(store *MemoryStorage) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Save(ctx context.Context, wallet *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *wallet
	r.store.wallets[wallet.ID] = &copied
	return nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.wallets[id]
	if !ok {
		return nil, storage.ErrWalletNotFound
	}
	copied := *w
	return &copied, nil
}

func (r *WalletRepo) GetByUser(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var wallets []*domain.Wallet
	for _, w := range r.store.wallets {
		if w.UserID == userID {
			copied := *w
			wallets = append(wallets, &copied)
		}
	}
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].CreatedAt.Before(wallets[j].CreatedAt)
	})
	return wallets, nil
}

func (r *WalletRepo) GetByAddress(
	ctx context.Context,
	chain domain.Chain,
	address string,
) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, w := range r.store.wallets {
		if w.Chain == chain && w.Address == address {
			copied := *w
			return &copied, nil
		}
	}
	return nil, storage.ErrWalletNotFound
}

func (r *WalletRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.wallets[id]; !ok {
		return storage.ErrWalletNotFound
	}
	delete(r.store.wallets, id)
	for key, t := range r.store.ledger {
		if t.WalletID == id {
			delete(r.store.ledger, key)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Ledger Repository
// -----------------------------------------------------------------------------

type LedgerRepo struct {
	store *MemoryStorage
}

func NewLedgerRepo(store *MemoryStorage) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func ledgerKey(t *domain.LedgerTransaction) string {
	return t.WalletID + "|" + string(t.Chain) + "|" + t.Hash + "|" + t.TokenSymbol
}

func (r *LedgerRepo) SaveBatch(ctx context.Context, txs []*domain.LedgerTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range txs {
		copied := *t
		r.store.ledger[ledgerKey(t)] = &copied
	}
	return nil
}

func (r *LedgerRepo) GetByWallet(
	ctx context.Context,
	walletID string,
) ([]*domain.LedgerTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var txs []*domain.LedgerTransaction
	for _, t := range r.store.ledger {
		if t.WalletID == walletID {
			copied := *t
			txs = append(txs, &copied)
		}
	}
	sortLedger(txs)
	return txs, nil
}

func (r *LedgerRepo) GetByUser(
	ctx context.Context,
	userID string,
) ([]*domain.LedgerTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var txs []*domain.LedgerTransaction
	for _, t := range r.store.ledger {
		w, ok := r.store.wallets[t.WalletID]
		if ok && w.UserID == userID {
			copied := *t
			txs = append(txs, &copied)
		}
	}
	sortLedger(txs)
	return txs, nil
}

func (r *LedgerRepo) DeleteByWallet(ctx context.Context, walletID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for key, t := range r.store.ledger {
		if t.WalletID == walletID {
			delete(r.store.ledger, key)
		}
	}
	return nil
}

func sortLedger(txs []*domain.LedgerTransaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].BlockNumber < txs[j].BlockNumber
	})
}

// -----------------------------------------------------------------------------
// Cost Basis Repository
// -----------------------------------------------------------------------------

type EntryRepo struct {
	store *MemoryStorage
}

func NewEntryRepo(store *MemoryStorage) *EntryRepo {
	return &EntryRepo{store: store}
}

func entryKey(userID string, method domain.Method) string {
	return userID + "|" + string(method)
}

func (r *EntryRepo) ReplaceForUser(
	ctx context.Context,
	userID string,
	method domain.Method,
	entries []*domain.CostBasisEntry,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := make([]*domain.CostBasisEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		copied = append(copied, &c)
	}
	r.store.entries[entryKey(userID, method)] = copied
	return nil
}

func (r *EntryRepo) GetByUser(
	ctx context.Context,
	userID string,
	method domain.Method,
	taxYear int,
) ([]*domain.CostBasisEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.CostBasisEntry
	for _, e := range r.store.entries[entryKey(userID, method)] {
		if taxYear != 0 && e.TaxYear != taxYear {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AcquisitionDate.Before(out[j].AcquisitionDate)
	})
	return out, nil
}
