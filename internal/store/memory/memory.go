// Package memory implements the store interfaces in process memory.
//
// Store offers single-row compare-and-swap only, which drives the engine's
// lock-ordered strategy. TxStore adds multi-row transactions with row locks
// held until commit, mirroring SELECT ... FOR UPDATE.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// Store is an in-memory AccountStore and TransactionLog.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	byNumber map[string]string
	txns     []model.Transaction
	txnIndex map[string]int
}

var (
	_ store.AccountStore   = (*Store)(nil)
	_ store.TransactionLog = (*Store)(nil)
	_ store.Aggregator     = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]model.Account),
		byNumber: make(map[string]string),
		txnIndex: make(map[string]int),
	}
}

// GetByID implements store.AccountStore.
func (s *Store) GetByID(_ context.Context, id string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	return a, nil
}

// GetByNumber implements store.AccountStore.
func (s *Store) GetByNumber(_ context.Context, number string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[number]
	if !ok {
		return model.Account{}, fmt.Errorf("account number %s: %w", number, store.ErrNotFound)
	}
	return s.accounts[id], nil
}

// ExistsByNumber implements store.AccountStore.
func (s *Store) ExistsByNumber(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNumber[number]
	return ok, nil
}

// ListByOwner implements store.AccountStore. Results are ordered by creation time.
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.Account
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			result = append(result, a)
		}
	}
	sortAccounts(result)
	return result, nil
}

// List implements store.AccountStore.
func (s *Store) List(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	sortAccounts(result)
	return result, nil
}

// Create implements store.AccountStore.
func (s *Store) Create(_ context.Context, acct model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return fmt.Errorf("account %s: %w", acct.ID, store.ErrDuplicate)
	}
	if _, ok := s.byNumber[acct.Number]; ok {
		return fmt.Errorf("account number %s: %w", acct.Number, store.ErrDuplicate)
	}
	s.accounts[acct.ID] = acct
	s.byNumber[acct.Number] = acct.ID
	return nil
}

// CompareAndSwapBalance implements store.AccountStore.
func (s *Store) CompareAndSwapBalance(_ context.Context, id string, expected, next decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if !a.Balance.Equal(expected) {
		return fmt.Errorf("account %s balance %s, expected %s: %w", id, a.Balance, expected, store.ErrConflict)
	}
	if next.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s rejected", id, next)
	}
	a.Balance = next
	a.Version++
	s.accounts[id] = a
	return nil
}

// Append implements store.TransactionLog.
func (s *Store) Append(_ context.Context, txn model.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(txn); err != nil {
		return "", err
	}
	return txn.ID, nil
}

func (s *Store) appendLocked(txn model.Transaction) error {
	if _, ok := s.txnIndex[txn.ID]; ok {
		return fmt.Errorf("transaction %s: %w", txn.ID, store.ErrDuplicate)
	}
	s.txnIndex[txn.ID] = len(s.txns)
	s.txns = append(s.txns, txn)
	return nil
}

// GetTransaction implements store.TransactionLog.
func (s *Store) GetTransaction(_ context.Context, id string) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.txnIndex[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return s.txns[i], nil
}

// ListByAccount implements store.TransactionLog.
func (s *Store) ListByAccount(_ context.Context, accountID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.Transaction
	// Walk backwards so equal timestamps keep newest-appended first.
	for i := len(s.txns) - 1; i >= 0; i-- {
		if s.txns[i].Touches(accountID) {
			result = append(result, s.txns[i])
		}
	}
	slices.SortStableFunc(result, func(a, b model.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func sortAccounts(accts []model.Account) {
	slices.SortFunc(accts, func(a, b model.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Transactions returns the whole log in append order.
func (s *Store) Transactions(_ context.Context) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.txns), nil
}

// Totals implements store.Aggregator.
func (s *Store) Totals(_ context.Context) (store.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := store.Totals{Accounts: len(s.accounts), Transactions: len(s.txns)}
	for _, a := range s.accounts {
		t.Balance = t.Balance.Add(a.Balance)
		t.OpeningBalance = t.OpeningBalance.Add(a.OpeningBalance)
	}
	for _, txn := range s.txns {
		if txn.Status == model.StatusFailed {
			t.Failed++
		}
	}
	return t, nil
}
