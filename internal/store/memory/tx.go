package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/lock"
	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// TxStore is a Store with multi-row transactions.
type TxStore struct {
	*Store
	rows *lock.Local
}

var _ store.Transactor = (*TxStore)(nil)

// NewTx creates an empty transactional store.
func NewTx() *TxStore {
	return &TxStore{Store: New(), rows: lock.NewLocal()}
}

// InTx implements store.Transactor.
func (s *TxStore) InTx(_ context.Context, fn func(tx store.Tx) error) error {
	tx := &memTx{
		s:        s,
		versions: make(map[string]int64),
		balances: make(map[string]decimal.Decimal),
	}
	defer tx.rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	s        *TxStore
	release  lock.Release
	versions map[string]int64 // version seen at lock time
	balances map[string]decimal.Decimal
	appends  []model.Transaction
	done     bool
}

func (tx *memTx) LockAccounts(ctx context.Context, ids ...string) ([]model.Account, error) {
	if tx.release != nil {
		return nil, errors.New("accounts already locked in this transaction")
	}

	release, err := tx.s.rows.Acquire(ctx, ids...)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, fmt.Errorf("locking accounts: %w: %w", store.ErrTimeout, err)
		}
		return nil, fmt.Errorf("locking accounts: %w", err)
	}
	tx.release = release

	ordered := lock.Order(ids)
	accts := make([]model.Account, 0, len(ordered))
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, id := range ordered {
		a, ok := tx.s.accounts[id]
		if !ok {
			return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
		}
		tx.versions[id] = a.Version
		accts = append(accts, a)
	}
	return accts, nil
}

func (tx *memTx) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	if _, ok := tx.versions[id]; !ok {
		return fmt.Errorf("account %s is not locked in this transaction", id)
	}
	if balance.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s rejected", id, balance)
	}
	tx.balances[id] = balance
	return nil
}

func (tx *memTx) Append(_ context.Context, txn model.Transaction) error {
	tx.appends = append(tx.appends, txn)
	return nil
}

func (tx *memTx) commit() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	for id, v := range tx.versions {
		if tx.s.accounts[id].Version != v {
			return fmt.Errorf("account %s changed since lock: %w", id, store.ErrConflict)
		}
	}
	for _, txn := range tx.appends {
		if _, ok := tx.s.txnIndex[txn.ID]; ok {
			return fmt.Errorf("transaction %s: %w", txn.ID, store.ErrDuplicate)
		}
	}

	for id, bal := range tx.balances {
		a := tx.s.accounts[id]
		a.Balance = bal
		a.Version++
		tx.s.accounts[id] = a
	}
	for _, txn := range tx.appends {
		// Duplicates were ruled out above.
		_ = tx.s.appendLocked(txn)
	}
	tx.done = true
	return nil
}

func (tx *memTx) rollback() {
	if tx.release != nil {
		tx.release()
	}
	if !tx.done {
		tx.balances = nil
		tx.appends = nil
	}
}
