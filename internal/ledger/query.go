package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// GetAccountTransactions returns the transactions of one account, newest
// first. The caller must own the account or be an admin.
func (e *Engine) GetAccountTransactions(ctx context.Context, caller model.Caller, accountID string) ([]model.Transaction, error) {
	if _, err := e.guard.Authorize(ctx, caller, accountID); err != nil {
		return nil, err
	}
	txns, err := e.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions of %s: %w", accountID, err)
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	return txns, nil
}

// GetAllUserTransactions merges the transactions of every account owned by
// userID, newest first. A transfer between two of the user's own accounts
// appears once.
func (e *Engine) GetAllUserTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	accts, err := e.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts of %s: %w", userID, err)
	}

	seen := make(map[string]bool)
	all := []model.Transaction{}
	for _, a := range accts {
		txns, err := e.store.ListByAccount(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("listing transactions of %s: %w", a.ID, err)
		}
		for _, t := range txns {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
		}
	}

	sortNewestFirst(all)
	return all, nil
}

// Stats returns ledger-wide totals. Admin only.
func (e *Engine) Stats(ctx context.Context, caller model.Caller) (store.Totals, error) {
	if !caller.IsAdmin() {
		return store.Totals{}, newError(KindForbidden, "stats", "admin role required", nil)
	}
	totals, err := e.store.Totals(ctx)
	if err != nil {
		return store.Totals{}, fmt.Errorf("computing totals: %w", err)
	}
	return totals, nil
}

func sortNewestFirst(txns []model.Transaction) {
	slices.SortStableFunc(txns, func(a, b model.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
