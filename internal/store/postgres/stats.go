package postgres

import (
	"context"
	"fmt"

	"github.com/fintech-dev/ledger/internal/store"
)

// One statement, so every sub-select sees the same snapshot.
const totalsQuery = `SELECT
	(SELECT COUNT(*) FROM accounts),
	(SELECT COALESCE(SUM(balance), 0) FROM accounts),
	(SELECT COALESCE(SUM(opening_balance), 0) FROM accounts),
	(SELECT COUNT(*) FROM transactions),
	(SELECT COUNT(*) FROM transactions WHERE status = 'FAILED')`

// Totals implements store.Aggregator. It reads from the primary.
func (s *Store) Totals(ctx context.Context) (store.Totals, error) {
	var t store.Totals
	err := s.primary.QueryRowContext(ctx, totalsQuery).Scan(
		&t.Accounts, &t.Balance, &t.OpeningBalance, &t.Transactions, &t.Failed)
	if err != nil {
		return store.Totals{}, fmt.Errorf("computing totals: %w", mapError(err))
	}
	return t, nil
}
