package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// InTx implements store.Transactor. The database transaction outlives ctx so
// that a commit is never abandoned half way; ctx only bounds lock waits.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.primary.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", mapError(err))
	}

	tx := &pgTx{tx: sqlTx, locked: make(map[string]bool)}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Sugar().Warnf("rollback failed: %v", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", mapCommitError(err))
	}
	return nil
}

type pgTx struct {
	tx     *sql.Tx
	locked map[string]bool
}

// LockAccounts uses SELECT ... FOR UPDATE ordered by id. The lock wait is
// capped by ctx's deadline through lock_timeout.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...string) ([]model.Account, error) {
	if deadline, ok := ctx.Deadline(); ok {
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, fmt.Errorf("locking accounts: %w: %w", store.ErrTimeout, context.DeadlineExceeded)
		}
		ms := max(wait.Milliseconds(), 1)
		if _, err := t.tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", ms)); err != nil {
			return nil, fmt.Errorf("setting lock timeout: %w", mapError(err))
		}
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("locking accounts: %w", mapError(err))
	}
	defer rows.Close()

	accts := make([]model.Account, 0, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		t.locked[a.ID] = true
		accts = append(accts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("locking accounts: %w", mapError(err))
	}

	for _, id := range ids {
		if !t.locked[id] {
			return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
		}
	}
	return accts, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	if !t.locked[id] {
		return fmt.Errorf("account %s is not locked in this transaction", id)
	}
	if balance.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s rejected", id, balance)
	}
	if _, err := t.tx.ExecContext(context.WithoutCancel(ctx),
		`UPDATE accounts SET balance = $2, version = version + 1 WHERE id = $1`, id, balance); err != nil {
		return fmt.Errorf("updating balance of %s: %w", id, mapError(err))
	}
	return nil
}

func (t *pgTx) Append(ctx context.Context, txn model.Transaction) error {
	if _, err := t.tx.ExecContext(context.WithoutCancel(ctx), insertTransaction, transactionArgs(txn)...); err != nil {
		return fmt.Errorf("appending transaction %s: %w", txn.ID, mapError(err))
	}
	return nil
}
