package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

const accountColumns = `id, account_number, owner_id, account_type, balance, opening_balance, version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a   model.Account
		typ string
	)
	if err := row.Scan(&a.ID, &a.Number, &a.OwnerID, &typ, &a.Balance, &a.OpeningBalance, &a.Version, &a.CreatedAt); err != nil {
		return model.Account{}, err
	}
	a.Type = model.AccountType(typ)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// GetByID reads from the primary.
func (s *Store) GetByID(ctx context.Context, id string) (model.Account, error) {
	row := s.primary.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("reading account %s: %w", id, mapError(err))
	}
	return a, nil
}

// GetByNumber reads from the primary.
func (s *Store) GetByNumber(ctx context.Context, number string) (model.Account, error) {
	row := s.primary.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account number %s: %w", number, store.ErrNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("reading account number %s: %w", number, mapError(err))
	}
	return a, nil
}

func (s *Store) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.primary.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking account number %s: %w", number, mapError(err))
	}
	return exists, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]model.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
}

func (s *Store) List(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := s.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", mapError(err))
	}
	defer rows.Close()

	var accts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accts = append(accts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", mapError(err))
	}
	return accts, nil
}

func (s *Store) Create(ctx context.Context, acct model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acct.ID, acct.Number, acct.OwnerID, string(acct.Type), acct.Balance, acct.OpeningBalance, acct.Version, acct.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating account %s: %w", acct.ID, mapError(err))
	}
	return nil
}

// CompareAndSwapBalance is a single conditional UPDATE. Zero rows affected
// means either the balance moved or the account does not exist.
func (s *Store) CompareAndSwapBalance(ctx context.Context, id string, expected, next decimal.Decimal) error {
	if next.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s rejected", id, next)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = $3, version = version + 1 WHERE id = $1 AND balance = $2`,
		id, expected, next)
	if err != nil {
		return fmt.Errorf("updating balance of %s: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating balance of %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("account %s balance is not %s: %w", id, expected, store.ErrConflict)
}
