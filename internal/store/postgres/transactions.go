package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

const transactionColumns = `id, source_account_id, destination_account_id, amount, description, status, created_at`

const insertTransaction = `INSERT INTO transactions (` + transactionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		t      model.Transaction
		status string
	)
	if err := row.Scan(&t.ID, &t.SourceAccountID, &t.DestinationAccountID, &t.Amount, &t.Description, &status, &t.CreatedAt); err != nil {
		return model.Transaction{}, err
	}
	t.Status = model.TransactionStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func transactionArgs(t model.Transaction) []any {
	return []any{t.ID, t.SourceAccountID, t.DestinationAccountID, t.Amount, t.Description, string(t.Status), t.CreatedAt}
}

func (s *Store) Append(ctx context.Context, txn model.Transaction) (string, error) {
	if _, err := s.db.ExecContext(ctx, insertTransaction, transactionArgs(txn)...); err != nil {
		return "", fmt.Errorf("appending transaction %s: %w", txn.ID, mapError(err))
	}
	return txn.ID, nil
}

// GetTransaction reads from the primary so a just-committed row is visible.
func (s *Store) GetTransaction(ctx context.Context, id string) (model.Transaction, error) {
	row := s.primary.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("reading transaction %s: %w", id, mapError(err))
	}
	return t, nil
}

func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := s.reader().QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE source_account_id = $1 OR destination_account_id = $1
		 ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions of %s: %w", accountID, mapError(err))
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transactions of %s: %w", accountID, mapError(err))
	}
	return txns, nil
}
