// Package store defines the persistence collaborators of the ledger engine.
//
// Implementations live in subpackages: memory (in-process) and postgres.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
)

var (
	// ErrNotFound is returned when an account or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("write conflict")
	// ErrTimeout is returned when waiting for a row lock took too long.
	ErrTimeout = errors.New("lock wait timeout")
	// ErrDuplicate is returned when a unique key (account number, id) already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrCommitUnknown is returned when the outcome of a commit cannot be determined.
	ErrCommitUnknown = errors.New("commit outcome unknown")
)

// AccountStore is durable keyed storage of accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
	GetByNumber(ctx context.Context, number string) (model.Account, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	Create(ctx context.Context, acct model.Account) error
	// CompareAndSwapBalance sets the balance to next only if it currently equals
	// expected. Returns ErrConflict otherwise.
	CompareAndSwapBalance(ctx context.Context, id string, expected, next decimal.Decimal) error
}

// TransactionLog is durable append-only storage of transactions.
type TransactionLog interface {
	Append(ctx context.Context, txn model.Transaction) (string, error)
	GetTransaction(ctx context.Context, id string) (model.Transaction, error)
	// ListByAccount returns transactions where accountID is source or
	// destination, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)
}

// Transactor is implemented by stores that offer multi-row transactions.
type Transactor interface {
	// InTx runs fn inside one atomic unit. ctx bounds the wait for row locks;
	// once fn returns nil the commit is attempted even if ctx is done.
	// A nil return means every write made through tx is durable.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside an atomic unit.
type Tx interface {
	// LockAccounts reads the given accounts with exclusive row locks taken in
	// ascending id order. The result is in ascending id order. Returns
	// ErrNotFound if any account is missing.
	LockAccounts(ctx context.Context, ids ...string) ([]model.Account, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	Append(ctx context.Context, txn model.Transaction) error
}

// PrimaryReader is implemented by stores that may serve list reads from a
// lagging replica. The returned views read everything from the primary.
type PrimaryReader interface {
	PrimaryAccounts() AccountStore
	PrimaryLog() TransactionLog
}

// Totals aggregates every account and the whole transaction log.
type Totals struct {
	Accounts       int
	Transactions   int
	Failed         int             // FAILED transactions
	Balance        decimal.Decimal // sum of stored balances
	OpeningBalance decimal.Decimal // sum of opening balances
}

// Drift is Balance minus OpeningBalance. Transfers move money between
// accounts, so it stays zero unless a write bypassed the ledger.
func (t Totals) Drift() decimal.Decimal { return t.Balance.Sub(t.OpeningBalance) }

// Aggregator computes Totals from one consistent read.
type Aggregator interface {
	Totals(ctx context.Context) (Totals, error)
}
