package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the lifecycle state of a transfer.
//
// PENDING only exists while a transfer is in flight and is never persisted.
// COMPLETED and FAILED are terminal.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction records one transfer between two accounts. Accounts are
// referenced by id only; reverse lookups go through the transaction log.
type Transaction struct {
	ID                   string
	SourceAccountID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	Description          string
	CreatedAt            time.Time
	Status               TransactionStatus
}

// Touches reports whether the transaction debits or credits accountID.
func (t Transaction) Touches(accountID string) bool {
	return t.SourceAccountID == accountID || t.DestinationAccountID == accountID
}
