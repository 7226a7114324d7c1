package ledger

import (
	"errors"
	"fmt"

	"github.com/fintech-dev/ledger/internal/model"
)

// ErrInvalidTransition is returned for any status change other than
// PENDING to COMPLETED or PENDING to FAILED.
var ErrInvalidTransition = errors.New("invalid status transition")

// Transition moves txn from its current status to next.
func Transition(txn *model.Transaction, next model.TransactionStatus) error {
	if txn.Status != model.StatusPending || !next.Terminal() {
		return fmt.Errorf("transaction %s %s -> %s: %w", txn.ID, txn.Status, next, ErrInvalidTransition)
	}
	txn.Status = next
	return nil
}
