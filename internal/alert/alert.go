// Package alert delivers reconciliation alerts to operators.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Kind classifies why manual reconciliation is needed.
type Kind string

const (
	// KindPartialTransfer: the source was debited but the credit could not be
	// applied and the debit could not be reversed.
	KindPartialTransfer Kind = "PARTIAL_TRANSFER"
	// KindUnrecordedTransfer: both balances moved but the transaction row
	// could not be appended.
	KindUnrecordedTransfer Kind = "UNRECORDED_TRANSFER"
	// KindCommitUnknown: the store could not confirm a commit and the outcome
	// could not be looked up.
	KindCommitUnknown Kind = "COMMIT_UNKNOWN"
	// KindBalanceDrift: a stored balance disagrees with the transaction log.
	KindBalanceDrift Kind = "BALANCE_DRIFT"
	// KindFailedTransaction: a FAILED transaction touches the account.
	KindFailedTransaction Kind = "FAILED_TRANSACTION"
)

// Alert is one reconciliation event.
type Alert struct {
	Time                 time.Time       `json:"time"`
	Kind                 Kind            `json:"kind"`
	TransactionID        string          `json:"transaction_id,omitempty"`
	SourceAccountID      string          `json:"source_account_id,omitempty"`
	DestinationAccountID string          `json:"destination_account_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Details              string          `json:"details,omitempty"`
}

// Alerter emits alerts. Implementations must be safe for concurrent use.
type Alerter interface {
	Emit(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every alerter and joins their errors.
type Multi []Alerter

func (m Multi) Emit(ctx context.Context, a Alert) error {
	var errs []error
	for _, al := range m {
		if err := al.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logger writes alerts to a zap logger at error level.
type Logger struct {
	logger *zap.Logger
}

// NewLogger returns an Alerter backed by logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Emit(_ context.Context, a Alert) error {
	l.logger.Error("reconciliation required",
		zap.String("kind", string(a.Kind)),
		zap.String("transaction_id", a.TransactionID),
		zap.String("source_account_id", a.SourceAccountID),
		zap.String("destination_account_id", a.DestinationAccountID),
		zap.String("amount", a.Amount.String()),
		zap.String("details", a.Details),
	)
	return nil
}
