package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
)

// Validator holds the pure transfer rules. The first failing rule wins:
// amount, distinct accounts, both accounts exist, sufficient funds.
type Validator struct {
	scale int32
}

// NewValidator returns a Validator for a currency with scale fractional digits.
func NewValidator(scale int32) Validator {
	return Validator{scale: scale}
}

// Scale returns the number of fractional digits allowed in amounts.
func (v Validator) Scale() int32 { return v.scale }

// CheckAmount verifies amount is positive and fits the currency's scale.
func (v Validator) CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return newError(KindInvalidAmount, "validate", fmt.Sprintf("amount %s must be positive", amount), nil)
	}
	if !amount.Shift(v.scale).IsInteger() {
		return newError(KindInvalidAmount, "validate",
			fmt.Sprintf("amount %s has more than %d fractional digits", amount, v.scale), nil)
	}
	return nil
}

// Check applies every rule. A nil account means it was not found.
func (v Validator) Check(amount decimal.Decimal, source, destination *model.Account) error {
	if err := v.CheckAmount(amount); err != nil {
		return err
	}
	if source != nil && destination != nil && source.ID == destination.ID {
		return newError(KindSameAccountTransfer, "validate",
			fmt.Sprintf("source and destination are both account %s", source.Number), nil)
	}
	if source == nil {
		return newError(KindAccountNotFound, "validate", "source account not found", nil)
	}
	if destination == nil {
		return newError(KindAccountNotFound, "validate", "destination account not found", nil)
	}
	if source.Balance.LessThan(amount) {
		return newError(KindInsufficientFunds, "validate",
			fmt.Sprintf("account %s balance %s is less than %s", source.Number, source.Balance, amount), nil)
	}
	return nil
}
