package accounts

import (
	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
)

// DemoAccounts returns the accounts `ledger init --demo` opens: two users
// with one savings and one current account each.
func DemoAccounts() []OpenParams {
	return []OpenParams{
		{OwnerID: "alice", Type: model.AccountTypeCurrent, InitialBalance: decimal.RequireFromString("100.00")},
		{OwnerID: "alice", Type: model.AccountTypeSavings, InitialBalance: decimal.RequireFromString("2500.00")},
		{OwnerID: "bob", Type: model.AccountTypeCurrent, InitialBalance: decimal.RequireFromString("50.00")},
		{OwnerID: "bob", Type: model.AccountTypeSavings, InitialBalance: decimal.Zero},
	}
}
