package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies customer accounts.
type AccountType string

const (
	AccountTypeSavings AccountType = "SAVINGS"
	AccountTypeCurrent AccountType = "CURRENT"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeCurrent:
		return true
	default:
		return false
	}
}

// Account is a customer account row. Balance is only mutated by the ledger engine.
type Account struct {
	ID             string
	Number         string // external account number, unique
	OwnerID        string
	Type           AccountType
	Balance        decimal.Decimal
	OpeningBalance decimal.Decimal // balance at opening, baseline for reconciliation
	Version        int64           // bumped on every balance write
	CreatedAt      time.Time
}
