package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountTypeValid(t *testing.T) {
	tests := []struct {
		typ  AccountType
		want bool
	}{
		{AccountTypeSavings, true},
		{AccountTypeCurrent, true},
		{"savings", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.Valid(), "Valid(%q)", tt.typ)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestTransactionTouches(t *testing.T) {
	txn := Transaction{SourceAccountID: "a", DestinationAccountID: "b"}
	assert.True(t, txn.Touches("a"))
	assert.True(t, txn.Touches("b"))
	assert.False(t, txn.Touches("c"))
}

func TestCallerIsAdmin(t *testing.T) {
	assert.True(t, Caller{UserID: "1", Role: RoleAdmin}.IsAdmin())
	assert.False(t, Caller{UserID: "1", Role: RoleUser}.IsAdmin())
	assert.False(t, Caller{UserID: "1"}.IsAdmin())
}
