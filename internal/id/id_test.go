package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountNumber(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := NewAccountNumber()
		assert.Len(t, n, AccountNumberLen)
		assert.True(t, ValidAccountNumber(n), "generated number %q should be valid", n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 95, "numbers should be effectively unique")
}

func TestValidAccountNumber(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0123456789ab", true},
		{"abcdefabcdef", true},
		{"0123456789AB", false},
		{"0123456789a", false},
		{"0123456789abc", false},
		{"01234567-9ab", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidAccountNumber(tt.in), "ValidAccountNumber(%q)", tt.in)
	}
}

func TestNewTransactionID(t *testing.T) {
	a := NewTransactionID()
	b := NewTransactionID()
	assert.NotEqual(t, a, b)

	u, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, a, u.String(), "ids are canonical lowercase UUIDs")
}
