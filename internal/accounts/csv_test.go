package accounts

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintech-dev/ledger/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRoundTrip(t *testing.T) {
	accounts := []model.Account{
		{ID: "a-1", Number: "0123456789ab", OwnerID: "alice", Type: model.AccountTypeSavings,
			Balance: dec("70.00"), OpeningBalance: dec("100.00"), Version: 3, CreatedAt: t0},
		{ID: "b-1", Number: "ba9876543210", OwnerID: "bob", Type: model.AccountTypeCurrent,
			Balance: dec("0"), OpeningBalance: dec("0"), CreatedAt: t0.Add(time.Hour)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAccounts(&buf, accounts))
	assert.True(t, strings.HasPrefix(buf.String(), Header+"\n"))

	got, err := ReadAccounts(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a-1", got[0].ID)
	assert.Equal(t, "0123456789ab", got[0].Number)
	assert.Equal(t, model.AccountTypeSavings, got[0].Type)
	assert.True(t, got[0].Balance.Equal(dec("70")))
	assert.True(t, got[0].OpeningBalance.Equal(dec("100")))
	assert.Equal(t, int64(3), got[0].Version)
	assert.True(t, got[0].CreatedAt.Equal(t0))
	assert.Equal(t, "bob", got[1].OwnerID)
}

func TestReadAccounts_ShortRows(t *testing.T) {
	in := "account_id,account_number,owner_id,account_type,balance\n" +
		",,carol,savings,12.50\n"

	got, err := ReadAccounts(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].ID)
	assert.Equal(t, model.AccountTypeSavings, got[0].Type, "type is upper-cased")
	assert.True(t, got[0].OpeningBalance.Equal(dec("12.50")), "opening defaults to balance")
	assert.True(t, got[0].CreatedAt.IsZero())
}

func TestReadAccounts_Empty(t *testing.T) {
	got, err := ReadAccounts(strings.NewReader(Header + "\n"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ReadAccounts(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnmarshalAccount_Errors(t *testing.T) {
	tests := []struct {
		name   string
		record []string
		want   string
	}{
		{"too few", []string{"a", "b", "c"}, "expected 5 to 8 fields"},
		{"bad balance", []string{"a", "0123456789ab", "o", "SAVINGS", "ten"}, "parsing balance"},
		{"bad opening", []string{"a", "0123456789ab", "o", "SAVINGS", "1", "x"}, "parsing opening_balance"},
		{"bad version", []string{"a", "0123456789ab", "o", "SAVINGS", "1", "1", "v2"}, "parsing version"},
		{"bad time", []string{"a", "0123456789ab", "o", "SAVINGS", "1", "1", "0", "monday"}, "parsing created_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalAccount(tt.record)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestReadAccounts_RowNumberInError(t *testing.T) {
	in := Header + "\n" +
		"a,0123456789ab,o,SAVINGS,1\n" +
		"b,0123456789ac,o,SAVINGS,oops\n"
	_, err := ReadAccounts(strings.NewReader(in))
	assert.ErrorContains(t, err, "row 3")
}
