package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintech-dev/ledger/internal/id"
	"github.com/fintech-dev/ledger/internal/ledger"
	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
	"github.com/fintech-dev/ledger/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	s := memory.New()
	svc := NewService(s, 2, nil)
	svc.clock = func() time.Time { return t0 }
	return svc, s
}

func TestOpen(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	acct, err := svc.Open(ctx, OpenParams{OwnerID: "alice", Type: model.AccountTypeSavings, InitialBalance: dec("100.00")})
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)
	assert.True(t, id.ValidAccountNumber(acct.Number), acct.Number)
	assert.True(t, acct.Balance.Equal(dec("100")))
	assert.True(t, acct.OpeningBalance.Equal(dec("100")))
	assert.Equal(t, t0, acct.CreatedAt)

	stored, err := s.GetByNumber(ctx, acct.Number)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, stored.ID)
}

func TestOpen_RegeneratesCollidingNumber(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	numbers := []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "bbbbbbbbbbbb"}
	svc.newNumber = func() string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	first, err := svc.Open(ctx, OpenParams{OwnerID: "alice", Type: model.AccountTypeCurrent})
	require.NoError(t, err)
	second, err := svc.Open(ctx, OpenParams{OwnerID: "bob", Type: model.AccountTypeCurrent})
	require.NoError(t, err)

	assert.Equal(t, "aaaaaaaaaaaa", first.Number)
	assert.Equal(t, "bbbbbbbbbbbb", second.Number)
}

func TestOpen_NumberExhausted(t *testing.T) {
	svc, _ := newService(t)
	svc.newNumber = func() string { return "cccccccccccc" }
	ctx := context.Background()

	_, err := svc.Open(ctx, OpenParams{OwnerID: "alice", Type: model.AccountTypeCurrent})
	require.NoError(t, err)
	_, err = svc.Open(ctx, OpenParams{OwnerID: "alice", Type: model.AccountTypeCurrent})
	assert.ErrorIs(t, err, ErrNumberExhausted)
}

func TestOpen_Invalid(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		name string
		p    OpenParams
		want string
	}{
		{"no owner", OpenParams{Type: model.AccountTypeSavings}, "owner is required"},
		{"bad type", OpenParams{OwnerID: "a", Type: "CHECKING"}, "unknown account type"},
		{"negative", OpenParams{OwnerID: "a", Type: model.AccountTypeSavings, InitialBalance: dec("-1")}, "negative"},
		{"precision", OpenParams{OwnerID: "a", Type: model.AccountTypeSavings, InitialBalance: dec("1.001")}, "fractional digits"},
		{"bad number", OpenParams{OwnerID: "a", Type: model.AccountTypeSavings, Number: "XYZ"}, "lowercase hex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Open(context.Background(), tt.p)
			assert.ErrorIs(t, err, ErrInvalidParams)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOpen_ExplicitNumberDuplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p := OpenParams{Number: "0123456789ab", OwnerID: "alice", Type: model.AccountTypeSavings}

	_, err := svc.Open(ctx, p)
	require.NoError(t, err)
	_, err = svc.Open(ctx, p)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestGet_Guarded(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acct, err := svc.Open(ctx, OpenParams{OwnerID: "alice", Type: model.AccountTypeSavings})
	require.NoError(t, err)

	_, err = svc.Get(ctx, model.Caller{UserID: "alice", Role: model.RoleUser}, acct.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, model.Caller{UserID: "bob", Role: model.RoleUser}, acct.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
	_, err = svc.Get(ctx, model.Caller{UserID: "ops", Role: model.RoleAdmin}, acct.ID)
	assert.NoError(t, err)
}

func TestListByOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, p := range DemoAccounts() {
		_, err := svc.Open(ctx, p)
		require.NoError(t, err)
	}

	mine, err := svc.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(DemoAccounts()))
}

func TestImportExport(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := "account_id,account_number,owner_id,account_type,balance\n" +
		"acc-1,0123456789ab,alice,SAVINGS,100.00\n" +
		",,bob,current,5\n"
	opened, err := svc.Import(ctx, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, opened, 2)
	assert.Equal(t, "acc-1", opened[0].ID)
	assert.True(t, id.ValidAccountNumber(opened[1].Number))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, &buf))
	back, err := ReadAccounts(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	numbers := []string{back[0].Number, back[1].Number}
	assert.Contains(t, numbers, "0123456789ab")
	assert.Contains(t, numbers, opened[1].Number)
}

func TestImport_StopsAtBadRow(t *testing.T) {
	svc, _ := newService(t)
	in := Header + "\n" +
		"a,0123456789ab,alice,SAVINGS,1,1,0,\n" +
		"b,0123456789ac,,SAVINGS,1,1,0,\n"
	opened, err := svc.Import(context.Background(), strings.NewReader(in))
	require.Error(t, err)
	assert.ErrorContains(t, err, "row 3")
	assert.Len(t, opened, 1)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) ExistsByNumber(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestOpen_StoreError(t *testing.T) {
	svc := NewService(failingStore{memory.New()}, 2, nil)
	_, err := svc.Open(context.Background(), OpenParams{OwnerID: "a", Type: model.AccountTypeSavings})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("checking account number: %s", "db down"))
}

func TestImport_KeepsOpeningBalance(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	in := Header + "\n" +
		"a,0123456789ab,alice,CURRENT,70,100,4,\n" +
		"b,0123456789ac,bob,CURRENT,30,,,\n"
	_, err := svc.Import(ctx, strings.NewReader(in))
	require.NoError(t, err)

	a, err := s.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("70")))
	assert.True(t, a.OpeningBalance.Equal(dec("100")), "opening balance carried over, got %s", a.OpeningBalance)

	b, err := s.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.True(t, b.OpeningBalance.Equal(dec("30")), "opening balance defaults to balance")
}

func TestImport_NegativeOpeningBalance(t *testing.T) {
	svc, _ := newService(t)
	in := Header + "\n" + "a,0123456789ab,alice,CURRENT,70,-1,0,\n"
	_, err := svc.Import(context.Background(), strings.NewReader(in))
	require.ErrorIs(t, err, ErrInvalidParams)
	assert.ErrorContains(t, err, "opening balance -1 is negative")
}
