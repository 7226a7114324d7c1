package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store/memory"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	dir := filepath.Join(t.TempDir(), "data")

	s := memory.NewTx()
	require.NoError(t, s.Create(ctx, model.Account{
		ID: "a1", Number: "000000000001", OwnerID: "alice", Type: model.AccountTypeCurrent,
		Balance: decimal.RequireFromString("70"), OpeningBalance: decimal.RequireFromString("100"),
		Version: 3, CreatedAt: t0,
	}))
	require.NoError(t, s.Create(ctx, model.Account{
		ID: "a2", Number: "000000000002", OwnerID: "bob", Type: model.AccountTypeSavings,
		Balance: decimal.RequireFromString("30"), OpeningBalance: decimal.Zero,
		Version: 1, CreatedAt: t0.Add(time.Minute),
	}))
	txn := model.Transaction{
		ID: "t1", SourceAccountID: "a1", DestinationAccountID: "a2",
		Amount: decimal.RequireFromString("30"), Status: model.StatusCompleted,
		Description: "Transfer from 000000000001 to 000000000002", CreatedAt: t0.Add(time.Hour),
	}
	_, err := s.Append(ctx, txn)
	require.NoError(t, err)

	require.NoError(t, saveSnapshot(ctx, s, dir))

	loaded := memory.NewTx()
	require.NoError(t, loadSnapshot(ctx, loaded, dir))

	a1, err := loaded.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(decimal.RequireFromString("70")))
	assert.True(t, a1.OpeningBalance.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, int64(3), a1.Version)
	assert.True(t, a1.CreatedAt.Equal(t0))

	got, err := loaded.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, txn.Description, got.Description)
	assert.True(t, got.Amount.Equal(txn.Amount))

	assert.ElementsMatch(t, []string{currentFile, "snap-000001"}, dirNames(t, dir), "no temp files left behind")

	require.NoError(t, saveSnapshot(ctx, loaded, dir))
	assert.ElementsMatch(t, []string{currentFile, "snap-000002"}, dirNames(t, dir), "old generation removed")
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSnapshot_MissingDirIsEmpty(t *testing.T) {
	s := memory.NewTx()
	require.NoError(t, loadSnapshot(context.Background(), s, filepath.Join(t.TempDir(), "nope")))

	accts, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accts)
}

func TestSnapshot_UnfinishedSaveIsIgnored(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := memory.NewTx()
	require.NoError(t, s.Create(ctx, model.Account{
		ID: "a1", Number: "000000000001", OwnerID: "alice", Type: model.AccountTypeCurrent,
		Balance: decimal.RequireFromString("10"), OpeningBalance: decimal.RequireFromString("10"),
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, saveSnapshot(ctx, s, dir))

	// A save that died after writing accounts but before switching.
	next := filepath.Join(dir, "snap-000002")
	require.NoError(t, os.Mkdir(next, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(next, accountsFile), []byte("garbage"), 0o644))

	loaded := memory.NewTx()
	require.NoError(t, loadSnapshot(ctx, loaded, dir))
	a1, err := loaded.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(decimal.RequireFromString("10")))

	require.NoError(t, saveSnapshot(ctx, loaded, dir))
	again := memory.NewTx()
	require.NoError(t, loadSnapshot(ctx, again, dir))
	_, err = again.GetByID(ctx, "a1")
	assert.NoError(t, err)
}

func TestSnapshot_ReadsFlatLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, accountsFile),
		[]byte("account_id,account_number,owner_id,account_type,balance\na1,000000000001,alice,CURRENT,5\n"), 0o644))

	s := memory.NewTx()
	require.NoError(t, loadSnapshot(ctx, s, dir))
	_, err := s.GetByID(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, saveSnapshot(ctx, s, dir))
	assert.ElementsMatch(t, []string{currentFile, "snap-000001"}, dirNames(t, dir))
}

func TestSnapshot_BadCurrent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("../elsewhere\n"), 0o644))

	err := loadSnapshot(context.Background(), memory.NewTx(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a snapshot generation")
}

func TestLockDataDir(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	unlock, err := lockDataDir(ctx, dir, true, time.Second)
	require.NoError(t, err)

	_, err = lockDataDir(ctx, dir, true, 50*time.Millisecond)
	require.Error(t, err, "second writer waits for the first")
	_, err = lockDataDir(ctx, dir, false, 50*time.Millisecond)
	require.Error(t, err, "readers wait for a writer")

	require.NoError(t, unlock())

	r1, err := lockDataDir(ctx, dir, false, time.Second)
	require.NoError(t, err)
	r2, err := lockDataDir(ctx, dir, false, time.Second)
	require.NoError(t, err, "readers share the lock")
	_, err = lockDataDir(ctx, dir, true, 50*time.Millisecond)
	require.Error(t, err)
	require.NoError(t, r1())
	require.NoError(t, r2())

	unlock, err = lockDataDir(ctx, dir, true, time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestSnapshot_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, transactionsFile),
		[]byte("transaction_id,created_at,source_account_id,destination_account_id,amount,status,description\nt1,yesterday,a,b,1,COMPLETED,x\n"), 0o644))

	err := loadSnapshot(context.Background(), memory.NewTx(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), transactionsFile)
}
