package postgres

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPrimaryViews(t *testing.T) {
	// sql.Open does not connect, so unreachable hosts are fine here.
	primary, err := sql.Open("pgx", "postgres://primary.invalid/ledger")
	require.NoError(t, err)
	replica, err := sql.Open("pgx", "postgres://replica.invalid/ledger")
	require.NoError(t, err)

	s := newStore(primary, replica, zap.NewNop())
	t.Cleanup(func() { _ = s.Close() })

	for name, view := range map[string]any{
		"accounts": s.PrimaryAccounts(),
		"log":      s.PrimaryLog(),
	} {
		p, ok := view.(*Store)
		require.True(t, ok, name)
		assert.True(t, p.pinned, name)
		assert.Same(t, primary, p.reader(), name)
	}
	assert.False(t, s.pinned, "the original store keeps routing reads")
}
