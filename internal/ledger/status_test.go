package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintech-dev/ledger/internal/model"
)

func TestTransition(t *testing.T) {
	txn := model.Transaction{ID: "t1", Status: model.StatusPending}
	require.NoError(t, Transition(&txn, model.StatusCompleted))
	assert.Equal(t, model.StatusCompleted, txn.Status)

	txn = model.Transaction{ID: "t2", Status: model.StatusPending}
	require.NoError(t, Transition(&txn, model.StatusFailed))
	assert.Equal(t, model.StatusFailed, txn.Status)
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from, to model.TransactionStatus
	}{
		{model.StatusCompleted, model.StatusFailed},
		{model.StatusCompleted, model.StatusPending},
		{model.StatusFailed, model.StatusCompleted},
		{model.StatusPending, model.StatusPending},
	}
	for _, tt := range tests {
		txn := model.Transaction{ID: "t", Status: tt.from}
		err := Transition(&txn, tt.to)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.from, txn.Status, "status unchanged")
	}
}
