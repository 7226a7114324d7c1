package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// AccountReader is the read side of store.AccountStore.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

// Guard decides whether a caller may act on an account: owners may, admins
// may act on any account, nobody else may.
type Guard struct {
	accounts AccountReader
}

// NewGuard returns a Guard that looks owners up in accounts.
func NewGuard(accounts AccountReader) *Guard {
	return &Guard{accounts: accounts}
}

// Authorize returns the account when caller may act on it.
func (g *Guard) Authorize(ctx context.Context, caller model.Caller, accountID string) (model.Account, error) {
	acct, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Account{}, newError(KindAccountNotFound, "authorize",
				fmt.Sprintf("account %s not found", accountID), err)
		}
		return model.Account{}, fmt.Errorf("loading account %s: %w", accountID, err)
	}
	if caller.IsAdmin() {
		return acct, nil
	}
	if caller.UserID == "" || caller.UserID != acct.OwnerID {
		return model.Account{}, newError(KindForbidden, "authorize",
			fmt.Sprintf("user %q does not own account %s", caller.UserID, acct.Number), nil)
	}
	return acct, nil
}
