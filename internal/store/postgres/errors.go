package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fintech-dev/ledger/internal/store"
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation  = "23505"
	codeSerialization    = "40001"
	codeDeadlock         = "40P01"
	codeLockNotAvailable = "55P03"
	codeQueryCanceled    = "57014"
)

// mapError translates driver errors into store sentinels, keeping the
// original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		case codeSerialization, codeDeadlock:
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%w: %w", store.ErrTimeout, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrTimeout, err)
	}
	return err
}

// mapCommitError classifies a failed COMMIT. Serialization failures are known
// to have rolled back; anything else leaves the outcome unknown.
func mapCommitError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerialization, codeDeadlock:
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		}
	}
	return fmt.Errorf("%w: %w", store.ErrCommitUnknown, err)
}
