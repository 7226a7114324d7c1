// Package accounts opens customer accounts and moves them in and out of CSV.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fintech-dev/ledger/internal/id"
	"github.com/fintech-dev/ledger/internal/ledger"
	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// maxNumberAttempts bounds account number regeneration on collision.
const maxNumberAttempts = 10

// ErrInvalidParams is wrapped by every OpenParams validation failure.
var ErrInvalidParams = errors.New("invalid account parameters")

// ErrNumberExhausted is returned when no free account number was found.
var ErrNumberExhausted = errors.New("no free account number")

// Service opens and looks up accounts.
type Service struct {
	store     store.AccountStore
	guard     *ledger.Guard
	validator ledger.Validator
	logger    *zap.Logger

	// Overridable in tests.
	clock     func() time.Time
	newID     func() string
	newNumber func() string
}

// NewService creates an account Service for a currency with scale
// fractional digits.
func NewService(s store.AccountStore, scale int32, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     s,
		guard:     ledger.NewGuard(s),
		validator: ledger.NewValidator(scale),
		logger:    logger,
		clock:     time.Now,
		newID:     id.NewAccountID,
		newNumber: id.NewAccountNumber,
	}
}

// OpenParams holds parameters for opening an account. ID and Number are
// generated when empty. OpeningBalance defaults to InitialBalance; imports
// set it to carry an account's history over.
type OpenParams struct {
	ID             string
	Number         string
	OwnerID        string
	Type           model.AccountType
	InitialBalance decimal.Decimal
	OpeningBalance decimal.NullDecimal
	CreatedAt      time.Time
}

func (s *Service) validate(p OpenParams) error {
	var errs []error
	if p.OwnerID == "" {
		errs = append(errs, errors.New("owner is required"))
	}
	if !p.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown account type %q", p.Type))
	}
	if p.Number != "" && !id.ValidAccountNumber(p.Number) {
		errs = append(errs, fmt.Errorf("account number %q is not %d lowercase hex characters", p.Number, id.AccountNumberLen))
	}
	if p.InitialBalance.IsNegative() {
		errs = append(errs, fmt.Errorf("initial balance %s is negative", p.InitialBalance))
	} else if p.InitialBalance.IsPositive() {
		if err := s.validator.CheckAmount(p.InitialBalance); err != nil {
			errs = append(errs, fmt.Errorf("initial balance: %w", err))
		}
	}
	if p.OpeningBalance.Valid && p.OpeningBalance.Decimal.IsNegative() {
		errs = append(errs, fmt.Errorf("opening balance %s is negative", p.OpeningBalance.Decimal))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return nil
}

// Open creates an account and returns it.
func (s *Service) Open(ctx context.Context, p OpenParams) (model.Account, error) {
	if err := s.validate(p); err != nil {
		return model.Account{}, err
	}

	acct := model.Account{
		ID:             p.ID,
		Number:         p.Number,
		OwnerID:        p.OwnerID,
		Type:           p.Type,
		Balance:        p.InitialBalance,
		OpeningBalance: p.InitialBalance,
		CreatedAt:      p.CreatedAt.UTC(),
	}
	if p.OpeningBalance.Valid {
		acct.OpeningBalance = p.OpeningBalance.Decimal
	}
	if acct.ID == "" {
		acct.ID = s.newID()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = s.clock().UTC()
	}

	if acct.Number != "" {
		if err := s.store.Create(ctx, acct); err != nil {
			return model.Account{}, fmt.Errorf("opening account: %w", err)
		}
		s.opened(acct)
		return acct, nil
	}

	for range maxNumberAttempts {
		number := s.newNumber()
		exists, err := s.store.ExistsByNumber(ctx, number)
		if err != nil {
			return model.Account{}, fmt.Errorf("checking account number: %w", err)
		}
		if exists {
			continue
		}
		acct.Number = number
		err = s.store.Create(ctx, acct)
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race for the number, or the id is taken.
			if taken, _ := s.store.ExistsByNumber(ctx, number); taken {
				continue
			}
		}
		if err != nil {
			return model.Account{}, fmt.Errorf("opening account: %w", err)
		}
		s.opened(acct)
		return acct, nil
	}
	return model.Account{}, fmt.Errorf("opening account after %d attempts: %w", maxNumberAttempts, ErrNumberExhausted)
}

func (s *Service) opened(acct model.Account) {
	s.logger.Info("account opened",
		zap.String("account_id", acct.ID),
		zap.String("account_number", acct.Number),
		zap.String("owner_id", acct.OwnerID),
		zap.String("account_type", string(acct.Type)),
		zap.String("balance", acct.Balance.String()))
}

// Get returns an account the caller owns, or any account for an admin.
func (s *Service) Get(ctx context.Context, caller model.Caller, accountID string) (model.Account, error) {
	return s.guard.Authorize(ctx, caller, accountID)
}

// ListByOwner returns the accounts of ownerID, oldest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]model.Account, error) {
	accts, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts of %s: %w", ownerID, err)
	}
	return accts, nil
}

// All returns every account, oldest first.
func (s *Service) All(ctx context.Context) ([]model.Account, error) {
	accts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accts, nil
}

// Import opens one account per CSV row and returns them. It stops at the
// first failing row; rows before it stay opened.
func (s *Service) Import(ctx context.Context, r io.Reader) ([]model.Account, error) {
	rows, err := ReadAccounts(r)
	if err != nil {
		return nil, err
	}

	opened := make([]model.Account, 0, len(rows))
	for i, row := range rows {
		acct, err := s.Open(ctx, OpenParams{
			ID:             row.ID,
			Number:         row.Number,
			OwnerID:        row.OwnerID,
			Type:           row.Type,
			InitialBalance: row.Balance,
			OpeningBalance: decimal.NullDecimal{Decimal: row.OpeningBalance, Valid: true},
			CreatedAt:      row.CreatedAt,
		})
		if err != nil {
			return opened, fmt.Errorf("row %d: %w", i+2, err)
		}
		opened = append(opened, acct)
	}
	return opened, nil
}

// Export writes every account as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	accts, err := s.All(ctx)
	if err != nil {
		return err
	}
	return WriteAccounts(w, accts)
}
