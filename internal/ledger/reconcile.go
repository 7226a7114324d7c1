package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fintech-dev/ledger/internal/alert"
	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// Report compares one account's stored balance with the balance implied
// by its opening balance and COMPLETED transactions.
type Report struct {
	AccountID     string
	AccountNumber string
	Stored        decimal.Decimal
	Expected      decimal.Decimal
	Completed     int
	Failed        []string // ids of FAILED transactions touching the account
}

// Drift is Stored minus Expected.
func (r Report) Drift() decimal.Decimal { return r.Stored.Sub(r.Expected) }

// OK reports whether the account needs no manual attention.
func (r Report) OK() bool {
	return r.Drift().IsZero() && len(r.Failed) == 0
}

// Reconciler detects balances that disagree with the transaction log.
type Reconciler struct {
	accounts store.AccountStore
	log      store.TransactionLog
	alerter  alert.Alerter
	logger   *zap.Logger
	clock    func() time.Time
}

// NewReconciler returns a Reconciler. alerter and logger may be nil. Stores
// that route reads to replicas are read through their primary views, so the
// balance and the log it is checked against come from the same node.
func NewReconciler(accounts store.AccountStore, log store.TransactionLog, alerter alert.Alerter, logger *zap.Logger) *Reconciler {
	if p, ok := accounts.(store.PrimaryReader); ok {
		accounts = p.PrimaryAccounts()
	}
	if p, ok := log.(store.PrimaryReader); ok {
		log = p.PrimaryLog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerter == nil {
		alerter = alert.NewLogger(logger)
	}
	return &Reconciler{accounts: accounts, log: log, alerter: alerter, logger: logger, clock: time.Now}
}

// Check reconciles one account. When the account needs attention the report
// is returned together with an ErrReconciliationRequired-kind error and an
// alert is emitted.
func (r *Reconciler) Check(ctx context.Context, accountID string) (Report, error) {
	acct, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Report{}, fmt.Errorf("loading account %s: %w", accountID, err)
	}
	return r.check(ctx, acct)
}

// CheckAll reconciles every account and returns all reports.
func (r *Reconciler) CheckAll(ctx context.Context) ([]Report, error) {
	accts, err := r.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	reports := make([]Report, 0, len(accts))
	failing := 0
	for _, a := range accts {
		rep, err := r.check(ctx, a)
		if err != nil && KindOf(err) != KindReconciliationRequired {
			return reports, err
		}
		if !rep.OK() {
			failing++
		}
		reports = append(reports, rep)
	}
	if failing > 0 {
		return reports, newError(KindReconciliationRequired, "reconcile",
			fmt.Sprintf("%d of %d accounts need reconciliation", failing, len(accts)), nil)
	}
	return reports, nil
}

func (r *Reconciler) check(ctx context.Context, acct model.Account) (Report, error) {
	txns, err := r.log.ListByAccount(ctx, acct.ID)
	if err != nil {
		return Report{}, fmt.Errorf("listing transactions of %s: %w", acct.ID, err)
	}

	rep := Report{
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		Stored:        acct.Balance,
		Expected:      acct.OpeningBalance,
	}
	for _, t := range txns {
		switch t.Status {
		case model.StatusCompleted:
			rep.Completed++
			if t.DestinationAccountID == acct.ID {
				rep.Expected = rep.Expected.Add(t.Amount)
			}
			if t.SourceAccountID == acct.ID {
				rep.Expected = rep.Expected.Sub(t.Amount)
			}
		case model.StatusFailed:
			rep.Failed = append(rep.Failed, t.ID)
		}
	}

	if rep.OK() {
		r.logger.Debug("account reconciled", zap.String("account_id", acct.ID), zap.Int("completed", rep.Completed))
		return rep, nil
	}

	r.emit(ctx, rep)
	return rep, newError(KindReconciliationRequired, "reconcile",
		fmt.Sprintf("account %s stored %s expected %s, %d failed transactions",
			acct.Number, rep.Stored, rep.Expected, len(rep.Failed)), nil)
}

func (r *Reconciler) emit(ctx context.Context, rep Report) {
	var alerts []alert.Alert
	if !rep.Drift().IsZero() {
		alerts = append(alerts, alert.Alert{
			Kind:            alert.KindBalanceDrift,
			SourceAccountID: rep.AccountID,
			Amount:          rep.Drift(),
			Details:         fmt.Sprintf("stored %s, expected %s", rep.Stored, rep.Expected),
		})
	}
	for _, id := range rep.Failed {
		alerts = append(alerts, alert.Alert{
			Kind:            alert.KindFailedTransaction,
			TransactionID:   id,
			SourceAccountID: rep.AccountID,
			Details:         "FAILED transaction touches account",
		})
	}
	for _, a := range alerts {
		a.Time = r.clock().UTC()
		if err := r.alerter.Emit(ctx, a); err != nil {
			r.logger.Error("emitting alert failed", zap.String("account_id", rep.AccountID), zap.Error(err))
		}
	}
}
