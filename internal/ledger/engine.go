// Package ledger moves money between accounts.
//
// The Engine validates a transfer, serializes it against every other
// transfer touching the same accounts, applies the debit, the credit and
// the transaction record as one unit, and retries bounded times when it
// loses a race.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fintech-dev/ledger/internal/alert"
	"github.com/fintech-dev/ledger/internal/id"
	"github.com/fintech-dev/ledger/internal/lock"
	"github.com/fintech-dev/ledger/internal/logging"
	"github.com/fintech-dev/ledger/internal/model"
	"github.com/fintech-dev/ledger/internal/store"
)

// Strategy selects how a transfer is made atomic.
type Strategy string

const (
	// StrategyAuto uses the store's transactions when it has them.
	StrategyAuto Strategy = "auto"
	// StrategyTransactional locks both rows inside one store transaction.
	StrategyTransactional Strategy = "transactional"
	// StrategyLockOrdered takes per-account locks in id order and applies
	// compare-and-swap writes.
	StrategyLockOrdered Strategy = "lock-ordered"
)

// Store is everything the engine needs from persistence.
type Store interface {
	store.AccountStore
	store.TransactionLog
	store.Aggregator
}

// Config tunes an Engine. Zero values fall back to DefaultConfig.
type Config struct {
	Scale          int32 // fractional digits of the currency
	MaxAttempts    int
	RetryBaseDelay time.Duration
	LockTimeout    time.Duration
	Strategy       Strategy

	Locker         lock.Locker // lock-ordered strategy only; defaults to lock.NewLocal()
	Alerter        alert.Alerter
	Logger         *zap.Logger
	Clock          func() time.Time
	NewID          func() string
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Scale:          2,
		MaxAttempts:    3,
		RetryBaseDelay: 10 * time.Millisecond,
		LockTimeout:    5 * time.Second,
		Strategy:       StrategyAuto,
	}
}

// TransferRequest is one transfer as asked for by an authenticated caller.
type TransferRequest struct {
	Caller                   model.Caller
	SourceAccountID          string
	DestinationAccountNumber string
	Amount                   decimal.Decimal
	Description              string
}

// Engine executes transfers. Safe for concurrent use.
type Engine struct {
	store     Store
	txr       store.Transactor // nil for lock-ordered
	locker    lock.Locker
	strategy  Strategy
	validator Validator
	guard     *Guard
	alerter   alert.Alerter
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string
	tel       *telemetry
	cfg       Config
}

// New builds an Engine over s.
func New(s Store, cfg Config) (*Engine, error) {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay < 0 {
		cfg.RetryBaseDelay = 0
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.Scale < 0 {
		return nil, fmt.Errorf("negative currency scale %d", cfg.Scale)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Alerter == nil {
		cfg.Alerter = alert.NewLogger(cfg.Logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewTransactionID
	}

	e := &Engine{
		store:     s,
		validator: NewValidator(cfg.Scale),
		guard:     NewGuard(s),
		alerter:   cfg.Alerter,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
		cfg:       cfg,
	}

	txr, transactional := s.(store.Transactor)
	switch cfg.Strategy {
	case StrategyAuto:
		if transactional {
			e.strategy, e.txr = StrategyTransactional, txr
		} else {
			e.strategy = StrategyLockOrdered
		}
	case StrategyTransactional:
		if !transactional {
			return nil, errors.New("transactional strategy requires a store with transactions")
		}
		e.strategy, e.txr = StrategyTransactional, txr
	case StrategyLockOrdered:
		e.strategy = StrategyLockOrdered
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
	if e.strategy == StrategyLockOrdered {
		e.locker = cfg.Locker
		if e.locker == nil {
			e.locker = lock.NewLocal()
		}
	}

	tel, err := newTelemetry(cfg.TracerProvider, cfg.MeterProvider)
	if err != nil {
		return nil, err
	}
	e.tel = tel
	return e, nil
}

// Strategy returns the strategy in effect after resolving StrategyAuto.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Validator returns the engine's validator.
func (e *Engine) Validator() Validator { return e.validator }

// Guard returns the engine's ownership guard.
func (e *Engine) Guard() *Guard { return e.guard }

// Transfer moves req.Amount from the source account to the account with the
// destination number and returns the COMPLETED transaction.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (model.Transaction, error) {
	start := time.Now()
	ctx, span := e.tel.tracer.Start(ctx, "ledger.transfer", trace.WithAttributes(
		attribute.String("ledger.source_account_id", req.SourceAccountID),
		attribute.String("ledger.destination_account_number", req.DestinationAccountNumber),
		attribute.String("ledger.amount", req.Amount.String()),
		attribute.String("ledger.strategy", string(e.strategy)),
	))
	defer span.End()

	txn, attempts, err := e.transfer(ctx, req)
	e.tel.finish(ctx, span, e.strategy, start, err)

	logger := logging.WithTrace(ctx, e.logger).With(
		zap.String("source_account_id", req.SourceAccountID),
		zap.String("destination_account_number", req.DestinationAccountNumber),
		zap.String("amount", req.Amount.String()),
		zap.Int("attempt", attempts),
	)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("ledger.transaction_id", txn.ID))
		logger.Info("transfer completed",
			zap.String("transaction_id", txn.ID),
			zap.String("destination_account_id", txn.DestinationAccountID))
	case KindOf(err) == KindReconciliationRequired:
		logger.Error("transfer needs reconciliation", zap.Error(err))
	case KindOf(err) != "":
		logger.Info("transfer rejected", zap.String("kind", string(KindOf(err))), zap.Error(err))
	default:
		logger.Error("transfer failed", zap.Error(err))
	}
	return txn, err
}

func (e *Engine) transfer(ctx context.Context, req TransferRequest) (model.Transaction, int, error) {
	if err := ctx.Err(); err != nil {
		return model.Transaction{}, 0, contextError(err)
	}

	source, err := e.guard.Authorize(ctx, req.Caller, req.SourceAccountID)
	if err != nil {
		return model.Transaction{}, 0, err
	}
	var destination *model.Account
	dest, err := e.store.GetByNumber(ctx, req.DestinationAccountNumber)
	switch {
	case err == nil:
		destination = &dest
	case errors.Is(err, store.ErrNotFound):
	default:
		return model.Transaction{}, 0, e.classify(ctx, err)
	}
	if err := e.validator.Check(req.Amount, &source, destination); err != nil {
		return model.Transaction{}, 0, err
	}

	plan := transferPlan{
		id:          e.newID(),
		sourceID:    source.ID,
		destID:      destination.ID,
		amount:      req.Amount,
		description: req.Description,
	}
	if plan.description == "" {
		plan.description = fmt.Sprintf("Transfer from %s to %s", source.Number, destination.Number)
	}

	for attempt := 1; ; attempt++ {
		var txn model.Transaction
		if e.strategy == StrategyTransactional {
			txn, err = e.attemptTransactional(ctx, plan)
		} else {
			txn, err = e.attemptLockOrdered(ctx, plan)
		}
		if err == nil {
			return txn, attempt, nil
		}
		if !IsRetryable(err) || attempt >= e.cfg.MaxAttempts || ctx.Err() != nil {
			if ctx.Err() != nil && IsRetryable(err) {
				return model.Transaction{}, attempt, contextError(ctx.Err())
			}
			return model.Transaction{}, attempt, err
		}

		e.tel.retried(ctx, e.strategy, err)
		e.logger.Debug("retrying transfer",
			zap.String("transaction_id", plan.id),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if serr := sleep(ctx, backoff(e.cfg.RetryBaseDelay, attempt-1)); serr != nil {
			return model.Transaction{}, attempt, contextError(serr)
		}
	}
}

// transferPlan is what stays fixed across attempts. The transaction id is
// generated once so an ambiguous commit can be looked up.
type transferPlan struct {
	id          string
	sourceID    string
	destID      string
	amount      decimal.Decimal
	description string
}

func (e *Engine) pending(p transferPlan) model.Transaction {
	return model.Transaction{
		ID:                   p.id,
		SourceAccountID:      p.sourceID,
		DestinationAccountID: p.destID,
		Amount:               p.amount,
		Description:          p.description,
		CreatedAt:            e.clock().UTC(),
		Status:               model.StatusPending,
	}
}

func pick(accts []model.Account, sourceID, destID string) (src, dst *model.Account) {
	for i := range accts {
		switch accts[i].ID {
		case sourceID:
			src = &accts[i]
		case destID:
			dst = &accts[i]
		}
	}
	return src, dst
}

func (e *Engine) attemptTransactional(ctx context.Context, p transferPlan) (model.Transaction, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()

	var result model.Transaction
	err := e.txr.InTx(lockCtx, func(tx store.Tx) error {
		accts, err := tx.LockAccounts(lockCtx, p.sourceID, p.destID)
		if err != nil {
			return err
		}
		// Locks are held; the rest must not be cut short by the caller.
		wctx := context.WithoutCancel(ctx)
		src, dst := pick(accts, p.sourceID, p.destID)
		if err := e.validator.Check(p.amount, src, dst); err != nil {
			return err
		}

		txn := e.pending(p)
		if err := tx.UpdateBalance(wctx, src.ID, src.Balance.Sub(p.amount)); err != nil {
			return err
		}
		if err := tx.UpdateBalance(wctx, dst.ID, dst.Balance.Add(p.amount)); err != nil {
			return err
		}
		if err := Transition(&txn, model.StatusCompleted); err != nil {
			return err
		}
		if err := tx.Append(wctx, txn); err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err == nil {
		return result, nil
	}
	if errors.Is(err, store.ErrCommitUnknown) || errors.Is(err, store.ErrDuplicate) {
		return e.resolve(ctx, p, err)
	}
	return model.Transaction{}, e.classify(ctx, err)
}

// resolve decides the fate of an attempt whose commit outcome is unknown by
// looking the transaction up in the log.
func (e *Engine) resolve(ctx context.Context, p transferPlan, cause error) (model.Transaction, error) {
	txn, err := e.store.GetTransaction(context.WithoutCancel(ctx), p.id)
	switch {
	case err == nil:
		e.logger.Warn("ambiguous commit resolved as applied", zap.String("transaction_id", p.id), zap.Error(cause))
		return txn, nil
	case errors.Is(err, store.ErrNotFound):
		return model.Transaction{}, newError(KindConflict, "transfer", "commit did not land", cause)
	default:
		e.raise(ctx, alert.Alert{
			Kind:                 alert.KindCommitUnknown,
			TransactionID:        p.id,
			SourceAccountID:      p.sourceID,
			DestinationAccountID: p.destID,
			Amount:               p.amount,
			Details:              fmt.Sprintf("commit: %v; lookup: %v", cause, err),
		})
		return model.Transaction{}, newError(KindReconciliationRequired, "transfer",
			fmt.Sprintf("outcome of transaction %s unknown", p.id), errors.Join(cause, err))
	}
}

func (e *Engine) attemptLockOrdered(ctx context.Context, p transferPlan) (model.Transaction, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()

	release, err := e.locker.Acquire(lockCtx, p.sourceID, p.destID)
	if err != nil {
		return model.Transaction{}, e.classify(ctx, err)
	}
	defer release()

	wctx := context.WithoutCancel(ctx)
	src, err := e.lookup(wctx, p.sourceID)
	if err != nil {
		return model.Transaction{}, e.classify(ctx, err)
	}
	dst, err := e.lookup(wctx, p.destID)
	if err != nil {
		return model.Transaction{}, e.classify(ctx, err)
	}
	if err := e.validator.Check(p.amount, src, dst); err != nil {
		return model.Transaction{}, err
	}

	txn := e.pending(p)
	debited := src.Balance.Sub(p.amount)
	if err := e.store.CompareAndSwapBalance(wctx, src.ID, src.Balance, debited); err != nil {
		return model.Transaction{}, e.classify(ctx, err)
	}
	if err := e.store.CompareAndSwapBalance(wctx, dst.ID, dst.Balance, dst.Balance.Add(p.amount)); err != nil {
		if cerr := e.store.CompareAndSwapBalance(wctx, src.ID, debited, src.Balance); cerr != nil {
			return model.Transaction{}, e.partial(wctx, txn, err, cerr)
		}
		return model.Transaction{}, e.classify(ctx, err)
	}

	if err := Transition(&txn, model.StatusCompleted); err != nil {
		return model.Transaction{}, err
	}
	if _, err := e.store.Append(wctx, txn); err != nil {
		e.raise(wctx, alert.Alert{
			Kind:                 alert.KindUnrecordedTransfer,
			TransactionID:        txn.ID,
			SourceAccountID:      txn.SourceAccountID,
			DestinationAccountID: txn.DestinationAccountID,
			Amount:               txn.Amount,
			Details:              fmt.Sprintf("balances applied, append failed: %v", err),
		})
		return model.Transaction{}, newError(KindReconciliationRequired, "transfer",
			fmt.Sprintf("transaction %s applied but not recorded", txn.ID), err)
	}
	return txn, nil
}

// partial records a debit that could be neither credited nor reversed.
func (e *Engine) partial(ctx context.Context, txn model.Transaction, creditErr, compensateErr error) error {
	details := fmt.Sprintf("credit failed: %v; reversal failed: %v", creditErr, compensateErr)
	if err := Transition(&txn, model.StatusFailed); err == nil {
		if _, err := e.store.Append(ctx, txn); err != nil {
			details += fmt.Sprintf("; recording FAILED transaction: %v", err)
		}
	}
	e.raise(ctx, alert.Alert{
		Kind:                 alert.KindPartialTransfer,
		TransactionID:        txn.ID,
		SourceAccountID:      txn.SourceAccountID,
		DestinationAccountID: txn.DestinationAccountID,
		Amount:               txn.Amount,
		Details:              details,
	})
	return newError(KindReconciliationRequired, "transfer",
		fmt.Sprintf("transaction %s debited source without credit", txn.ID), errors.Join(creditErr, compensateErr))
}

func (e *Engine) lookup(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := e.store.GetByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (e *Engine) raise(ctx context.Context, a alert.Alert) {
	if a.Time.IsZero() {
		a.Time = e.clock().UTC()
	}
	if err := e.alerter.Emit(ctx, a); err != nil {
		e.logger.Error("emitting alert failed",
			zap.String("kind", string(a.Kind)),
			zap.String("transaction_id", a.TransactionID),
			zap.Error(err))
	}
}

// classify maps store and lock failures onto error kinds.
func (e *Engine) classify(ctx context.Context, err error) error {
	var lerr *Error
	switch {
	case errors.As(err, &lerr):
		return err
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return contextError(ctx.Err())
	case errors.Is(err, store.ErrConflict):
		return newError(KindConflict, "transfer", "concurrent update", err)
	case errors.Is(err, store.ErrTimeout), errors.Is(err, lock.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, "transfer", "waiting for account locks", err)
	case errors.Is(err, lock.ErrUnavailable):
		return newError(KindTimeout, "transfer", "lock backend unavailable", err)
	case errors.Is(err, store.ErrNotFound):
		return newError(KindAccountNotFound, "transfer", "account disappeared", err)
	default:
		return fmt.Errorf("transfer: %w", err)
	}
}

// contextError reports a caller deadline as Timeout and passes
// cancellation through unchanged.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "transfer", "deadline exceeded", err)
	}
	return err
}
