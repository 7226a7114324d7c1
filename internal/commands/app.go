package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fintech-dev/ledger/internal/accounts"
	"github.com/fintech-dev/ledger/internal/alert"
	"github.com/fintech-dev/ledger/internal/config"
	"github.com/fintech-dev/ledger/internal/ledger"
	"github.com/fintech-dev/ledger/internal/lock"
	"github.com/fintech-dev/ledger/internal/logging"
	"github.com/fintech-dev/ledger/internal/store/memory"
	"github.com/fintech-dev/ledger/internal/store/postgres"
)

// app is the ledger wired from one ledger.yaml.
type app struct {
	cfg    *config.Config
	root   string // directory of ledger.yaml; relative paths resolve here
	logger *zap.Logger
	// saves is set when the memory driver's state is written back on exit.
	saves bool

	store      ledger.Store
	mem        *memory.TxStore // set for the memory driver only
	engine     *ledger.Engine
	accounts   *accounts.Service
	reconciler *ledger.Reconciler

	closers []func() error
}

func openApp(ctx context.Context, configPath string, saves bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, root: filepath.Dir(configPath), logger: logger, saves: saves}
	if err := a.wire(ctx); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	locker, err := a.openLocker()
	if err != nil {
		return err
	}
	alerter, err := a.openAlerter()
	if err != nil {
		return err
	}

	a.engine, err = ledger.New(a.store, ledger.Config{
		Scale:          a.cfg.Ledger.CurrencyScale,
		MaxAttempts:    a.cfg.Ledger.MaxAttempts,
		RetryBaseDelay: a.cfg.Ledger.RetryBaseDelay,
		LockTimeout:    a.cfg.Ledger.LockTimeout,
		Strategy:       ledger.Strategy(a.cfg.Ledger.Strategy),
		Locker:         locker,
		Alerter:        alerter,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	a.accounts = accounts.NewService(a.store, a.cfg.Ledger.CurrencyScale, a.logger)
	a.reconciler = ledger.NewReconciler(a.store, a.store, alerter, a.logger)
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, a.cfg.Storage.Postgres, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		if a.cfg.Storage.Postgres.MigrateOnStart {
			if err := pg.Migrate(); err != nil {
				return err
			}
		}
		a.store = pg
	default:
		dir := a.path(a.cfg.Storage.DataDir)
		// Held until close, so a save cannot drop another run's writes.
		unlock, err := lockDataDir(ctx, dir, a.saves, a.cfg.Ledger.LockTimeout)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, unlock)
		a.mem = memory.NewTx()
		if err := loadSnapshot(ctx, a.mem, dir); err != nil {
			return err
		}
		a.store = a.mem
	}
	return nil
}

// openLocker returns nil for the local driver; the engine then uses an
// in-process locker.
func (a *app) openLocker() (lock.Locker, error) {
	if a.cfg.Lock.Driver != config.LockRedis {
		return nil, nil
	}
	rc := a.cfg.Lock.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	a.closers = append(a.closers, client.Close)
	return lock.NewRedis(client, lock.RedisOptions{
		Expiry:     rc.Expiry,
		Tries:      rc.Tries,
		RetryDelay: rc.RetryDelay,
		Logger:     a.logger,
	}), nil
}

func (a *app) openAlerter() (alert.Alerter, error) {
	alerters := alert.Multi{alert.NewLogger(a.logger)}
	if a.cfg.Alerts.CSVPath != "" {
		alerters = append(alerters, alert.NewFile(a.path(a.cfg.Alerts.CSVPath)))
	}
	if q := a.cfg.Alerts.AMQP; q != nil {
		broker, err := alert.DialBroker(q.URL, q.Exchange, q.RoutingKey)
		if err != nil {
			return nil, fmt.Errorf("connecting alert broker: %w", err)
		}
		a.closers = append(a.closers, broker.Close)
		alerters = append(alerters, broker)
	}
	return alerters, nil
}

func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, p)
}

// save persists the memory driver's state. Other drivers are durable already.
func (a *app) save(ctx context.Context) error {
	if a.mem == nil || !a.saves {
		return nil
	}
	return saveSnapshot(ctx, a.mem, a.path(a.cfg.Storage.DataDir))
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// withApp runs fn against a freshly wired app. When mutates is set the
// memory driver's state is saved afterwards, also after a failed fn, so
// FAILED transactions survive.
func withApp(ctx context.Context, configPath string, mutates bool, fn func(*app) error) (err error) {
	a, err := openApp(ctx, configPath, mutates)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	err = fn(a)
	if mutates {
		if saveErr := a.save(ctx); saveErr != nil {
			err = errors.Join(err, fmt.Errorf("saving state: %w", saveErr))
		}
	}
	return err
}
