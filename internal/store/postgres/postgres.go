// Package postgres is the PostgreSQL implementation of the ledger stores.
//
// Writes and reads that feed a transfer decision go to the primary. History
// and listing queries are routed through dbresolver and may hit a replica.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/fintech-dev/ledger/internal/config"
	"github.com/fintech-dev/ledger/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// Store implements store.AccountStore, store.TransactionLog and store.Transactor.
type Store struct {
	primary *sql.DB
	db      dbresolver.DB
	logger  *zap.Logger
	pinned  bool // list reads go to the primary too
}

var (
	_ store.AccountStore   = (*Store)(nil)
	_ store.TransactionLog = (*Store)(nil)
	_ store.Transactor     = (*Store)(nil)
	_ store.PrimaryReader  = (*Store)(nil)
	_ store.Aggregator     = (*Store)(nil)
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// reader is the pool list queries run on.
func (s *Store) reader() querier {
	if s.pinned {
		return s.primary
	}
	return s.db
}

func (s *Store) onPrimary() *Store {
	c := *s
	c.pinned = true
	return &c
}

// PrimaryAccounts implements store.PrimaryReader.
func (s *Store) PrimaryAccounts() store.AccountStore { return s.onPrimary() }

// PrimaryLog implements store.PrimaryReader.
func (s *Store) PrimaryLog() store.TransactionLog { return s.onPrimary() }

// Open connects to the primary and, if configured, a read replica.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrimaryDSN == "" {
		return nil, errors.New("postgres: primary dsn is required")
	}

	primary, err := openDB(ctx, cfg.PrimaryDSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to primary: %w", err)
	}

	replica := primary
	if cfg.ReplicaDSN != "" && cfg.ReplicaDSN != cfg.PrimaryDSN {
		replica, err = openDB(ctx, cfg.ReplicaDSN, cfg)
		if err != nil {
			_ = primary.Close()
			return nil, fmt.Errorf("connecting to replica: %w", err)
		}
	}

	return newStore(primary, replica, logger), nil
}

func newStore(primary, replica *sql.DB, logger *zap.Logger) *Store {
	db := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)
	return &Store{primary: primary, db: db, logger: logger}
}

func openDB(ctx context.Context, dsn string, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes every underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations to the primary.
func (s *Store) Migrate() error {
	return Migrate(s.primary, s.logger)
}

// Migrate applies the embedded schema migrations. Already-applied
// migrations are skipped.
func Migrate(db *sql.DB, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema up to date")
			return nil
		}
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("migration failed: dirty database version %d", dirty.Version)
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("schema migrated", zap.Uint("version", version))
	return nil
}
