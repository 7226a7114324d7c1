package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Transfer strategies.
const (
	StrategyAuto          = "auto"
	StrategyTransactional = "transactional"
	StrategyLockOrdered   = "lock-ordered"
)

// Config represents the top-level ledger.yaml configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Lock    LockConfig    `yaml:"lock"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects and configures the account/transaction store.
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	DataDir  string         `yaml:"data_dir,omitempty"` // memory driver snapshot directory
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig holds connection settings for the postgres driver.
type PostgresConfig struct {
	PrimaryDSN     string `yaml:"primary_dsn"`
	ReplicaDSN     string `yaml:"replica_dsn,omitempty"` // empty = reads go to primary
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// LockConfig selects the per-account locker used by the lock-ordered strategy.
type LockConfig struct {
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the distributed lock backend.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password,omitempty"`
	DB         int           `yaml:"db"`
	Expiry     time.Duration `yaml:"expiry"`
	Tries      int           `yaml:"tries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// LedgerConfig tunes the transfer engine.
type LedgerConfig struct {
	CurrencyScale  int32         `yaml:"currency_scale"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
	Strategy       string        `yaml:"strategy"`
}

// AlertsConfig controls where reconciliation alerts go. The log always receives them.
type AlertsConfig struct {
	CSVPath string      `yaml:"csv_path,omitempty"`
	AMQP    *AMQPConfig `yaml:"amqp,omitempty"`
}

// AMQPConfig configures the RabbitMQ alert publisher.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Load reads a ledger.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a local setup.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:  DriverMemory,
			DataDir: "data",
			Postgres: PostgresConfig{
				MaxOpenConns: 25,
				MaxIdleConns: 10,
			},
		},
		Lock: LockConfig{
			Driver: LockLocal,
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				Expiry:     8 * time.Second,
				Tries:      32,
				RetryDelay: 50 * time.Millisecond,
			},
		},
		Ledger: LedgerConfig{
			CurrencyScale:  2,
			MaxAttempts:    3,
			RetryBaseDelay: 10 * time.Millisecond,
			LockTimeout:    5 * time.Second,
			Strategy:       StrategyAuto,
		},
		Alerts: AlertsConfig{
			CSVPath: "logs/alerts.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the memory driver"))
		}
	case DriverPostgres:
		if c.Storage.Postgres.PrimaryDSN == "" {
			errs = append(errs, errors.New("storage.postgres.primary_dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if c.Lock.Redis.Addr == "" {
			errs = append(errs, errors.New("lock.redis.addr is required"))
		}
		// Only the lock-ordered strategy takes account locks.
		if c.Ledger.Strategy != StrategyLockOrdered {
			errs = append(errs, fmt.Errorf("lock.driver redis needs ledger.strategy %s, got %q", StrategyLockOrdered, c.Ledger.Strategy))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock driver %q", c.Lock.Driver))
	}

	switch c.Ledger.Strategy {
	case StrategyAuto, StrategyTransactional, StrategyLockOrdered:
	default:
		errs = append(errs, fmt.Errorf("unknown ledger strategy %q", c.Ledger.Strategy))
	}
	if c.Ledger.CurrencyScale < 0 || c.Ledger.CurrencyScale > 8 {
		errs = append(errs, fmt.Errorf("ledger.currency_scale %d out of range 0..8", c.Ledger.CurrencyScale))
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, errors.New("ledger.max_attempts must be at least 1"))
	}
	if c.Ledger.LockTimeout <= 0 {
		errs = append(errs, errors.New("ledger.lock_timeout must be positive"))
	}

	if c.Alerts.AMQP != nil && c.Alerts.AMQP.URL == "" {
		errs = append(errs, errors.New("alerts.amqp.url is required when alerts.amqp is set"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
