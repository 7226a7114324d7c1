package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/accounts"
	"github.com/fintech-dev/ledger/internal/config"
)

type initOptions struct {
	driver string
	dsn    string
	demo   bool
	force  bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.driver, "driver", config.DriverMemory, "storage driver (memory or postgres)")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "postgres primary DSN")
	cmd.Flags().BoolVar(&opts.demo, "demo", false, "open demo accounts for alice and bob")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing ledger.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts initOptions) error {
	path := filepath.Join(dir, "ledger.yaml")
	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("%s already exists", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.Default()
	cfg.Storage.Driver = opts.driver
	if opts.driver == config.DriverPostgres {
		cfg.Storage.Postgres.PrimaryDSN = opts.dsn
		cfg.Storage.Postgres.MigrateOnStart = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dirs := []string{dir, filepath.Join(dir, filepath.Dir(cfg.Alerts.CSVPath))}
	if cfg.Storage.Driver == config.DriverMemory {
		dirs = append(dirs, filepath.Join(dir, cfg.Storage.DataDir))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.demo {
		err := withApp(cmd.Context(), path, true, func(a *app) error {
			for _, p := range accounts.DemoAccounts() {
				acct, err := a.accounts.Open(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Opened %s %s for %s (%s, balance %s)\n",
					acct.Type, acct.Number, acct.OwnerID, acct.ID, acct.Balance.StringFixed(cfg.Ledger.CurrencyScale))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("opening demo accounts: %w", err)
		}
	}

	fmt.Fprintf(out, "Initialized ledger at %s\n", dir)
	return nil
}
