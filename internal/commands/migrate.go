package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/config"
	"github.com/fintech-dev/ledger/internal/logging"
	"github.com/fintech-dev/ledger/internal/store/postgres"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts.configPath)
		},
	}
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate needs the postgres storage driver, config has %q", cfg.Storage.Driver)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	s, err := postgres.Open(cmd.Context(), cfg.Storage.Postgres, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date")
	return nil
}
