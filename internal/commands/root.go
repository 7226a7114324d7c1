// Package commands implements the ledger CLI.
package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/buildinfo"
	"github.com/fintech-dev/ledger/internal/model"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	userID     string
	role       string
}

// caller is the identity the command acts as. The CLI trusts the flags the
// way the engine trusts an upstream authentication layer.
func (o *options) caller() (model.Caller, error) {
	role := model.Role(strings.ToUpper(o.role))
	switch role {
	case model.RoleUser, model.RoleAdmin:
	default:
		return model.Caller{}, fmt.Errorf("unknown role %q", o.role)
	}
	if o.userID == "" && role != model.RoleAdmin {
		return model.Caller{}, errors.New("--user is required")
	}
	return model.Caller{UserID: o.userID, Role: role}, nil
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Account ledger and transfer engine",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "ledger.yaml", "path to ledger.yaml")
	flags.StringVar(&opts.userID, "user", "", "user id to act as")
	flags.StringVar(&opts.role, "role", string(model.RoleUser), "role to act as (USER or ADMIN)")

	rootCmd.AddCommand(
		newInitCommand(),
		newMigrateCommand(opts),
		newAccountCommand(opts),
		newTransferCommand(opts),
		newHistoryCommand(opts),
		newStatementCommand(opts),
		newReconcileCommand(opts),
		newStatsCommand(opts),
	)

	return rootCmd
}
