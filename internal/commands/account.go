package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/accounts"
	"github.com/fintech-dev/ledger/internal/ledger"
	"github.com/fintech-dev/ledger/internal/model"
)

func newAccountCommand(opts *options) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Open, list, import and export accounts",
	}
	accountCmd.AddCommand(
		newAccountOpenCommand(opts),
		newAccountShowCommand(opts),
		newAccountListCommand(opts),
		newAccountImportCommand(opts),
		newAccountExportCommand(opts),
	)
	return accountCmd
}

func newAccountOpenCommand(opts *options) *cobra.Command {
	var owner, accountType, balance string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			if owner == "" {
				owner = caller.UserID
			}
			if owner != caller.UserID && !caller.IsAdmin() {
				return fmt.Errorf("opening an account for %s: %w", owner, ledger.ErrForbidden)
			}
			initial, err := parseAmount(balance)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts.configPath, true, func(a *app) error {
				acct, err := a.accounts.Open(cmd.Context(), accounts.OpenParams{
					OwnerID:        owner,
					Type:           model.AccountType(strings.ToUpper(accountType)),
					InitialBalance: initial,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Opened account %s (number %s)\n", acct.ID, acct.Number)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (defaults to --user)")
	cmd.Flags().StringVar(&accountType, "type", string(model.AccountTypeCurrent), "account type (SAVINGS or CURRENT)")
	cmd.Flags().StringVar(&balance, "balance", "0", "initial balance")

	return cmd
}

func newAccountShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				acct, err := a.accounts.Get(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return accounts.WriteAccounts(cmd.OutOrStdout(), []model.Account{acct})
			})
		},
	}
}

func newAccountListCommand(opts *options) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			if owner == "" && !caller.IsAdmin() {
				owner = caller.UserID
			}
			if owner != caller.UserID && !caller.IsAdmin() {
				return fmt.Errorf("listing accounts of %s: %w", owner, ledger.ErrForbidden)
			}

			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				var accts []model.Account
				var err error
				if owner == "" {
					accts, err = a.accounts.All(cmd.Context())
				} else {
					accts, err = a.accounts.ListByOwner(cmd.Context(), owner)
				}
				if err != nil {
					return err
				}
				return accounts.WriteAccounts(cmd.OutOrStdout(), accts)
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (admins default to every account)")

	return cmd
}

func newAccountImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Open accounts from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAdmin(opts); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			return withApp(cmd.Context(), opts.configPath, true, func(a *app) error {
				opened, err := a.accounts.Import(cmd.Context(), f)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts\n", len(opened))
				return err
			})
		},
	}
}

func newAccountExportCommand(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every account as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAdmin(opts); err != nil {
				return err
			}
			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				return writeOutput(cmd, out, func(w io.Writer) error {
					return a.accounts.Export(cmd.Context(), w)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	return cmd
}

func requireAdmin(opts *options) error {
	caller, err := opts.caller()
	if err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return fmt.Errorf("admin role required: %w", ledger.ErrForbidden)
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}

// writeOutput sends write's output to path, or to stdout when path is empty.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	return writeFileAtomic(path, write)
}
