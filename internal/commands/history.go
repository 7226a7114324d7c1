package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/journal"
	"github.com/fintech-dev/ledger/internal/model"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "history [account-id]",
		Short: "List transactions of one account, or of all your accounts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			if len(args) == 0 && caller.UserID == "" {
				return errors.New("history without an account id needs --user")
			}

			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				var txns []model.Transaction
				var err error
				if len(args) == 1 {
					txns, err = a.engine.GetAccountTransactions(cmd.Context(), caller, args[0])
				} else {
					txns, err = a.engine.GetAllUserTransactions(cmd.Context(), caller.UserID)
				}
				if err != nil {
					return err
				}
				return writeOutput(cmd, out, func(w io.Writer) error {
					return journal.WriteTransactions(w, txns)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	return cmd
}

func newStatementCommand(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "statement <account-id>",
		Short: "Write a debit/credit statement of one account as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				txns, err := a.engine.GetAccountTransactions(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				if err := writeOutput(cmd, out, func(w io.Writer) error {
					return journal.WriteStatement(w, args[0], txns)
				}); err != nil {
					return fmt.Errorf("writing statement: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	return cmd
}
