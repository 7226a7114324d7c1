package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/ledger"
)

func newTransferCommand(opts *options) *cobra.Command {
	var from, to, amount, description string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move money from one of your accounts to an account number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			amt, err := parseAmount(amount)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			return withApp(ctx, opts.configPath, true, func(a *app) error {
				txn, err := a.engine.Transfer(ctx, ledger.TransferRequest{
					Caller:                   caller,
					SourceAccountID:          from,
					DestinationAccountNumber: to,
					Amount:                   amt,
					Description:              description,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s %s: %s from %s to %s\n",
					txn.ID, txn.Status, txn.Amount.StringFixed(a.cfg.Ledger.CurrencyScale), txn.SourceAccountID, txn.DestinationAccountID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source account id")
	cmd.Flags().StringVar(&to, "to", "", "destination account number")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to transfer")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits for the configured lock timeout)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
