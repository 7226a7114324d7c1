package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ledger-wide account and transaction totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				totals, err := a.engine.Stats(cmd.Context(), caller)
				if err != nil {
					return err
				}

				scale := a.cfg.Ledger.CurrencyScale
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "accounts         %d\n", totals.Accounts)
				fmt.Fprintf(w, "transactions     %d\n", totals.Transactions)
				fmt.Fprintf(w, "failed           %d\n", totals.Failed)
				fmt.Fprintf(w, "total_balance    %s\n", totals.Balance.StringFixed(scale))
				fmt.Fprintf(w, "opening_balance  %s\n", totals.OpeningBalance.StringFixed(scale))
				fmt.Fprintf(w, "drift            %s\n", totals.Drift().StringFixed(scale))
				return nil
			})
		},
	}
}
