package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fintech-dev/ledger/internal/ledger"
)

func newReconcileCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [account-id]",
		Short: "Check stored balances against the transaction log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAdmin(opts); err != nil {
				return err
			}

			return withApp(cmd.Context(), opts.configPath, false, func(a *app) error {
				var reports []ledger.Report
				var err error
				if len(args) == 1 {
					var rep ledger.Report
					rep, err = a.reconciler.Check(cmd.Context(), args[0])
					if rep.AccountID != "" {
						reports = append(reports, rep)
					}
				} else {
					reports, err = a.reconciler.CheckAll(cmd.Context())
				}
				printReports(cmd.OutOrStdout(), reports, a.cfg.Ledger.CurrencyScale)
				return err
			})
		},
	}
}

func printReports(w io.Writer, reports []ledger.Report, scale int32) {
	for _, r := range reports {
		status := "OK"
		if !r.OK() {
			status = "DRIFT"
			if r.Drift().IsZero() {
				status = "FAILED_TRANSACTIONS"
			}
		}
		fmt.Fprintf(w, "%s %s stored=%s expected=%s drift=%s completed=%d failed=%d %s\n",
			r.AccountID, r.AccountNumber,
			r.Stored.StringFixed(scale), r.Expected.StringFixed(scale), r.Drift().StringFixed(scale),
			r.Completed, len(r.Failed), status)
	}
}
