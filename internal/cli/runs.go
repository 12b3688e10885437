package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradecore/id"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/strategies"
)

func newRunsCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs recorded in the SQLite journal",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run summary and its closed trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := id.Time(args[0]); err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			if ro.cfg.Journal.Type != "sqlite" {
				return fmt.Errorf("runs need a SQLite journal (--db or journal.type: sqlite)")
			}
			j, err := journal.NewSQLite(ro.cfg.Journal.DBPath)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			run, err := j.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			trades, err := j.ListTrades(ctx, run.ID)
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), run, trades)
			return nil
		},
	})
	return cmd
}

func printRun(w io.Writer, r journal.Run, trades []journal.TradeRecord) {
	fmt.Fprintf(w, "Run ID:        %s\n", r.ID)
	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Mode:          %s\n", r.Mode)
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)
	fmt.Fprintf(w, "Start cash:    %.2f\n", r.StartCash)
	if r.Finished.IsZero() {
		fmt.Fprintln(w, "Finished:      (running or aborted)")
	} else {
		fmt.Fprintf(w, "End equity:    %.2f\n", r.EndEquity)
		fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)
		fmt.Fprintf(w, "Max drawdown:  %.2f%%\n", r.MaxDDPct)
		fmt.Fprintf(w, "Win rate:      %.2f%%\n", r.WinRatePct)
	}
	fmt.Fprintln(w)

	tbl := tablewriter.NewWriter(w)
	tbl.Header("Trade", "Instrument", "Size", "Entry", "Exit", "Entry idx", "Exit idx", "P/L", "Reason")
	for _, t := range trades {
		tbl.Append(
			t.TradeID,
			t.Instrument,
			fmt.Sprintf("%g", t.Size),
			fmt.Sprintf("%.5f", t.EntryPrice),
			fmt.Sprintf("%.5f", t.ExitPrice),
			fmt.Sprintf("%d", t.EntryIndex),
			fmt.Sprintf("%d", t.ExitIndex),
			fmt.Sprintf("%.2f", t.PnL),
			t.Reason,
		)
	}
	tbl.Render()
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered strategies",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(strategies.Names(), "\n"))
		},
	}
}
