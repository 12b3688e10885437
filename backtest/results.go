package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/stats"
)

// PrintResult writes a human readable report: summary statistics followed
// by the closed trade log.
func PrintResult(w io.Writer, r Result) {
	s := r.Stats

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	}
	if !s.Start.IsZero() {
		fmt.Fprintf(w, "Start:         %s\n", s.Start.Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", s.End.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Events:        %d\n", s.Duration+1)
	fmt.Fprintln(w)

	tbl := tablewriter.NewWriter(w)
	tbl.Header("Metric", "Value")
	for _, row := range [][2]string{
		{"Final equity", money(s.FinalEquity)},
		{"Cash", money(r.Account.Cash)},
		{"Net P/L", money(s.NetPnL)},
		{"Commission", money(s.Commission)},
		{"Return", pct(s.ReturnPct)},
		{"Buy & hold", pct(s.BuyHoldPct)},
		{"Return (ann.)", pct(s.ReturnAnnPct)},
		{"Volatility (ann.)", pct(s.VolatilityAnn)},
		{"Sharpe", ratio(s.Sharpe)},
		{"Calmar", ratio(s.Calmar)},
		{"Max drawdown", pct(s.MaxDrawdownPct)},
		{"Exposure", pct(s.ExposurePct)},
		{"Trades", fmt.Sprintf("%d", s.Trades)},
		{"Wins / losses", fmt.Sprintf("%d / %d", s.Wins, s.Losses)},
		{"Win rate", pct(s.WinRatePct)},
		{"Best trade", money(s.BestTrade)},
		{"Worst trade", money(s.WorstTrade)},
		{"Avg win", money(s.AvgWin)},
		{"Avg loss", money(s.AvgLoss)},
		{"Profit factor", ratio(s.ProfitFactor)},
		{"Avg bars held", fmt.Sprintf("%.1f", s.AvgBarsHeld)},
		{"Max margin usage", pct(s.MaxMarginUsage)},
		{"Max concurrent", fmt.Sprintf("%d", s.MaxConcurrent)},
		{"Margin call", fmt.Sprintf("%t", r.Account.MarginCall)},
	} {
		tbl.Append(row[0], row[1])
	}
	tbl.Render()

	if len(r.Trades) == 0 {
		fmt.Fprintln(w, "No closed trades.")
		return
	}

	fmt.Fprintln(w)
	trades := tablewriter.NewWriter(w)
	trades.Header("ID", "Instrument", "Size", "Entry", "Exit", "Bars", "P/L", "Return", "Reason")
	for _, t := range r.Trades {
		exit := "-"
		if t.ExitPrice != nil {
			exit = fmt.Sprintf("%.5f", *t.ExitPrice)
		}
		trades.Append(
			t.ID.String(),
			t.Instrument,
			fmt.Sprintf("%g", t.Size),
			fmt.Sprintf("%.5f", t.EntryPrice),
			exit,
			fmt.Sprintf("%d", t.Bars()),
			money(t.PnL()),
			pct(t.ReturnPct()*100),
			string(t.Reason),
		)
	}
	trades.Render()
}

// report is the JSON form of a Result. An unbounded profit factor is
// written as null.
type report struct {
	RunID        string            `json:"run_id,omitempty"`
	Stats        stats.Stats       `json:"stats"`
	ProfitFactor *float64          `json:"profit_factor"`
	Account      broker.Account    `json:"account"`
	Trades       []broker.Trade    `json:"trades"`
	Equity       []sim.EquityPoint `json:"equity"`
}

// WriteJSON exports the result, including every closed trade and the
// equity curve.
func WriteJSON(w io.Writer, r Result) error {
	rep := report{
		RunID:   r.RunID,
		Stats:   r.Stats,
		Account: r.Account,
		Trades:  r.Trades,
		Equity:  r.Equity,
	}
	if pf := r.Stats.ProfitFactor; !math.IsInf(pf, 0) && !math.IsNaN(pf) {
		rep.ProfitFactor = &pf
	}
	rep.Stats.ProfitFactor = 0

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }
func pct(v float64) string   { return fmt.Sprintf("%.2f%%", v) }

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}
