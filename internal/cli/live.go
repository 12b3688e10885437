package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradecore/feed"
	"github.com/rustyeddy/tradecore/id"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/live"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/stats"
)

func newLiveCmd(ro *rootOptions) *cobra.Command {
	var (
		url         string
		replayPath  string
		interval    time.Duration
		strategy    string
		instruments string
	)

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run a strategy on a websocket quote stream (or a paced CSV replay)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.cfg
			if url == "" {
				url = cfg.Live.URL
			}
			if url == "" && replayPath == "" {
				return fmt.Errorf("one of --url (or live.url) or --replay is required")
			}

			j, rec, err := openJournal(cfg.Journal)
			if err != nil {
				return err
			}
			defer j.Close()

			engine, err := newEngine(cfg, j)
			if err != nil {
				return err
			}
			strat, name, err := newStrategy(cfg, strategy)
			if err != nil {
				return err
			}

			d, err := live.NewDriver(engine, strat, live.Options{
				QueueSize:             cfg.Live.QueueSize,
				LiquidateOnMarginCall: cfg.Live.LiquidateOnMarginCall,
				CloseOnStop:           cfg.Live.CloseOnStop,
			})
			if err != nil {
				return err
			}
			d.SetLogger(slog.Default().With("component", "live"))

			ctx := cmd.Context()
			run := journal.Run{ID: id.New(), Created: time.Now().UTC(), Mode: "live", Strategy: name, Dataset: url + replayPath, StartCash: cfg.Account.Cash}
			if rec != nil {
				run.Config, _ = json.Marshal(cfg)
				if err := rec.StartRun(ctx, run); err != nil {
					return err
				}
			}

			// The producer runs beside the driver; when it ends the driver drains
			// what is queued and returns.
			feedErr := make(chan error, 1)
			go func() {
				defer d.Drain()
				if replayPath != "" {
					data, err := feed.LoadCSVFile(replayPath, feed.CSVOptions{})
					if err != nil {
						feedErr <- err
						return
					}
					feedErr <- feed.Replay(ctx, data, d, interval)
					return
				}
				qs := &feed.QuoteStream{
					URL:         url,
					Instruments: streamInstruments(instruments, cfg.Instruments),
					ReadTimeout: time.Minute,
					Log:         slog.Default().With("component", "feed"),
				}
				feedErr <- qs.Run(ctx, d)
			}()

			runErr := d.Run(ctx)
			ferr := <-feedErr
			if errors.Is(runErr, context.Canceled) {
				runErr = nil
			}
			if errors.Is(ferr, context.Canceled) || errors.Is(ferr, live.ErrQueueClosed) {
				ferr = nil
			}

			snap := d.Snapshot()
			st := stats.Compute(stats.Input{
				StartCash:           engine.InitialCash(),
				Trades:              engine.ClosedTrades(),
				Curve:               engine.EquityCurve(),
				MaxMarginUsage:      engine.MaxMarginUsage(),
				MaxConcurrentTrades: engine.MaxConcurrentTrades(),
			})
			printSession(cmd.OutOrStdout(), snap, st)

			if rec != nil {
				run.EndEquity = snap.Account.Equity
				run.Trades = st.Trades
				run.ReturnPct = st.ReturnPct
				run.MaxDDPct = st.MaxDrawdownPct
				run.WinRatePct = st.WinRatePct
				run.Finished = time.Now().UTC()
				// the command context may already be cancelled
				if err := rec.FinishRun(context.Background(), run); err != nil {
					return err
				}
			}
			return errors.Join(runErr, ferr)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Websocket quote server (overrides live.url)")
	cmd.Flags().StringVar(&replayPath, "replay", "", "Replay a CSV file through the live driver instead of a stream")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between replayed events")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name (overrides config)")
	cmd.Flags().StringVar(&instruments, "instruments", "", "Comma separated instruments to subscribe (default: configured instruments)")
	return cmd
}

func streamInstruments(flag string, configured []market.Instrument) []string {
	if flag != "" {
		var out []string
		for _, s := range strings.Split(flag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	out := make([]string, 0, len(configured))
	for _, in := range configured {
		out = append(out, in.Name)
	}
	return out
}

func printSession(w io.Writer, s live.Snapshot, st stats.Stats) {
	tbl := tablewriter.NewWriter(w)
	tbl.Header("Events", "Cash", "Equity", "Margin used", "Open", "Closed", "Win rate", "Liquidated", "Margin call")
	tbl.Append(
		fmt.Sprintf("%d", s.Processed),
		fmt.Sprintf("%.2f", s.Account.Cash),
		fmt.Sprintf("%.2f", s.Account.Equity),
		fmt.Sprintf("%.2f", s.Account.MarginUsed),
		fmt.Sprintf("%d", s.Account.OpenTrades),
		fmt.Sprintf("%d", s.Account.ClosedCount),
		fmt.Sprintf("%.2f%%", st.WinRatePct),
		fmt.Sprintf("%d", s.Liquidated),
		fmt.Sprintf("%t", s.Account.MarginCall),
	)
	tbl.Render()
}
