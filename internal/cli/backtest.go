package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradecore/backtest"
	"github.com/rustyeddy/tradecore/feed"
	"github.com/rustyeddy/tradecore/id"
	"github.com/rustyeddy/tradecore/journal"
)

func newBacktestCmd(ro *rootOptions) *cobra.Command {
	var (
		dataPath string
		fromStr  string
		toStr    string
		strategy string
		closeEnd bool
		jsonPath string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a CSV of bars or quotes through a strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				return fmt.Errorf("--data is required")
			}
			from, err := parseFlagTime("from", fromStr)
			if err != nil {
				return err
			}
			to, err := parseFlagTime("to", toStr)
			if err != nil {
				return err
			}
			if !from.IsZero() && !to.IsZero() && !from.Before(to) {
				return fmt.Errorf("--from must be before --to")
			}

			cfg := ro.cfg
			data, err := feed.LoadCSVFile(dataPath, feed.CSVOptions{From: from, To: to})
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("%s: no events in range", dataPath)
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

			raw, _ := json.Marshal(cfg)
			runner := &backtest.Runner{
				Engine:   engine,
				Data:     data,
				Strategy: strat,
				Options:  backtest.Options{CloseEnd: closeEnd},
				Recorder: rec,
				RunInfo: journal.Run{
					ID:       id.New(),
					Mode:     "backtest",
					Strategy: name,
					Dataset:  filepath.Base(dataPath),
					Config:   raw,
				},
			}

			res, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			backtest.PrintResult(cmd.OutOrStdout(), res)

			if jsonPath != "" {
				f, err := os.Create(jsonPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := backtest.WriteJSON(f, res); err != nil {
					return fmt.Errorf("write %s: %w", jsonPath, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV of bars (time,instrument,open,high,low,close) or quotes (time,instrument,bid,ask)")
	cmd.Flags().StringVar(&fromStr, "from", "", "Start time (RFC3339, inclusive)")
	cmd.Flags().StringVar(&toStr, "to", "", "End time (RFC3339, exclusive)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name (overrides config)")
	cmd.Flags().BoolVar(&closeEnd, "close-end", true, "Close open trades at the last event")
	cmd.Flags().StringVar(&jsonPath, "json", "", "Also write the result (stats, trades, equity) as JSON")
	return cmd
}

func parseFlagTime(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --%s: %w", name, err)
	}
	return t, nil
}
