// Package backtest replays a preloaded market.Series through a sim.Engine
// and a strategy, one settlement turn per event.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/stats"
	"github.com/rustyeddy/tradecore/strategies"
)

// Options controls how the runner behaves.
type Options struct {
	// If true, close all open trades at market after the last event.
	// Close reason will be CloseReason (or EndOfData if empty).
	CloseEnd    bool
	CloseReason broker.CloseReason

	RiskFree float64 // annual, fraction; for Sharpe
}

// Runner drives an engine forward over Data using Strategy.
type Runner struct {
	Engine   *sim.Engine
	Data     market.Series
	Strategy strategies.Strategy
	Options  Options

	// Recorder, when set, brackets the run with StartRun/FinishRun.
	// RunInfo supplies the descriptive fields.
	Recorder journal.RunRecorder
	RunInfo  journal.Run

	Log *slog.Logger
}

// Result is what a finished backtest hands back.
type Result struct {
	RunID   string
	Stats   stats.Stats
	Account broker.Account
	Trades  []broker.Trade
	Equity  []sim.EquityPoint
}

// Run executes the backtest loop:
//  1. engine.Settle(event)
//  2. strategy.Next(engine, event.Index)
//
// The context is checked between events, never inside a turn.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	if len(r.Data) == 0 {
		return Result{}, fmt.Errorf("backtest: Data is empty")
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	info := r.RunInfo
	if r.Recorder != nil {
		if info.Created.IsZero() {
			info.Created = time.Now().UTC()
		}
		if info.Mode == "" {
			info.Mode = "backtest"
		}
		info.StartCash = r.Engine.InitialCash()
		if err := r.Recorder.StartRun(ctx, info); err != nil {
			return Result{}, fmt.Errorf("backtest: start run: %w", err)
		}
	}

	if l, ok := r.Strategy.(strategies.TradeClosedListener); ok {
		r.Engine.SetTradeClosedListener(l)
	}
	if err := r.Strategy.Init(r.Engine, r.Data); err != nil {
		return Result{}, fmt.Errorf("backtest: init strategy: %w", err)
	}

	log.Info("backtest started", "run", info.ID, "events", len(r.Data), "primary", r.Engine.Primary())

	for _, ev := range r.Data {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := r.Engine.Settle(ev); err != nil {
			return Result{}, fmt.Errorf("backtest: event %d: %w", ev.Index, err)
		}
		if err := r.Strategy.Next(r.Engine, ev.Index); err != nil {
			return Result{}, fmt.Errorf("backtest: strategy at %d: %w", ev.Index, err)
		}
	}

	if r.Options.CloseEnd {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = broker.ReasonEndOfData
		}
		if _, err := r.Engine.CloseAllAtMarket(r.Engine.Index(), reason); err != nil {
			return Result{}, fmt.Errorf("backtest: close at end: %w", err)
		}
	}

	res := Result{
		RunID:   info.ID,
		Account: r.Engine.Account(),
		Trades:  r.Engine.ClosedTrades(),
		Equity:  r.Engine.EquityCurve(),
	}
	res.Stats = stats.Compute(stats.Input{
		StartCash:           r.Engine.InitialCash(),
		Trades:              res.Trades,
		Curve:               res.Equity,
		Benchmark:           r.Data.Closes(r.Engine.Primary()),
		RiskFree:            r.Options.RiskFree,
		MaxMarginUsage:      r.Engine.MaxMarginUsage(),
		MaxConcurrentTrades: r.Engine.MaxConcurrentTrades(),
	})

	log.Info("backtest finished",
		"run", info.ID,
		"trades", res.Stats.Trades,
		"equity", res.Account.Equity,
		"return_pct", res.Stats.ReturnPct,
	)

	if r.Recorder != nil {
		info.EndEquity = res.Account.Equity
		info.Trades = res.Stats.Trades
		info.ReturnPct = res.Stats.ReturnPct
		info.MaxDDPct = res.Stats.MaxDrawdownPct
		info.WinRatePct = res.Stats.WinRatePct
		info.Finished = time.Now().UTC()
		if err := r.Recorder.FinishRun(ctx, info); err != nil {
			return res, fmt.Errorf("backtest: finish run: %w", err)
		}
	}
	return res, nil
}
