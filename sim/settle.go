package sim

import (
	"fmt"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
)

// Settle runs one settlement turn for ev, before the strategy sees it:
//
//  1. stop-loss / take-profit children of trades opened before ev, with the
//     stop-loss winning when both trade inside the same bar;
//  2. resting entry orders, in submission order;
//  3. mark-to-market, margin usage and the margin-call flag.
//
// Ticks for unregistered instruments are ignored. The returned error only
// reports journal failures or an out-of-order event; the ledger itself is
// always left fully settled.
func (e *Engine) Settle(ev market.Event) error {
	if ev.Index <= e.index {
		return fmt.Errorf("settle: event %d is not after %d", ev.Index, e.index)
	}

	e.index = ev.Index
	e.now = ev.Time

	for _, tk := range ev.Ticks {
		if _, ok := e.instruments[tk.Instrument]; ok {
			e.last[tk.Instrument] = tk
			e.lastIndex[tk.Instrument] = ev.Index
		}
	}

	closed, err := e.settleContingents(ev)
	e.fillPending(ev)
	e.markToMarket()

	pt := EquityPoint{
		Index:      e.index,
		Time:       e.now,
		Cash:       e.cash,
		Equity:     e.equity,
		MarginUsed: e.marginUsed,
		Usage:      e.usage(),
		MarginCall: e.marginCall,
		OpenTrades: len(e.trades),
	}
	e.curve = append(e.curve, pt)

	jerr := e.journal.RecordEquity(journal.EquitySnapshot{
		Index:      pt.Index,
		Time:       pt.Time,
		Cash:       pt.Cash,
		Equity:     pt.Equity,
		MarginUsed: pt.MarginUsed,
		FreeMargin: pt.Equity - pt.MarginUsed,
		MarginCall: pt.MarginCall,
	})
	if jerr != nil {
		err = joinErr(err, fmt.Errorf("journal equity %d: %w", e.index, jerr))
	}

	e.notify(closed)
	return err
}

func (e *Engine) settleContingents(ev market.Event) ([]broker.Trade, error) {
	var (
		closed []broker.Trade
		err    error
	)

	open := make([]*broker.Trade, len(e.trades))
	copy(open, e.trades)

	for _, t := range open {
		if t.EntryIndex >= ev.Index {
			continue
		}
		tk, ok := ev.Tick(t.Instrument)
		if !ok {
			continue
		}

		price, reason, hit := e.contingentExit(t, tk)
		if !hit {
			continue
		}
		ct, cerr := e.closeTrade(t, e.slip(price, t.Size < 0), ev.Index, reason)
		err = joinErr(err, cerr)
		closed = append(closed, ct)
		e.log.Debug("contingent close", "trade", t.ID, "reason", reason, "price", price, "index", ev.Index)
	}
	return closed, err
}

// contingentExit checks t's children against tk. The stop-loss is tested
// first and wins any same-bar overlap with the take-profit.
func (e *Engine) contingentExit(t *broker.Trade, tk market.Tick) (float64, broker.CloseReason, bool) {
	buy := t.Size < 0

	if t.SLOrder != 0 {
		sl, ok := e.orders[t.SLOrder]
		if !ok || sl.Stop == nil {
			panic(fmt.Sprintf("sim: trade %s lost its stop-loss order %s", t.ID, t.SLOrder))
		}
		if p, hit := stopFill(*sl.Stop, buy, tk); hit {
			return p, broker.ReasonStopLoss, true
		}
	}
	if t.TPOrder != 0 {
		tp, ok := e.orders[t.TPOrder]
		if !ok || tp.Limit == nil {
			panic(fmt.Sprintf("sim: trade %s lost its take-profit order %s", t.ID, t.TPOrder))
		}
		if p, hit := limitFill(*tp.Limit, buy, tk); hit {
			return p, broker.ReasonTakeProfit, true
		}
	}
	return 0, "", false
}

func (e *Engine) fillPending(ev market.Event) {
	if len(e.pending) == 0 {
		return
	}

	rest := e.pending[:0:0]
	for _, o := range e.pending {
		tk, ok := ev.Tick(o.Instrument)
		if !ok {
			rest = append(rest, o)
			continue
		}

		price, hit := e.triggerEntry(o, tk)
		if !hit {
			rest = append(rest, o)
			continue
		}

		if err := e.fillable(o, price); err != nil {
			e.log.Info("pending order cancelled", "order", o.String(), "reason", broker.Reason(err), "err", err)
			continue
		}
		e.open(*o, price)
		e.markToMarket()
	}
	e.pending = rest
}

// triggerEntry decides whether a resting entry trades in tk and at what
// price, slippage included. A triggered stop-limit becomes a plain limit.
func (e *Engine) triggerEntry(o *broker.Order, tk market.Tick) (float64, bool) {
	buy := o.IsLong()

	switch {
	case o.IsMarket():
		return e.marketPrice(tk, buy, firstOrFill(tk, buy)), true

	case o.Stop != nil:
		p, hit := stopFill(*o.Stop, buy, tk)
		if !hit {
			return 0, false
		}
		if o.Limit == nil {
			return e.slip(p, buy), true
		}
		o.Stop = nil
		lo, hi := tk.Range(buy)
		limit := *o.Limit
		if (buy && lo <= limit) || (!buy && hi >= limit) {
			return e.slip(limit, buy), true
		}
		return 0, false

	default:
		p, hit := limitFill(*o.Limit, buy, tk)
		if !hit {
			return 0, false
		}
		return e.slip(p, buy), true
	}
}

func firstOrFill(tk market.Tick, buy bool) float64 {
	if p := firstPrice(tk, buy); p > 0 {
		return p
	}
	return tk.FillPrice(buy)
}

// fillable re-runs the margin and cap checks at fill time.
func (e *Engine) fillable(o *broker.Order, price float64) error {
	in := e.instrument(o.Instrument)
	if need := TradeMargin(o.Size, price, in); e.marginUsed+need > e.equity {
		return fmt.Errorf("fill: %w: need %.2f, used %.2f, equity %.2f",
			broker.ErrInsufficientMargin, need, e.marginUsed, e.equity)
	}
	if n := e.cfg.MaxPositionsPerSide; n > 0 && e.openOnSide(o.Instrument, o.IsLong()) >= n {
		return fmt.Errorf("fill: %w", broker.ErrPositionCapExceeded)
	}
	return nil
}
