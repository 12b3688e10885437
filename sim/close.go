package sim

import (
	"fmt"
	"slices"

	"github.com/rustyeddy/tradecore/broker"
)

// closeTrade moves t from the open set to the closed set at price. The
// trade's children are dropped and its P&L is realized into cash. Only
// journal failures are returned; the ledger change always happens.
func (e *Engine) closeTrade(t *broker.Trade, price float64, index int, reason broker.CloseReason) (broker.Trade, error) {
	i := e.openIndex(t.ID)
	if i < 0 {
		panic(fmt.Sprintf("sim: close of trade %s that is not open", t.ID))
	}
	if t.ExitPrice != nil {
		panic(fmt.Sprintf("sim: trade %s is open but already has an exit", t.ID))
	}

	in := e.instrument(t.Instrument)
	t.Commission += e.commission(t.Size, price, in)

	exit, idx := price, index
	t.ExitPrice = &exit
	t.ExitIndex = &idx
	t.ExitTime = e.now
	t.Reason = reason

	e.cash += t.PnL()

	delete(e.orders, t.SLOrder)
	delete(e.orders, t.TPOrder)

	e.trades = slices.Delete(e.trades, i, i+1)
	e.closed = append(e.closed, *t)

	return t.Clone(), e.recordTrade(*t)
}

// CloseTrade closes one open trade at price, recording index as its exit.
func (e *Engine) CloseTrade(id broker.TradeID, price float64, index int) (broker.Trade, error) {
	i := e.openIndex(id)
	if i < 0 {
		return broker.Trade{}, fmt.Errorf("close trade: %w: %s", broker.ErrUnknownTrade, id)
	}
	if price <= 0 {
		return broker.Trade{}, fmt.Errorf("close trade %s: price must be positive, got %g", id, price)
	}
	if t := e.trades[i]; index < t.EntryIndex {
		return broker.Trade{}, fmt.Errorf("close trade %s: %w: %d < %d", id, broker.ErrExitBeforeEntry, index, t.EntryIndex)
	}

	t, err := e.closeTrade(e.trades[i], price, index, broker.ReasonManual)
	e.markToMarket()
	return t, err
}

// CloseAllTrades closes every open trade at price, oldest first. On an
// empty ledger it does nothing.
func (e *Engine) CloseAllTrades(price float64, index int) ([]broker.Trade, error) {
	if len(e.trades) == 0 {
		return nil, nil
	}
	if price <= 0 {
		return nil, fmt.Errorf("close all: price must be positive, got %g", price)
	}
	return e.closeAll(index, broker.ReasonCloseAll, func(*broker.Trade) float64 { return price })
}

// CloseAllAtMarket closes every open trade at its instrument's current
// exit price, oldest first.
func (e *Engine) CloseAllAtMarket(index int, reason broker.CloseReason) ([]broker.Trade, error) {
	if reason == "" {
		reason = broker.ReasonCloseAll
	}
	return e.closeAll(index, reason, func(t *broker.Trade) float64 {
		return e.exitPrice(t, e.last[t.Instrument])
	})
}

func (e *Engine) closeAll(index int, reason broker.CloseReason, priceOf func(*broker.Trade) float64) ([]broker.Trade, error) {
	for _, t := range e.trades {
		if index < t.EntryIndex {
			return nil, fmt.Errorf("close all: trade %s: %w: %d < %d", t.ID, broker.ErrExitBeforeEntry, index, t.EntryIndex)
		}
	}
	open := make([]*broker.Trade, len(e.trades))
	copy(open, e.trades)

	var (
		out []broker.Trade
		err error
	)
	for _, t := range open {
		ct, cerr := e.closeTrade(t, priceOf(t), index, reason)
		err = joinErr(err, cerr)
		out = append(out, ct)
	}
	if len(e.trades) != 0 {
		panic(fmt.Sprintf("sim: %d trades still open after close all", len(e.trades)))
	}
	e.markToMarket()
	return out, err
}

// Liquidate closes one open trade at market on the engine's own account
// and notifies the trade-closed listener.
func (e *Engine) Liquidate(id broker.TradeID) (broker.Trade, error) {
	i := e.openIndex(id)
	if i < 0 {
		return broker.Trade{}, fmt.Errorf("liquidate: %w: %s", broker.ErrUnknownTrade, id)
	}
	t := e.trades[i]
	ct, err := e.closeTrade(t, e.exitPrice(t, e.last[t.Instrument]), e.index, broker.ReasonLiquidation)
	e.markToMarket()
	e.log.Warn("liquidated", "trade", ct.ID, "instrument", ct.Instrument, "pnl", ct.PnL())
	e.notify([]broker.Trade{ct})
	return ct, err
}

// WorstTrade is the open trade with the lowest unrealized P&L.
func (e *Engine) WorstTrade() (broker.Trade, bool) {
	var (
		worst *broker.Trade
		low   float64
	)
	for _, t := range e.trades {
		pnl := t.UnrealizedPnL(markPrice(t, e.last[t.Instrument]))
		if worst == nil || pnl < low {
			worst, low = t, pnl
		}
	}
	if worst == nil {
		return broker.Trade{}, false
	}
	return worst.Clone(), true
}
