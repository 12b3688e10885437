package sim

import "github.com/rustyeddy/tradecore/market"

// TradeMargin is the initial margin a position of size at price ties up.
func TradeMargin(size, price float64, in market.Instrument) float64 {
	return abs(size) * price * in.Multiplier * in.MarginRate()
}

// markToMarket revalues open trades against the latest ticks, recomputes
// margin usage and updates the margin-call flag.
func (e *Engine) markToMarket() {
	equity := e.cash
	var used, maintenance float64

	for _, t := range e.trades {
		tk, ok := e.last[t.Instrument]
		if !ok {
			panic("sim: open trade " + t.ID.String() + " has no price")
		}
		in := e.instrument(t.Instrument)
		mark := markPrice(t, tk)

		equity += t.UnrealizedPnL(mark)
		m := TradeMargin(t.Size, mark, in)
		used += m
		maintenance += m / in.MaintenanceMarginPct
	}

	e.equity = equity
	e.marginUsed = used

	call := len(e.trades) > 0 && (equity <= 0 || maintenance > equity)
	if call != e.marginCall {
		if call {
			e.log.Warn("margin call", "index", e.index, "equity", equity, "margin_used", used)
		} else {
			e.log.Info("margin call cleared", "index", e.index, "equity", equity)
		}
	}
	e.marginCall = call

	if equity > 0 {
		if u := used / equity; u > e.maxUsage {
			e.maxUsage = u
		}
	}
	if len(e.trades) > e.maxConcurrent {
		e.maxConcurrent = len(e.trades)
	}
}

func (e *Engine) usage() float64 {
	if e.equity <= 0 {
		if e.marginUsed > 0 {
			return 1
		}
		return 0
	}
	return e.marginUsed / e.equity
}
