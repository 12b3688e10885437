package sim

import (
	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
)

// slip moves price against the trader by SlippagePct.
func (e *Engine) slip(price float64, buy bool) float64 {
	if e.cfg.SlippagePct == 0 {
		return price
	}
	if buy {
		return price * (1 + e.cfg.SlippagePct)
	}
	return price * (1 - e.cfg.SlippagePct)
}

// marketPrice is what a market order on the given side pays now. Quotes
// already carry their spread; bars and plain prices pay half of Spread.
func (e *Engine) marketPrice(tk market.Tick, buy bool, base float64) float64 {
	if !tk.IsQuote() && e.cfg.Spread > 0 {
		if buy {
			base += e.cfg.Spread / 2
		} else {
			base -= e.cfg.Spread / 2
		}
	}
	return e.slip(base, buy)
}

func (e *Engine) commission(size, price float64, in market.Instrument) float64 {
	return abs(size)*price*in.Multiplier*e.cfg.CommissionPct + e.cfg.CommissionFlat
}

// markPrice values an open trade: longs at the bid, shorts at the ask for
// quotes, the reference price otherwise.
func markPrice(t *broker.Trade, tk market.Tick) float64 {
	if tk.IsQuote() && tk.Close == 0 {
		if t.Size > 0 {
			return tk.Bid
		}
		return tk.Ask
	}
	return tk.Price()
}

// exitPrice is the market price that flattens t now.
func (e *Engine) exitPrice(t *broker.Trade, tk market.Tick) float64 {
	buy := t.Size < 0
	return e.marketPrice(tk, buy, tk.FillPrice(buy))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
