package sim

import (
	"fmt"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
)

// Submit admits an order. Market orders fill immediately at the latest
// price (or queue for the next open with TradeOnOpen); limit and stop
// orders rest until a later event triggers them. Rejections leave the
// ledger untouched.
func (e *Engine) Submit(o broker.Order) (broker.OrderID, error) {
	if err := e.admit(&o); err != nil {
		e.log.Debug("order rejected", "instrument", o.Instrument, "size", o.Size, "reason", broker.Reason(err), "err", err)
		return 0, err
	}

	e.nextOrder++
	o.ID = e.nextOrder

	if o.IsMarket() && !e.cfg.TradeOnOpen {
		tk := e.last[o.Instrument]
		price := e.marketPrice(tk, o.IsLong(), tk.FillPrice(o.IsLong()))
		e.open(o, price)
		e.markToMarket()
		return o.ID, nil
	}

	e.pending = append(e.pending, &o)
	e.log.Debug("order queued", "order", o.String())
	return o.ID, nil
}

func (e *Engine) admit(o *broker.Order) error {
	if o.Size == 0 {
		return fmt.Errorf("submit: %w", broker.ErrZeroSize)
	}
	if o.Instrument == "" {
		o.Instrument = e.primary
	}
	in, ok := e.instruments.Lookup(o.Instrument)
	if !ok {
		return fmt.Errorf("submit: %w: %q", broker.ErrUnknownInstrument, o.Instrument)
	}
	tk, ok := e.last[o.Instrument]
	if !ok {
		return fmt.Errorf("submit: %w: %q", broker.ErrNoPrice, o.Instrument)
	}

	// Contingent children are created by the ledger only.
	o.ParentTrade = 0

	if e.cfg.ScaleWithEquity {
		o.Size *= e.equity / e.cfg.Cash
		if o.Size == 0 {
			return fmt.Errorf("submit: %w: scaled to zero", broker.ErrZeroSize)
		}
	}

	buy := o.IsLong()
	entry := entryEstimate(*o, tk)

	need := TradeMargin(o.Size, entry, in)
	if e.marginUsed+need > e.equity {
		return fmt.Errorf("submit: %w: need %.2f, used %.2f, equity %.2f",
			broker.ErrInsufficientMargin, need, e.marginUsed, e.equity)
	}

	if !validTrigger(o.Limit, o.Stop, buy, tk.FillPrice(buy)) {
		return fmt.Errorf("submit: %w: %s", broker.ErrInvalidTrigger, o.String())
	}
	if !validBrackets(o.StopLoss, o.TakeProfit, buy, entry) {
		return fmt.Errorf("submit: %w: brackets on wrong side of %.5f", broker.ErrInvalidTrigger, entry)
	}

	if n := e.cfg.MaxPositionsPerSide; n > 0 && e.openOnSide(o.Instrument, buy) >= n {
		return fmt.Errorf("submit: %w: %d %s trades open on %s",
			broker.ErrPositionCapExceeded, n, side(buy), o.Instrument)
	}
	return nil
}

// entryEstimate is the price an order is expected to fill at: its trigger
// for resting orders, the current market price otherwise.
func entryEstimate(o broker.Order, tk market.Tick) float64 {
	switch {
	case o.Limit != nil:
		return *o.Limit
	case o.Stop != nil:
		return *o.Stop
	default:
		return tk.FillPrice(o.IsLong())
	}
}

func (e *Engine) openOnSide(instrument string, long bool) int {
	n := 0
	for _, t := range e.trades {
		if t.Instrument == instrument && t.IsLong() == long {
			n++
		}
	}
	return n
}

func side(long bool) string {
	if long {
		return "long"
	}
	return "short"
}

// open turns a filled order into a trade and spawns its contingent children.
func (e *Engine) open(o broker.Order, price float64) *broker.Trade {
	in := e.instrument(o.Instrument)

	e.nextTrade++
	t := &broker.Trade{
		ID:         e.nextTrade,
		EntryOrder: o.ID,
		Instrument: o.Instrument,
		Size:       o.Size,
		Multiplier: in.Multiplier,
		EntryPrice: price,
		EntryIndex: e.index,
		EntryTime:  e.now,
		Commission: e.commission(o.Size, price, in),
	}

	if o.StopLoss != nil {
		t.SLOrder = e.child(t, broker.Order{Stop: broker.Ptr(*o.StopLoss)})
	}
	if o.TakeProfit != nil {
		t.TPOrder = e.child(t, broker.Order{Limit: broker.Ptr(*o.TakeProfit)})
	}

	e.trades = append(e.trades, t)
	e.log.Debug("fill", "trade", t.ID, "order", o.ID, "instrument", t.Instrument,
		"size", t.Size, "price", price, "index", e.index)
	return t
}

func (e *Engine) child(t *broker.Trade, o broker.Order) broker.OrderID {
	e.nextOrder++
	o.ID = e.nextOrder
	o.Instrument = t.Instrument
	o.Size = -t.Size
	o.ParentTrade = t.ID
	e.orders[o.ID] = &o
	return o.ID
}
