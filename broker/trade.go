package broker

import "time"

// CloseReason records why a trade left the open set.
type CloseReason string

const (
	ReasonStopLoss    CloseReason = "StopLoss"
	ReasonTakeProfit  CloseReason = "TakeProfit"
	ReasonManual      CloseReason = "ManualClose"
	ReasonCloseAll    CloseReason = "CloseAll"
	ReasonLiquidation CloseReason = "Liquidation"
	ReasonEndOfData   CloseReason = "EndOfData"
)

// Trade is an open or closed position. Only the ledger mutates it; once
// ExitPrice and ExitIndex are set it never changes again.
type Trade struct {
	ID         TradeID   `json:"id"`
	Instrument string    `json:"instrument"`
	Size       float64   `json:"size"`
	Multiplier float64   `json:"multiplier"`
	EntryPrice float64   `json:"entry_price"`
	EntryIndex int       `json:"entry_index"`
	EntryTime  time.Time `json:"entry_time"`

	// EntryOrder is the order whose fill opened the trade.
	EntryOrder OrderID `json:"entry_order"`

	ExitPrice *float64  `json:"exit_price,omitempty"`
	ExitIndex *int      `json:"exit_index,omitempty"`
	ExitTime  time.Time `json:"exit_time,omitempty"`

	// Child contingent orders, owned by the trade and dropped on close.
	SLOrder OrderID `json:"sl_order,omitempty"`
	TPOrder OrderID `json:"tp_order,omitempty"`

	// Commission accrued on entry and exit fills.
	Commission float64     `json:"commission"`
	Reason     CloseReason `json:"reason,omitempty"`
}

func (t Trade) IsOpen() bool { return t.ExitPrice == nil }

// Clone returns a copy that shares no memory with t.
func (t Trade) Clone() Trade {
	if t.ExitPrice != nil {
		t.ExitPrice = Ptr(*t.ExitPrice)
	}
	if t.ExitIndex != nil {
		idx := *t.ExitIndex
		t.ExitIndex = &idx
	}
	return t
}

func (t Trade) IsLong() bool { return t.Size > 0 }

func (t Trade) multiplier() float64 {
	if t.Multiplier == 0 {
		return 1
	}
	return t.Multiplier
}

// PnL is the realized profit of a closed trade net of commission, or the
// unrealized profit at the entry price (minus commission) for an open one.
func (t Trade) PnL() float64 {
	if t.ExitPrice == nil {
		return -t.Commission
	}
	return t.Size*(*t.ExitPrice-t.EntryPrice)*t.multiplier() - t.Commission
}

// UnrealizedPnL values the trade at mark, net of commission paid so far.
func (t Trade) UnrealizedPnL(mark float64) float64 {
	return t.Size*(mark-t.EntryPrice)*t.multiplier() - t.Commission
}

// ReturnPct is the price move captured, signed by direction.
func (t Trade) ReturnPct() float64 {
	if t.ExitPrice == nil || t.EntryPrice == 0 {
		return 0
	}
	r := (*t.ExitPrice - t.EntryPrice) / t.EntryPrice
	if t.Size < 0 {
		r = -r
	}
	return r
}

// Bars is the number of events the trade was held for.
func (t Trade) Bars() int {
	if t.ExitIndex == nil {
		return 0
	}
	return *t.ExitIndex - t.EntryIndex
}
