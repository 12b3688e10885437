package broker

import "fmt"

// OrderID and TradeID are sequential per ledger, starting at 1. Zero means
// "none" so they double as optional references.
type OrderID uint64
type TradeID uint64

func (id OrderID) String() string { return fmt.Sprintf("O%d", uint64(id)) }
func (id TradeID) String() string { return fmt.Sprintf("T%d", uint64(id)) }

// Order is an intent to change exposure. Size is signed: long > 0, short < 0.
//
// With neither Limit nor Stop set it is a market order. With both set it is a
// stop-limit: once Stop trades, it rests as a limit order at Limit.
type Order struct {
	ID         OrderID `json:"id"`
	Instrument string  `json:"instrument"`
	Size       float64 `json:"size"`

	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Limit      *float64 `json:"limit,omitempty"`
	Stop       *float64 `json:"stop,omitempty"`

	// ParentTrade is set on stop-loss / take-profit children only.
	ParentTrade TradeID `json:"parent_trade,omitempty"`
}

func (o Order) IsLong() bool { return o.Size > 0 }

func (o Order) IsMarket() bool { return o.Limit == nil && o.Stop == nil }

func (o Order) IsContingent() bool { return o.ParentTrade != 0 }

func (o Order) String() string {
	kind := "market"
	switch {
	case o.IsContingent() && o.Stop != nil:
		kind = "stop-loss"
	case o.IsContingent():
		kind = "take-profit"
	case o.Limit != nil && o.Stop != nil:
		kind = "stop-limit"
	case o.Limit != nil:
		kind = "limit"
	case o.Stop != nil:
		kind = "stop"
	}
	return fmt.Sprintf("%s %s %s %g", o.ID, kind, o.Instrument, o.Size)
}

// Clone returns a copy that shares no memory with o.
func (o Order) Clone() Order {
	for _, f := range []**float64{&o.StopLoss, &o.TakeProfit, &o.Limit, &o.Stop} {
		if *f != nil {
			*f = Ptr(**f)
		}
	}
	return o
}

// Ptr returns a pointer to v, for the optional price fields.
func Ptr(v float64) *float64 { return &v }
