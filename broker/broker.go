package broker

import (
	"github.com/rustyeddy/tradecore/market"
)

// Broker is the ledger surface handed to strategies and drivers. Reads are
// unrestricted; writes go through Submit, CloseTrade and CloseAllTrades only.
type Broker interface {
	Submit(o Order) (OrderID, error)
	CloseTrade(id TradeID, price float64, index int) (Trade, error)
	CloseAllTrades(price float64, index int) ([]Trade, error)

	Cash() float64
	Equity() float64
	Trades() []Trade
	ClosedTrades() []Trade
	PendingOrders() []Order
	Order(id OrderID) (Order, bool)
	IsMarginCall() bool

	// LastTick is the most recent update seen for instrument; Updated
	// reports whether it arrived with the current event.
	LastTick(instrument string) (market.Tick, bool)
	Updated(instrument string) bool
	Instrument(name string) (market.Instrument, bool)
	Index() int
	Account() Account
}

// Account is a point-in-time copy of the ledger totals.
type Account struct {
	Cash        float64 `json:"cash"`
	Equity      float64 `json:"equity"`
	MarginUsed  float64 `json:"margin_used"`
	FreeMargin  float64 `json:"free_margin"`
	MarginCall  bool    `json:"margin_call"`
	OpenTrades  int     `json:"open_trades"`
	ClosedCount int     `json:"closed_trades"`
}
