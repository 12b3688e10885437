package market

// Tick is one instrument's market update inside an Event. Bar data sets
// Open/High/Low/Close, quote data sets Bid/Ask. Unset fields are zero.
type Tick struct {
	Instrument string `json:"instrument"`

	Open  float64 `json:"open,omitempty"`
	High  float64 `json:"high,omitempty"`
	Low   float64 `json:"low,omitempty"`
	Close float64 `json:"close,omitempty"`

	Bid float64 `json:"bid,omitempty"`
	Ask float64 `json:"ask,omitempty"`
}

// IsBar reports whether the tick carries a high/low range.
func (t Tick) IsBar() bool {
	return t.High > 0 && t.Low > 0
}

// IsQuote reports whether the tick carries a two-sided quote.
func (t Tick) IsQuote() bool {
	return t.Bid > 0 && t.Ask > 0
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Price is the reference price: the close for bars, the mid for quotes.
func (t Tick) Price() float64 {
	switch {
	case t.Close > 0:
		return t.Close
	case t.IsQuote():
		return t.Mid()
	case t.Bid > 0:
		return t.Bid
	default:
		return t.Ask
	}
}

// OpenPrice is the first traded price of a bar, falling back to the
// reference price for ticks without an open.
func (t Tick) OpenPrice() float64 {
	if t.Open > 0 {
		return t.Open
	}
	return t.Price()
}

// Range returns the low/high a position on the given side could have traded
// at during this tick. Bars use their full range; quotes use the side the
// trader hits (buyers pay the ask, sellers receive the bid).
func (t Tick) Range(buy bool) (lo, hi float64) {
	switch {
	case t.IsBar():
		return t.Low, t.High
	case t.IsQuote():
		if buy {
			return t.Ask, t.Ask
		}
		return t.Bid, t.Bid
	default:
		p := t.Price()
		return p, p
	}
}

// FillPrice is the price a market order of the given side trades at.
func (t Tick) FillPrice(buy bool) float64 {
	if t.IsQuote() && t.Close == 0 {
		if buy {
			return t.Ask
		}
		return t.Bid
	}
	return t.Price()
}
