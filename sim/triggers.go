package sim

import "github.com/rustyeddy/tradecore/market"

// firstPrice is the first price the given side could trade at in tk: the
// bar open, the quote side, or the plain price. Zero when unknown.
func firstPrice(tk market.Tick, buy bool) float64 {
	switch {
	case tk.IsBar():
		return tk.Open
	case tk.IsQuote():
		return tk.FillPrice(buy)
	default:
		return tk.Price()
	}
}

// stopFill reports whether a stop order at stop triggers in tk and the
// price it fills at. A gap through the stop fills at the first price.
func stopFill(stop float64, buy bool, tk market.Tick) (float64, bool) {
	lo, hi := tk.Range(buy)
	if (buy && hi < stop) || (!buy && lo > stop) {
		return 0, false
	}
	first := firstPrice(tk, buy)
	if first > 0 && ((buy && first > stop) || (!buy && first < stop)) {
		return first, true
	}
	return stop, true
}

// limitFill reports whether a limit order at limit trades in tk and the
// price it fills at. A gap through the limit fills at the better first price.
func limitFill(limit float64, buy bool, tk market.Tick) (float64, bool) {
	lo, hi := tk.Range(buy)
	if (buy && lo > limit) || (!buy && hi < limit) {
		return 0, false
	}
	first := firstPrice(tk, buy)
	if first > 0 && ((buy && first < limit) || (!buy && first > limit)) {
		return first, true
	}
	return limit, true
}

// validTrigger checks a resting entry's trigger against the current price:
// buy limits at or below, buy stops at or above, and the mirror for sells.
// A stop-limit is checked on its stop.
func validTrigger(limit, stop *float64, buy bool, price float64) bool {
	if stop != nil {
		if *stop <= 0 {
			return false
		}
		if buy {
			return *stop >= price
		}
		return *stop <= price
	}
	if limit != nil {
		if *limit <= 0 {
			return false
		}
		if buy {
			return *limit <= price
		}
		return *limit >= price
	}
	return true
}

// validBrackets checks stop-loss / take-profit sit on the right side of entry.
func validBrackets(sl, tp *float64, buy bool, entry float64) bool {
	if sl != nil {
		if *sl <= 0 || (buy && *sl >= entry) || (!buy && *sl <= entry) {
			return false
		}
	}
	if tp != nil {
		if *tp <= 0 || (buy && *tp <= entry) || (!buy && *tp >= entry) {
			return false
		}
	}
	return true
}
