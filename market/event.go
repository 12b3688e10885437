package market

import "time"

// Event is one step of a data feed: every instrument updated at Index.
// Index is the event sequence number, not wall time.
type Event struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
	Ticks []Tick    `json:"ticks"`
}

// Tick returns the update for instrument, if the event carries one.
func (e Event) Tick(instrument string) (Tick, bool) {
	for _, t := range e.Ticks {
		if t.Instrument == instrument {
			return t, true
		}
	}
	return Tick{}, false
}

// Series is a finite, preloaded sequence of events as replayed by a backtest.
type Series []Event

// Closes returns the reference prices of instrument across the series.
// Events without an update for the instrument repeat the previous price.
func (s Series) Closes(instrument string) []float64 {
	out := make([]float64, len(s))
	last := 0.0
	for i, ev := range s {
		if t, ok := ev.Tick(instrument); ok {
			last = t.Price()
		}
		out[i] = last
	}
	return out
}

// Instruments lists the instruments seen in the series in first-seen order.
func (s Series) Instruments() []string {
	seen := map[string]bool{}
	var out []string
	for _, ev := range s {
		for _, t := range ev.Ticks {
			if !seen[t.Instrument] {
				seen[t.Instrument] = true
				out = append(out, t.Instrument)
			}
		}
	}
	return out
}
