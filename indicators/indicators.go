// Package indicators holds streaming technical indicators fed one
// market.Tick at a time.
package indicators

import "github.com/rustyeddy/tradecore/market"

type Indicator interface {
	Name() string
	Warmup() int
	Reset()
	Update(t market.Tick)
	Ready() bool
	Value() float64
}

// SMA is the batch simple moving average of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}
