package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradecore/market"
)

// SimpleMA is a streaming simple moving average of reference prices.
type SimpleMA struct {
	period int
	window []float64
	sum    float64
}

func NewMA(period int) *SimpleMA {
	return &SimpleMA{period: period, window: make([]float64, 0, period)}
}

func (m *SimpleMA) Name() string { return fmt.Sprintf("MA(%d)", m.period) }
func (m *SimpleMA) Warmup() int  { return m.period }

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
	m.sum = 0
}

func (m *SimpleMA) Update(t market.Tick) { m.Add(t.Price()) }

func (m *SimpleMA) Add(v float64) {
	m.window = append(m.window, v)
	m.sum += v
	if len(m.window) > m.period {
		m.sum -= m.window[0]
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool { return len(m.window) >= m.period }

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(len(m.window))
}

// ExponentialMA is seeded with the SMA of its first period values.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *ExponentialMA) Warmup() int  { return e.period }

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(t market.Tick) { e.Add(t.Price()) }

func (e *ExponentialMA) Add(v float64) {
	if e.count < e.period {
		e.warmupSum += v
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (v-e.ema)*e.multiplier + e.ema
}

func (e *ExponentialMA) Ready() bool { return e.count >= e.period }

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}

// ZScore tracks how many standard deviations the latest value sits from
// the rolling mean of the last period values.
type ZScore struct {
	period int
	window []float64
}

func NewZScore(period int) *ZScore {
	return &ZScore{period: period, window: make([]float64, 0, period)}
}

func (z *ZScore) Name() string { return fmt.Sprintf("Z(%d)", z.period) }
func (z *ZScore) Warmup() int  { return z.period }
func (z *ZScore) Reset()       { z.window = z.window[:0] }

func (z *ZScore) Update(t market.Tick) { z.Add(t.Price()) }

func (z *ZScore) Add(v float64) {
	z.window = append(z.window, v)
	if len(z.window) > z.period {
		z.window = z.window[1:]
	}
}

func (z *ZScore) Ready() bool { return len(z.window) >= z.period && z.period > 1 }

// Value is 0 until ready and when the window has no variance.
func (z *ZScore) Value() float64 {
	if !z.Ready() {
		return 0
	}
	mean := 0.0
	for _, v := range z.window {
		mean += v
	}
	mean /= float64(len(z.window))
	variance := 0.0
	for _, v := range z.window {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(len(z.window)))
	if sd == 0 {
		return 0
	}
	return (z.window[len(z.window)-1] - mean) / sd
}
