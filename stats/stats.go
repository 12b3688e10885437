// Package stats summarizes a finished run: returns, drawdown, trade
// distribution and risk-adjusted ratios.
package stats

import (
	"math"
	"time"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/sim"
)

type Input struct {
	StartCash float64
	Trades    []broker.Trade // closed
	Curve     []sim.EquityPoint

	// Benchmark is the primary instrument's reference price per curve
	// point, for buy & hold comparisons. Optional.
	Benchmark []float64

	RiskFree            float64 // annual, fraction
	MaxMarginUsage      float64
	MaxConcurrentTrades int
}

type Stats struct {
	Start    time.Time
	End      time.Time
	Duration int // events

	FinalEquity    float64
	NetPnL         float64
	Commission     float64
	ReturnPct      float64
	BuyHoldPct     float64
	ReturnAnnPct   float64
	VolatilityAnn  float64 // percent
	Sharpe         float64
	Calmar         float64
	MaxDrawdownPct float64 // positive number
	ExposurePct    float64
	Trades         int
	Wins           int
	Losses         int
	WinRatePct     float64
	BestTrade      float64
	WorstTrade     float64
	AvgWin         float64
	AvgLoss        float64
	ProfitFactor   float64 // +Inf with wins and no losses
	AvgBarsHeld    float64
	MaxMarginUsage float64 // percent of equity
	MaxConcurrent  int
}

const secondsPerYear = 365 * 24 * 3600.0

func Compute(in Input) Stats {
	s := Stats{
		FinalEquity:    in.StartCash,
		MaxMarginUsage: in.MaxMarginUsage * 100,
		MaxConcurrent:  in.MaxConcurrentTrades,
	}

	equity := make([]float64, 0, len(in.Curve)+1)
	equity = append(equity, in.StartCash)
	for _, p := range in.Curve {
		equity = append(equity, p.Equity)
	}

	if n := len(in.Curve); n > 0 {
		s.Start = in.Curve[0].Time
		s.End = in.Curve[n-1].Time
		s.Duration = in.Curve[n-1].Index - in.Curve[0].Index
		s.FinalEquity = in.Curve[n-1].Equity
		s.ExposurePct = exposure(in.Curve) * 100
	}
	if in.StartCash > 0 {
		s.ReturnPct = (s.FinalEquity - in.StartCash) / in.StartCash * 100
	}
	if b := in.Benchmark; len(b) > 1 && b[0] > 0 {
		s.BuyHoldPct = (b[len(b)-1] - b[0]) / b[0] * 100
	}
	s.MaxDrawdownPct = -MaxDrawdown(equity) * 100

	tradeStats(&s, in.Trades)

	if ppy := periodsPerYear(in.Curve); ppy > 0 {
		years := float64(len(in.Curve)-1) / ppy
		if years > 0 && s.FinalEquity > 0 && in.StartCash > 0 {
			s.ReturnAnnPct = (math.Pow(s.FinalEquity/in.StartCash, 1/years) - 1) * 100
		}
		s.VolatilityAnn = stddev(periodReturns(equity)) * math.Sqrt(ppy) * 100
		if s.VolatilityAnn != 0 {
			s.Sharpe = (s.ReturnAnnPct - in.RiskFree*100) / s.VolatilityAnn
		}
		if s.MaxDrawdownPct != 0 {
			s.Calmar = s.ReturnAnnPct / s.MaxDrawdownPct
		}
	}
	return s
}

func tradeStats(s *Stats, trades []broker.Trade) {
	s.Trades = len(trades)
	if s.Trades == 0 {
		return
	}

	var profits, losses float64
	var bars int
	s.BestTrade, s.WorstTrade = math.Inf(-1), math.Inf(1)
	for _, t := range trades {
		pnl := t.PnL()
		s.NetPnL += pnl
		s.Commission += t.Commission
		bars += t.Bars()
		s.BestTrade = math.Max(s.BestTrade, pnl)
		s.WorstTrade = math.Min(s.WorstTrade, pnl)
		switch {
		case pnl > 0:
			s.Wins++
			profits += pnl
		case pnl < 0:
			s.Losses++
			losses -= pnl
		}
	}

	s.WinRatePct = float64(s.Wins) / float64(s.Trades) * 100
	s.AvgBarsHeld = float64(bars) / float64(s.Trades)
	if s.Wins > 0 {
		s.AvgWin = profits / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -losses / float64(s.Losses)
	}
	switch {
	case losses > 0:
		s.ProfitFactor = profits / losses
	case profits > 0:
		s.ProfitFactor = math.Inf(1)
	}
}

// MaxDrawdown is the deepest peak-to-trough fall of equity, as a
// non-positive fraction.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak, dd := equity[0], 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			dd = math.Min(dd, (v-peak)/peak)
		}
	}
	return dd
}

func exposure(curve []sim.EquityPoint) float64 {
	n := 0
	for _, p := range curve {
		if p.OpenTrades > 0 {
			n++
		}
	}
	return float64(n) / float64(len(curve))
}

func periodReturns(equity []float64) []float64 {
	out := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			out = append(out, (equity[i]-equity[i-1])/equity[i-1])
		}
	}
	return out
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return math.Sqrt(v / float64(len(xs)-1))
}

// periodsPerYear derives the sampling frequency from the curve's
// timestamps. Zero when the curve has no usable times.
func periodsPerYear(curve []sim.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	first, last := curve[0].Time, curve[len(curve)-1].Time
	if first.IsZero() || !last.After(first) {
		return 0
	}
	avg := last.Sub(first).Seconds() / float64(len(curve)-1)
	return secondsPerYear / avg
}
