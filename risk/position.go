package risk

import "math"

// Inputs sizes a position so that a stop-out loses RiskPct of Equity.
type Inputs struct {
	Equity     float64
	RiskPct    float64 // 0.01 = 1%
	EntryPrice float64
	StopPrice  float64
	Multiplier float64 // contract multiplier, 0 = 1

	// Step rounds the size down to a lot size. 0 keeps fractional sizes.
	Step float64
}

type Result struct {
	Size         float64
	StopDistance float64
	RiskAmount   float64
}

// Calculate returns the unsigned position size. A zero stop distance
// yields a zero size.
func Calculate(in Inputs) Result {
	mult := in.Multiplier
	if mult == 0 {
		mult = 1
	}
	dist := math.Abs(in.EntryPrice - in.StopPrice)
	riskAmt := in.Equity * in.RiskPct

	res := Result{StopDistance: dist, RiskAmount: riskAmt}
	if dist == 0 || riskAmt <= 0 {
		return res
	}

	size := riskAmt / (dist * mult)
	if in.Step > 0 {
		size = math.Floor(size/in.Step) * in.Step
	}
	res.Size = size
	return res
}
