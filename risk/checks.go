package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradecore/broker"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    float64
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// PlannedRisk is the cash lost if the stop is hit.
func PlannedRisk(size, entry, stop, multiplier float64) float64 {
	if multiplier == 0 {
		multiplier = 1
	}
	return math.Abs(size) * math.Abs(entry-stop) * multiplier
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 || takeProfit == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// Evaluate checks intent against p and the current account.
func Evaluate(p Policy, intent Intent, acct broker.Account) Decision {
	d := Decision{Allowed: true}

	if intent.Size == 0 {
		d.add("NO_SIZE", "size must be non-zero")
		return d
	}
	if intent.Entry <= 0 {
		d.add("NO_ENTRY", "entry must be set")
		return d
	}

	if intent.Stop > 0 {
		d.PlannedRisk = PlannedRisk(intent.Size, intent.Entry, intent.Stop, intent.Multiplier)
		if acct.Equity > 0 {
			d.PlannedRiskPct = d.PlannedRisk / acct.Equity
		} else {
			d.PlannedRiskPct = math.Inf(1)
		}
		d.PlannedRR = RR(intent.Entry, intent.Stop, intent.TakeProfit)
	}

	if p.MaxRiskPct > 0 && d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}
	if p.MinRR > 0 && intent.TakeProfit > 0 && d.PlannedRR < p.MinRR {
		d.add("RR_TOO_LOW",
			fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
	}
	if p.MaxOpenTrades > 0 && acct.OpenTrades >= p.MaxOpenTrades {
		d.add("TOO_MANY_OPEN_TRADES",
			fmt.Sprintf("open trades %d >= max %d", acct.OpenTrades, p.MaxOpenTrades))
	}
	if p.MaxMarginPct > 0 && acct.Equity > 0 {
		if pct := (acct.MarginUsed + intent.Margin) / acct.Equity; pct > p.MaxMarginPct {
			d.add("MARGIN_TOO_HIGH",
				fmt.Sprintf("margin used %.2f%% exceeds max %.2f%%", 100*pct, 100*p.MaxMarginPct))
		}
	}

	return d
}
