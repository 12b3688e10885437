package risk

// Policy holds pre-trade limits. Zero fields are not enforced.
type Policy struct {
	MaxRiskPct    float64 `yaml:"max_risk_pct" json:"max_risk_pct"` // of equity, per trade
	MinRR         float64 `yaml:"min_rr" json:"min_rr"`             // reward:risk
	MaxOpenTrades int     `yaml:"max_open_trades" json:"max_open_trades"`
	MaxMarginPct  float64 `yaml:"max_margin_pct" json:"max_margin_pct"` // margin used / equity after the trade
}

// Intent is a trade a strategy is about to submit.
type Intent struct {
	Instrument string
	Size       float64
	Entry      float64
	Stop       float64
	TakeProfit float64
	Multiplier float64
	Margin     float64 // initial margin the trade would add
}
