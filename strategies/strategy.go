package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
)

// Strategy is driven once per settled event. Init runs before the first
// event with whatever history the driver has (nil for live sessions).
// Neither call may block.
type Strategy interface {
	Init(b broker.Broker, data market.Series) error
	Next(b broker.Broker, index int) error
}

// TradeClosedListener is an optional interface for strategies that need to
// hear about trades the ledger closed on its own (stop-loss, take-profit,
// liquidation).
type TradeClosedListener interface {
	OnTradeClosed(t broker.Trade)
}

// Params is the flat parameter set the CLI and config hand to New. Each
// strategy reads the fields it understands.
type Params struct {
	Instrument string  `yaml:"instrument" json:"instrument"`
	Pair       string  `yaml:"pair" json:"pair"`
	Size       float64 `yaml:"size" json:"size"`

	Fast        int     `yaml:"fast" json:"fast"`
	Slow        int     `yaml:"slow" json:"slow"`
	Exponential bool    `yaml:"exponential" json:"exponential"`
	RiskPct     float64 `yaml:"risk_pct" json:"risk_pct"`
	ATRPeriod   int     `yaml:"atr_period" json:"atr_period"`
	StopATR     float64 `yaml:"stop_atr" json:"stop_atr"`
	RR          float64 `yaml:"rr" json:"rr"`

	Hedge    float64 `yaml:"hedge" json:"hedge"`
	Lookback int     `yaml:"lookback" json:"lookback"`
	EntryZ   float64 `yaml:"entry_z" json:"entry_z"`
	ExitZ    float64 `yaml:"exit_z" json:"exit_z"`

	StopLoss   float64 `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit float64 `yaml:"take_profit" json:"take_profit"`
}

type factory func(p Params) (Strategy, error)

var registry = map[string]factory{
	"noop":         func(Params) (Strategy, error) { return Noop{}, nil },
	"open-once":    func(p Params) (Strategy, error) { return NewOpenOnce(p), nil },
	"sma-cross":    func(p Params) (Strategy, error) { return NewSMACross(p) },
	"pairs-spread": func(p Params) (Strategy, error) { return NewPairsSpread(p) },
}

// Names lists the registered strategies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func New(name string, p Params) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p)
}
