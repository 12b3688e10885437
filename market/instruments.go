// market/instruments.go
package market

import "fmt"

// Instrument carries the contract terms the ledger needs to value and
// margin a position.
type Instrument struct {
	Name string `json:"name" yaml:"name"`

	// Multiplier converts one unit of price move into account cash.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`

	// Leverage is the maximum notional per unit of equity (2 = 50% margin).
	Leverage float64 `json:"leverage" yaml:"leverage"`

	// MaintenanceMarginPct is the share of equity margin usage may reach
	// before the account is flagged as in a margin call.
	MaintenanceMarginPct float64 `json:"maintenance_margin_pct" yaml:"maintenance_margin_pct"`
}

// MarginRate is the initial margin per unit of notional.
func (i Instrument) MarginRate() float64 {
	if i.Leverage <= 0 {
		return 1
	}
	return 1 / i.Leverage
}

// Instruments is a registry keyed by instrument name.
type Instruments map[string]Instrument

// NewInstruments builds a registry, filling zero terms with defaults
// (multiplier 1, leverage 1, maintenance 100%).
func NewInstruments(list ...Instrument) (Instruments, error) {
	reg := make(Instruments, len(list))
	for _, in := range list {
		if in.Name == "" {
			return nil, fmt.Errorf("instrument: empty name")
		}
		if _, dup := reg[in.Name]; dup {
			return nil, fmt.Errorf("instrument %q registered twice", in.Name)
		}
		if in.Multiplier == 0 {
			in.Multiplier = 1
		}
		if in.Leverage == 0 {
			in.Leverage = 1
		}
		if in.MaintenanceMarginPct == 0 {
			in.MaintenanceMarginPct = 1
		}
		if in.Multiplier < 0 || in.Leverage < 0 || in.MaintenanceMarginPct < 0 {
			return nil, fmt.Errorf("instrument %q: negative contract terms", in.Name)
		}
		reg[in.Name] = in
	}
	return reg, nil
}

func (r Instruments) Lookup(name string) (Instrument, bool) {
	in, ok := r[name]
	return in, ok
}
