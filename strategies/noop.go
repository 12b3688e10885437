package strategies

import (
	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
)

// Noop does nothing.
type Noop struct{}

func (Noop) Init(broker.Broker, market.Series) error { return nil }
func (Noop) Next(broker.Broker, int) error           { return nil }
