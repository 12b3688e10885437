package strategies

import (
	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
)

// OpenOnce opens a single market trade on the first event that prices its
// instrument, with optional stop-loss / take-profit offsets, then stays out.
type OpenOnce struct {
	Instrument string
	Size       float64
	StopLoss   float64 // distance from entry, 0 = none
	TakeProfit float64 // distance from entry, 0 = none

	opened bool
	err    error
}

func NewOpenOnce(p Params) *OpenOnce {
	size := p.Size
	if size == 0 {
		size = 1
	}
	return &OpenOnce{
		Instrument: p.Instrument,
		Size:       size,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
	}
}

func (s *OpenOnce) Init(broker.Broker, market.Series) error {
	s.opened = false
	s.err = nil
	return nil
}

func (s *OpenOnce) Next(b broker.Broker, index int) error {
	if s.opened {
		return nil
	}
	tk, ok := b.LastTick(s.Instrument)
	if !ok {
		return nil
	}

	entry := tk.FillPrice(s.Size > 0)
	o := broker.Order{Instrument: s.Instrument, Size: s.Size}
	dir := 1.0
	if s.Size < 0 {
		dir = -1
	}
	if s.StopLoss > 0 {
		o.StopLoss = broker.Ptr(entry - dir*s.StopLoss)
	}
	if s.TakeProfit > 0 {
		o.TakeProfit = broker.Ptr(entry + dir*s.TakeProfit)
	}

	s.opened = true
	_, s.err = b.Submit(o)
	return nil
}

// Err is the submission result, nil until the order is sent.
func (s *OpenOnce) Err() error { return s.err }
