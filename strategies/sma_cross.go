package strategies

import (
	"fmt"
	"log/slog"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/indicators"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/risk"
)

type movingAverage interface {
	Add(v float64)
	Ready() bool
	Value() float64
}

// SMACross trades one instrument on fast/slow moving-average crosses.
//   - enters only on a cross, reversing any opposite exposure first
//   - sizes by Size, or by RiskPct of equity over the ATR stop when Size is 0
//   - brackets with StopATR * ATR and RR times that distance when StopATR > 0
type SMACross struct {
	Instrument string
	Fast, Slow int
	Size       float64
	RiskPct    float64
	StopATR    float64
	RR         float64

	// Policy, when set, gates every entry through risk.Evaluate.
	Policy *risk.Policy

	fast, slow movingAverage
	atr        *indicators.ATR
	exp        bool
	atrPeriod  int

	lastDiff float64
	haveDiff bool
}

func NewSMACross(p Params) (*SMACross, error) {
	if p.Fast <= 0 || p.Slow <= 0 || p.Fast >= p.Slow {
		return nil, fmt.Errorf("sma-cross: need 0 < fast < slow, got %d/%d", p.Fast, p.Slow)
	}
	if p.Size == 0 && p.RiskPct <= 0 {
		return nil, fmt.Errorf("sma-cross: size or risk_pct is required")
	}
	if p.Size == 0 && p.StopATR <= 0 {
		return nil, fmt.Errorf("sma-cross: risk sizing needs stop_atr")
	}
	atrPeriod := p.ATRPeriod
	if atrPeriod <= 0 {
		atrPeriod = 14
	}
	rr := p.RR
	if rr <= 0 {
		rr = 2
	}
	s := &SMACross{
		Instrument: p.Instrument,
		Fast:       p.Fast,
		Slow:       p.Slow,
		Size:       p.Size,
		RiskPct:    p.RiskPct,
		StopATR:    p.StopATR,
		RR:         rr,
		exp:        p.Exponential,
		atrPeriod:  atrPeriod,
	}
	s.reset()
	return s, nil
}

func (s *SMACross) reset() {
	if s.exp {
		s.fast, s.slow = indicators.NewEMA(s.Fast), indicators.NewEMA(s.Slow)
	} else {
		s.fast, s.slow = indicators.NewMA(s.Fast), indicators.NewMA(s.Slow)
	}
	s.atr = indicators.NewATR(s.atrPeriod)
	s.haveDiff = false
}

func (s *SMACross) Init(b broker.Broker, _ market.Series) error {
	if s.Instrument == "" {
		return fmt.Errorf("sma-cross: instrument is required")
	}
	if _, ok := b.Instrument(s.Instrument); !ok {
		return fmt.Errorf("sma-cross: %w: %q", broker.ErrUnknownInstrument, s.Instrument)
	}
	s.reset()
	return nil
}

func (s *SMACross) Next(b broker.Broker, index int) error {
	if !b.Updated(s.Instrument) {
		return nil
	}
	tk, _ := b.LastTick(s.Instrument)

	s.fast.Add(tk.Price())
	s.slow.Add(tk.Price())
	s.atr.Update(tk)
	if !s.fast.Ready() || !s.slow.Ready() {
		return nil
	}

	diff := s.fast.Value() - s.slow.Value()
	prev, had := s.lastDiff, s.haveDiff
	s.lastDiff, s.haveDiff = diff, true
	if !had {
		return nil
	}

	switch {
	case prev <= 0 && diff > 0:
		return s.enter(b, tk, index, true)
	case prev >= 0 && diff < 0:
		return s.enter(b, tk, index, false)
	}
	return nil
}

func (s *SMACross) enter(b broker.Broker, tk market.Tick, index int, long bool) error {
	// An entry still waiting for the next open is left to fill first.
	for _, o := range b.PendingOrders() {
		if o.Instrument == s.Instrument {
			return nil
		}
	}
	for _, t := range b.Trades() {
		if t.Instrument == s.Instrument && t.IsLong() != long {
			if _, err := b.CloseTrade(t.ID, tk.FillPrice(!t.IsLong()), index); err != nil {
				return fmt.Errorf("sma-cross: reverse %s: %w", t.ID, err)
			}
		}
	}
	for _, t := range b.Trades() {
		if t.Instrument == s.Instrument {
			return nil
		}
	}

	in, _ := b.Instrument(s.Instrument)
	entry := tk.FillPrice(long)
	dir := 1.0
	if !long {
		dir = -1
	}

	o := broker.Order{Instrument: s.Instrument}
	var stop float64
	if s.StopATR > 0 && s.atr.Ready() {
		dist := s.StopATR * s.atr.Value()
		stop = entry - dir*dist
		o.StopLoss = broker.Ptr(stop)
		o.TakeProfit = broker.Ptr(entry + dir*s.RR*dist)
	}

	size := s.Size
	if size == 0 {
		if stop == 0 {
			return nil
		}
		size = risk.Calculate(risk.Inputs{
			Equity:     b.Equity(),
			RiskPct:    s.RiskPct,
			EntryPrice: entry,
			StopPrice:  stop,
			Multiplier: in.Multiplier,
		}).Size
		if size == 0 {
			return nil
		}
	}
	o.Size = dir * size

	if s.Policy != nil {
		intent := risk.Intent{
			Instrument: s.Instrument,
			Size:       o.Size,
			Entry:      entry,
			Stop:       stop,
			Multiplier: in.Multiplier,
			Margin:     size * entry * in.Multiplier * in.MarginRate(),
		}
		if o.TakeProfit != nil {
			intent.TakeProfit = *o.TakeProfit
		}
		if d := risk.Evaluate(*s.Policy, intent, b.Account()); !d.Allowed {
			slog.Debug("sma-cross: entry blocked", "index", index, "violations", d.Violations)
			return nil
		}
	}

	// Rejections are expected (margin, cap) and skip the signal.
	if _, err := b.Submit(o); err != nil {
		slog.Debug("sma-cross: order rejected", "index", index, "reason", broker.Reason(err))
	}
	return nil
}
