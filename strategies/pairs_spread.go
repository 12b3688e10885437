package strategies

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/indicators"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/risk"
)

// PairsSpread mean-reverts the spread A - Hedge*B. It shorts the spread
// (short A, long B) when the rolling z-score rises above EntryZ, buys it
// below -EntryZ, and flattens both legs once |z| falls under ExitZ.
//
// Exposure is counted in a PositionManager with one position per side, so
// a second entry in the same direction is refused until the pair is flat.
// A leg queued by the broker (trade-on-open) counts as exposure from the
// moment it is accepted and is adopted once it fills.
type PairsSpread struct {
	A, B     string
	Hedge    float64
	Size     float64
	Lookback int
	EntryZ   float64
	ExitZ    float64

	pm     *risk.PositionManager
	z      *indicators.ZScore
	legs   []broker.Trade
	queued []broker.Order
	dir    int // +1 long spread, -1 short spread, 0 flat
}

func NewPairsSpread(p Params) (*PairsSpread, error) {
	if p.Instrument == "" || p.Pair == "" || p.Instrument == p.Pair {
		return nil, fmt.Errorf("pairs-spread: two distinct instruments are required")
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("pairs-spread: size must be positive")
	}
	s := &PairsSpread{
		A:        p.Instrument,
		B:        p.Pair,
		Hedge:    p.Hedge,
		Size:     p.Size,
		Lookback: p.Lookback,
		EntryZ:   p.EntryZ,
		ExitZ:    p.ExitZ,
	}
	if s.Hedge == 0 {
		s.Hedge = 1
	}
	if s.Lookback < 2 {
		s.Lookback = 20
	}
	if s.EntryZ <= 0 {
		s.EntryZ = 2
	}
	if s.ExitZ < 0 || s.ExitZ >= s.EntryZ {
		return nil, fmt.Errorf("pairs-spread: need 0 <= exit_z < entry_z")
	}
	return s, nil
}

func (s *PairsSpread) Init(b broker.Broker, _ market.Series) error {
	for _, name := range []string{s.A, s.B} {
		if _, ok := b.Instrument(name); !ok {
			return fmt.Errorf("pairs-spread: %w: %q", broker.ErrUnknownInstrument, name)
		}
	}
	s.pm = risk.NewPositionManager(1, risk.Reject)
	s.z = indicators.NewZScore(s.Lookback)
	s.legs = nil
	s.queued = nil
	s.dir = 0
	return nil
}

// Positions exposes the strategy's exposure counter.
func (s *PairsSpread) Positions() *risk.PositionManager { return s.pm }

func (s *PairsSpread) Next(b broker.Broker, index int) error {
	if !b.Updated(s.A) && !b.Updated(s.B) {
		return nil
	}
	ta, okA := b.LastTick(s.A)
	tb, okB := b.LastTick(s.B)
	if !okA || !okB {
		return nil
	}

	s.adopt(b)
	if len(s.queued) > 0 {
		return nil
	}

	// A leg closed under us: flatten what is left.
	if s.dir != 0 && len(s.legs) < 2 {
		return s.exit(b, index)
	}

	s.z.Add(ta.Price() - s.Hedge*tb.Price())
	if !s.z.Ready() {
		return nil
	}
	z := s.z.Value()

	switch {
	case s.dir != 0 && math.Abs(z) < s.ExitZ:
		return s.exit(b, index)
	case s.dir == 0 && z > s.EntryZ:
		return s.enter(b, -1)
	case s.dir == 0 && z < -s.EntryZ:
		return s.enter(b, 1)
	}
	return nil
}

func (s *PairsSpread) enter(b broker.Broker, dir int) error {
	sizeA := float64(dir) * s.Size
	sizeB := -float64(dir) * s.Size * s.Hedge

	if !s.canOpen(s.A, sizeA) || !s.canOpen(s.B, sizeB) {
		return nil
	}

	first, filled, err := s.open(b, s.A, sizeA)
	if err != nil {
		slog.Debug("pairs-spread: leg rejected", "instrument", s.A, "reason", broker.Reason(err))
		return nil
	}
	s.dir = dir
	if _, _, err := s.open(b, s.B, sizeB); err != nil {
		slog.Debug("pairs-spread: leg rejected, unwinding", "instrument", s.B, "reason", broker.Reason(err))
		if !filled {
			// Flattened by the lone-leg check once it fills.
			return nil
		}
		return s.closeLeg(b, first, b.Index())
	}
	return nil
}

func (s *PairsSpread) canOpen(instrument string, size float64) bool {
	if size > 0 {
		return s.pm.CanOpenLong(instrument)
	}
	return s.pm.CanOpenShort(instrument)
}

// open submits one leg at market. filled is false when the broker queued
// the order; the leg is then tracked in queued until adopt sees it.
func (s *PairsSpread) open(b broker.Broker, instrument string, size float64) (leg broker.Trade, filled bool, err error) {
	id, err := b.Submit(broker.Order{Instrument: instrument, Size: size})
	if err != nil {
		return broker.Trade{}, false, err
	}
	if err := s.pm.RegisterPosition(instrument, size); err != nil {
		return broker.Trade{}, false, err
	}
	if t, ok := tradeFor(b.Trades(), id); ok {
		s.legs = append(s.legs, t)
		return t, true, nil
	}
	o, ok := b.Order(id)
	if !ok {
		_ = s.pm.ClosePosition(instrument, size)
		return broker.Trade{}, false, fmt.Errorf("pairs-spread: %s order %s vanished", instrument, id)
	}
	s.queued = append(s.queued, o)
	return broker.Trade{}, false, nil
}

// adopt moves queued legs that have filled into legs, and releases the
// exposure of those the broker dropped.
func (s *PairsSpread) adopt(b broker.Broker) {
	if len(s.queued) == 0 {
		return
	}
	open := b.Trades()
	rest := s.queued[:0]
	for _, o := range s.queued {
		if t, ok := tradeFor(open, o.ID); ok {
			s.legs = append(s.legs, t)
			continue
		}
		if _, ok := b.Order(o.ID); ok {
			rest = append(rest, o)
			continue
		}
		slog.Debug("pairs-spread: queued leg dropped", "order", o.ID, "instrument", o.Instrument)
		if err := s.pm.ClosePosition(o.Instrument, o.Size); err != nil {
			slog.Warn("pairs-spread: position count out of step", "err", err)
		}
	}
	s.queued = rest
	if len(s.queued) == 0 && len(s.legs) == 0 {
		s.dir = 0
	}
}

func tradeFor(trades []broker.Trade, id broker.OrderID) (broker.Trade, bool) {
	for _, t := range trades {
		if t.EntryOrder == id {
			return t, true
		}
	}
	return broker.Trade{}, false
}

func (s *PairsSpread) exit(b broker.Broker, index int) error {
	var err error
	for _, leg := range append([]broker.Trade(nil), s.legs...) {
		err = errors.Join(err, s.closeLeg(b, leg, index))
	}
	s.dir = 0
	return err
}

func (s *PairsSpread) closeLeg(b broker.Broker, leg broker.Trade, index int) error {
	tk, _ := b.LastTick(leg.Instrument)
	if _, err := b.CloseTrade(leg.ID, tk.FillPrice(!leg.IsLong()), index); err != nil {
		return fmt.Errorf("pairs-spread: close %s: %w", leg.ID, err)
	}
	s.forget(leg)
	if len(s.legs) == 0 && len(s.queued) == 0 {
		s.dir = 0
	}
	return nil
}

func (s *PairsSpread) forget(t broker.Trade) {
	for i, leg := range s.legs {
		if leg.ID == t.ID {
			s.legs = append(s.legs[:i], s.legs[i+1:]...)
			if err := s.pm.ClosePosition(t.Instrument, t.Size); err != nil {
				slog.Warn("pairs-spread: position count out of step", "err", err)
				s.pm.Sync(s.legs)
			}
			return
		}
	}
}

// OnTradeClosed keeps the leg list and position counts in step when the
// ledger closes a leg by itself.
func (s *PairsSpread) OnTradeClosed(t broker.Trade) {
	s.forget(t)
}
