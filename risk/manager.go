package risk

import (
	"fmt"

	"github.com/rustyeddy/tradecore/broker"
)

// CapPolicy decides what RegisterPosition does at the cap.
type CapPolicy int

const (
	// Reject returns ErrPositionCapExceeded.
	Reject CapPolicy = iota
	// Saturate leaves the counter at the cap and reports success.
	Saturate
)

type counts struct {
	long, short int
}

// PositionManager counts open positions per instrument and side. It never
// touches the ledger: callers report every open and close, or call Sync
// to rebuild the counts from the ledger's open trades.
type PositionManager struct {
	MaxPerSide int
	Policy     CapPolicy

	counts map[string]*counts
}

func NewPositionManager(maxPerSide int, policy CapPolicy) *PositionManager {
	return &PositionManager{
		MaxPerSide: maxPerSide,
		Policy:     policy,
		counts:     make(map[string]*counts),
	}
}

func (pm *PositionManager) get(instrument string) *counts {
	if pm.counts == nil {
		pm.counts = make(map[string]*counts)
	}
	c, ok := pm.counts[instrument]
	if !ok {
		c = &counts{}
		pm.counts[instrument] = c
	}
	return c
}

// RegisterPosition counts a new position: long for size > 0, short otherwise.
func (pm *PositionManager) RegisterPosition(instrument string, size float64) error {
	if size == 0 {
		return fmt.Errorf("register position: %w", broker.ErrZeroSize)
	}
	c := pm.get(instrument)
	n := &c.short
	if size > 0 {
		n = &c.long
	}
	if *n >= pm.MaxPerSide {
		if pm.Policy == Saturate {
			return nil
		}
		return fmt.Errorf("register position: %w: %s %s at %d",
			broker.ErrPositionCapExceeded, instrument, sideName(size), pm.MaxPerSide)
	}
	*n++
	return nil
}

// ClosePosition uncounts a position of the given side.
func (pm *PositionManager) ClosePosition(instrument string, size float64) error {
	if size == 0 {
		return fmt.Errorf("close position: %w", broker.ErrZeroSize)
	}
	c := pm.get(instrument)
	n := &c.short
	if size > 0 {
		n = &c.long
	}
	if *n == 0 {
		return fmt.Errorf("close position: %w: %s %s",
			broker.ErrNoPositionToClose, instrument, sideName(size))
	}
	*n--
	return nil
}

func (pm *PositionManager) Long(instrument string) int  { return pm.get(instrument).long }
func (pm *PositionManager) Short(instrument string) int { return pm.get(instrument).short }

func (pm *PositionManager) CanOpenLong(instrument string) bool {
	return pm.Long(instrument) < pm.MaxPerSide
}

func (pm *PositionManager) CanOpenShort(instrument string) bool {
	return pm.Short(instrument) < pm.MaxPerSide
}

// Total is the number of counted positions across instruments and sides.
func (pm *PositionManager) Total() int {
	n := 0
	for _, c := range pm.counts {
		n += c.long + c.short
	}
	return n
}

func (pm *PositionManager) Reset() {
	pm.counts = make(map[string]*counts)
}

// Sync replaces the counts with those of the given open trades, capped at
// MaxPerSide.
func (pm *PositionManager) Sync(open []broker.Trade) {
	pm.Reset()
	for _, t := range open {
		c := pm.get(t.Instrument)
		if t.IsLong() {
			c.long = min(c.long+1, pm.MaxPerSide)
		} else {
			c.short = min(c.short+1, pm.MaxPerSide)
		}
	}
}

func sideName(size float64) string {
	if size > 0 {
		return "long"
	}
	return "short"
}
