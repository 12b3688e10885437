// journal/journal.go
package journal

import (
	"context"
	"time"
)

// TradeRecord is the exported form of a closed trade.
type TradeRecord struct {
	RunID      string    `json:"run_id,omitempty"`
	TradeID    string    `json:"trade_id"`
	Instrument string    `json:"instrument"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryIndex int       `json:"entry_index"`
	ExitIndex  int       `json:"exit_index"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Commission float64   `json:"commission"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
}

// EquitySnapshot is one point of the equity curve, taken after a settled event.
type EquitySnapshot struct {
	RunID      string    `json:"run_id,omitempty"`
	Index      int       `json:"index"`
	Time       time.Time `json:"time"`
	Cash       float64   `json:"cash"`
	Equity     float64   `json:"equity"`
	MarginUsed float64   `json:"margin_used"`
	FreeMargin float64   `json:"free_margin"`
	MarginCall bool      `json:"margin_call"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Run describes one backtest or live session.
type Run struct {
	ID        string
	Created   time.Time
	Mode      string // backtest | live
	Strategy  string
	Dataset   string
	StartCash float64
	Config    []byte

	// Filled in by FinishRun.
	EndEquity  float64
	Trades     int
	ReturnPct  float64
	MaxDDPct   float64
	WinRatePct float64
	Finished   time.Time
}

// RunRecorder is implemented by journals that group records by run.
type RunRecorder interface {
	StartRun(ctx context.Context, r Run) error
	FinishRun(ctx context.Context, r Run) error
}

// Discard drops everything.
var Discard Journal = discard{}

type discard struct{}

func (discard) RecordTrade(TradeRecord) error     { return nil }
func (discard) RecordEquity(EquitySnapshot) error { return nil }
func (discard) Close() error                      { return nil }
