package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "instrument", "size", "entry_price", "exit_price", "entry_index", "exit_index", "entry_time", "exit_time", "commission", "pnl", "reason"}
	equityHeader = []string{"index", "time", "cash", "equity", "margin_used", "free_margin", "margin_call"}
)

// CSV writes closed trades and equity snapshots as two CSV streams. Every
// record is flushed so a crashed run still leaves a readable log.
type CSV struct {
	mu      sync.Mutex
	trades  *csv.Writer
	equity  *csv.Writer
	closers []io.Closer
}

// NewCSV creates (truncating) the two files.
func NewCSV(tradesPath, equityPath string) (*CSV, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}
	j, err := NewCSVWriter(tf, ef)
	if err != nil {
		tf.Close()
		ef.Close()
		return nil, err
	}
	j.closers = []io.Closer{tf, ef}
	return j, nil
}

// NewCSVWriter writes to caller-owned writers; Close flushes but does not
// close them.
func NewCSVWriter(trades, equity io.Writer) (*CSV, error) {
	j := &CSV{trades: csv.NewWriter(trades), equity: csv.NewWriter(equity)}
	if err := write(j.trades, tradeHeader); err != nil {
		return nil, fmt.Errorf("journal: trades header: %w", err)
	}
	if err := write(j.equity, equityHeader); err != nil {
		return nil, fmt.Errorf("journal: equity header: %w", err)
	}
	return j, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return write(j.trades, []string{
		t.TradeID,
		t.Instrument,
		num(t.Size),
		num(t.EntryPrice),
		num(t.ExitPrice),
		strconv.Itoa(t.EntryIndex),
		strconv.Itoa(t.ExitIndex),
		stamp(t.EntryTime),
		stamp(t.ExitTime),
		num(t.Commission),
		num(t.PnL),
		t.Reason,
	})
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return write(j.equity, []string{
		strconv.Itoa(e.Index),
		stamp(e.Time),
		num(e.Cash),
		num(e.Equity),
		num(e.MarginUsed),
		num(e.FreeMargin),
		strconv.FormatBool(e.MarginCall),
	})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades.Flush()
	j.equity.Flush()
	errs := []error{j.trades.Error(), j.equity.Error()}
	for _, c := range j.closers {
		errs = append(errs, c.Close())
	}
	j.closers = nil
	return errors.Join(errs...)
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// num keeps full precision: the shortest text that parses back to x.
func num(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
