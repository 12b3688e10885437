package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradecore/market"
)

// CSVOptions filters rows to [From, To) when either bound is set.
type CSVOptions struct {
	From time.Time
	To   time.Time
}

// LoadCSVFile reads a CSV file of bars or quotes into a Series.
func LoadCSVFile(path string, opts CSVOptions) (market.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := LoadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadCSV reads canonical rows:
//
//	time,instrument,open,high,low,close[,volume]
//	time,instrument,bid,ask
//
// time is RFC3339, RFC3339Nano or a plain date. A header row ("time,...")
// is allowed and empty rows are skipped. Consecutive rows with the same time
// form one event; events are indexed from 0 in file order. Rows must be in
// non-decreasing time order.
func LoadCSV(r io.Reader, opts CSVOptions) (market.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		out  market.Series
		cur  *market.Event
		line int
	)
	flush := func() {
		if cur != nil {
			cur.Index = len(out)
			out = append(out, *cur)
			cur = nil
		}
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}

		ts, tk, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !inRange(ts, opts.From, opts.To) {
			continue
		}

		if cur != nil && ts.Before(cur.Time) {
			return nil, fmt.Errorf("line %d: time %s is before %s", line, ts.Format(time.RFC3339), cur.Time.Format(time.RFC3339))
		}
		if cur != nil && !ts.Equal(cur.Time) {
			flush()
		}
		if cur == nil {
			cur = &market.Event{Time: ts}
		}
		if _, dup := cur.Tick(tk.Instrument); dup {
			return nil, fmt.Errorf("line %d: %s appears twice at %s", line, tk.Instrument, ts.Format(time.RFC3339))
		}
		cur.Ticks = append(cur.Ticks, tk)
	}
	flush()
	return out, nil
}

func parseRow(row []string) (time.Time, market.Tick, error) {
	if len(row) != 4 && len(row) != 6 && len(row) != 7 {
		return time.Time{}, market.Tick{}, fmt.Errorf("want 4, 6 or 7 columns, got %d", len(row))
	}

	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return time.Time{}, market.Tick{}, err
	}
	inst := strings.TrimSpace(row[1])
	if inst == "" {
		return time.Time{}, market.Tick{}, fmt.Errorf("empty instrument")
	}

	vals := make([]float64, 0, 4)
	for _, col := range row[2:min(len(row), 6)] {
		v, err := strconv.ParseFloat(strings.TrimSpace(col), 64)
		if err != nil {
			return time.Time{}, market.Tick{}, fmt.Errorf("bad price %q: %w", col, err)
		}
		if v <= 0 {
			return time.Time{}, market.Tick{}, fmt.Errorf("price must be positive, got %g", v)
		}
		vals = append(vals, v)
	}

	tk := market.Tick{Instrument: inst}
	if len(vals) == 2 {
		tk.Bid, tk.Ask = vals[0], vals[1]
	} else {
		tk.Open, tk.High, tk.Low, tk.Close = vals[0], vals[1], vals[2], vals[3]
	}
	return ts, tk, nil
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
