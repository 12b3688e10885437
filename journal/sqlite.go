package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite journals into a single database file. Records written after
// StartRun carry that run's id; records written before it carry "".
type SQLite struct {
	db *sql.DB

	mu    sync.Mutex
	runID string
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) currentRun() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

func (j *SQLite) StartRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("journal: run id is required")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, created, mode, strategy, dataset, start_cash, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Created, r.Mode, r.Strategy, r.Dataset, r.StartCash, r.Config,
	)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.runID = r.ID
	j.mu.Unlock()
	return nil
}

func (j *SQLite) FinishRun(ctx context.Context, r Run) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET end_equity = ?, trades = ?, return_pct = ?, max_dd_pct = ?, win_rate_pct = ?, finished = ?
		WHERE run_id = ?`,
		r.EndEquity, r.Trades, r.ReturnPct, r.MaxDDPct, r.WinRatePct, r.Finished, r.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal: run %q not found", r.ID)
	}
	return nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	if t.RunID == "" {
		t.RunID = j.currentRun()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, instrument, size, entry_price, exit_price, entry_index, exit_index,
		 entry_time, exit_time, commission, pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TradeID, t.Instrument, t.Size, t.EntryPrice, t.ExitPrice, t.EntryIndex, t.ExitIndex,
		t.EntryTime, t.ExitTime, t.Commission, t.PnL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	if e.RunID == "" {
		e.RunID = j.currentRun()
	}
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, idx, time, cash, equity, margin_used, free_margin, margin_call)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Index, e.Time, e.Cash, e.Equity, e.MarginUsed, e.FreeMargin, e.MarginCall,
	)
	return err
}

// GetRun loads a run row by id.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, mode, strategy, dataset, start_cash, config,
		       end_equity, trades, return_pct, max_dd_pct, win_rate_pct, finished
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.ID, &r.Created, &r.Mode, &r.Strategy, &r.Dataset, &r.StartCash, &r.Config,
		&r.EndEquity, &r.Trades, &r.ReturnPct, &r.MaxDDPct, &r.WinRatePct, &finished,
	)
	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("journal: run %q not found", runID)
	}
	if err != nil {
		return Run{}, err
	}
	if finished.Valid {
		r.Finished = finished.Time
	}
	return r, nil
}

// ListTrades returns a run's closed trades in exit order.
func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, trade_id, instrument, size, entry_price, exit_price, entry_index, exit_index,
		       entry_time, exit_time, commission, pnl, reason
		FROM trades
		WHERE run_id = ?
		ORDER BY exit_index ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.RunID, &rec.TradeID, &rec.Instrument, &rec.Size, &rec.EntryPrice, &rec.ExitPrice,
			&rec.EntryIndex, &rec.ExitIndex, &rec.EntryTime, &rec.ExitTime,
			&rec.Commission, &rec.PnL, &rec.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquity returns a run's equity curve in event order.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, idx, time, cash, equity, margin_used, free_margin, margin_call
		FROM equity
		WHERE run_id = ?
		ORDER BY idx ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(
			&e.RunID, &e.Index, &e.Time, &e.Cash, &e.Equity, &e.MarginUsed, &e.FreeMargin, &e.MarginCall,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
