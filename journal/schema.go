// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	mode TEXT NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL,
	start_cash REAL NOT NULL,
	config BLOB,
	end_equity REAL NOT NULL DEFAULT 0,
	trades INTEGER NOT NULL DEFAULT 0,
	return_pct REAL NOT NULL DEFAULT 0,
	max_dd_pct REAL NOT NULL DEFAULT 0,
	win_rate_pct REAL NOT NULL DEFAULT 0,
	finished DATETIME
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	entry_index INTEGER NOT NULL,
	exit_index INTEGER NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	commission REAL NOT NULL,
	pnl REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	margin_used REAL NOT NULL,
	free_margin REAL NOT NULL,
	margin_call INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, idx);
`
