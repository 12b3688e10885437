package cli

import (
	"fmt"
	"log/slog"

	"github.com/rustyeddy/tradecore/config"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/risk"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/strategies"
)

// openJournal returns the configured journal. The SQLite journal is also
// returned as a RunRecorder so runs can be bracketed.
func openJournal(c config.JournalConfig) (journal.Journal, journal.RunRecorder, error) {
	switch c.Type {
	case "sqlite":
		j, err := journal.NewSQLite(c.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		return j, j, nil
	case "csv":
		j, err := journal.NewCSV(c.TradesFile, c.EquityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		return j, nil, nil
	default:
		return journal.Discard, nil, nil
	}
}

// newEngine builds the ledger for cfg.
func newEngine(cfg *config.Config, j journal.Journal) (*sim.Engine, error) {
	e, err := sim.NewEngine(cfg.EngineConfig(), j)
	if err != nil {
		return nil, err
	}
	e.SetLogger(slog.Default().With("component", "engine"))
	return e, nil
}

// newStrategy resolves the configured strategy; name overrides the config
// when set. The risk section gates sma-cross entries.
func newStrategy(cfg *config.Config, name string) (strategies.Strategy, string, error) {
	if name == "" {
		name = cfg.Strategy.Name
	}
	if name == "" {
		name = "noop"
	}
	s, err := strategies.New(name, cfg.Strategy.Params)
	if err != nil {
		return nil, "", err
	}
	if sc, ok := s.(*strategies.SMACross); ok && cfg.Risk != (risk.Policy{}) {
		p := cfg.Risk
		sc.Policy = &p
	}
	return s, name, nil
}
