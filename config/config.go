package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/risk"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/strategies"
)

// Config represents the complete run configuration
type Config struct {
	Account     AccountConfig       `json:"account" yaml:"account"`
	Execution   ExecutionConfig     `json:"execution" yaml:"execution"`
	Instruments []market.Instrument `json:"instruments" yaml:"instruments"`
	Strategy    StrategyConfig      `json:"strategy" yaml:"strategy"`
	Risk        risk.Policy         `json:"risk" yaml:"risk"`
	Journal     JournalConfig       `json:"journal" yaml:"journal"`
	Live        LiveConfig          `json:"live" yaml:"live"`
	Log         LogConfig           `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Cash    float64 `json:"cash" yaml:"cash"`
	Primary string  `json:"primary,omitempty" yaml:"primary,omitempty"` // default: first instrument
}

// ExecutionConfig contains the fill and cost model
type ExecutionConfig struct {
	CommissionPct       float64 `json:"commission_pct" yaml:"commission_pct"`
	CommissionFlat      float64 `json:"commission_flat" yaml:"commission_flat"`
	Spread              float64 `json:"spread" yaml:"spread"`
	SlippagePct         float64 `json:"slippage_pct" yaml:"slippage_pct"`
	TradeOnOpen         bool    `json:"trade_on_open" yaml:"trade_on_open"`
	ScaleWithEquity     bool    `json:"scale_with_equity" yaml:"scale_with_equity"`
	MaxPositionsPerSide int     `json:"max_positions_per_side" yaml:"max_positions_per_side"`
}

// StrategyConfig names a registered strategy and its parameters
type StrategyConfig struct {
	Name   string            `json:"name" yaml:"name"`
	Params strategies.Params `json:"params" yaml:"params"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LiveConfig configures the quote stream session
type LiveConfig struct {
	URL                   string `json:"url,omitempty" yaml:"url,omitempty"`
	QueueSize             int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	LiquidateOnMarginCall bool   `json:"liquidate_on_margin_call" yaml:"liquidate_on_margin_call"`
	CloseOnStop           bool   `json:"close_on_stop" yaml:"close_on_stop"`
}

// LogConfig controls log level and format
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

// Load reads .env (if present) and then path, or starts from Default when
// path is empty. TRADER_* environment variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromFile(path)
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		*cfg = Config{}
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths, JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TRADER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("TRADER_DB"); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
}

func setDefaults(c *Config) {
	if c.Journal.Type == "" {
		c.Journal.Type = "none"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Strategy.Params.Instrument == "" {
		c.Strategy.Params.Instrument = c.Account.Primary
	}
	if c.Strategy.Params.Instrument == "" && len(c.Instruments) > 0 {
		c.Strategy.Params.Instrument = c.Instruments[0].Name
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Cash <= 0 {
		return fmt.Errorf("account.cash must be positive")
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	reg, err := market.NewInstruments(c.Instruments...)
	if err != nil {
		return err
	}
	if p := c.Account.Primary; p != "" {
		if _, ok := reg[p]; !ok {
			return fmt.Errorf("account.primary %q is not a configured instrument", p)
		}
	}

	x := c.Execution
	if x.CommissionPct < 0 || x.CommissionFlat < 0 || x.Spread < 0 || x.SlippagePct < 0 {
		return fmt.Errorf("execution costs must be non-negative")
	}
	if x.CommissionPct >= 1 || x.SlippagePct >= 1 {
		return fmt.Errorf("execution commission_pct and slippage_pct must be below 1")
	}
	if x.MaxPositionsPerSide < 0 {
		return fmt.Errorf("execution.max_positions_per_side must be non-negative")
	}

	if c.Risk.MaxRiskPct < 0 || c.Risk.MaxRiskPct > 1 {
		return fmt.Errorf("risk.max_risk_pct must be between 0 and 1")
	}
	if c.Risk.MinRR < 0 || c.Risk.MaxMarginPct < 0 || c.Risk.MaxOpenTrades < 0 {
		return fmt.Errorf("risk limits must be non-negative")
	}

	if c.Strategy.Name != "" && !knownStrategy(c.Strategy.Name) {
		return fmt.Errorf("unknown strategy %q (supported: %s)", c.Strategy.Name, strings.Join(strategies.Names(), ", "))
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if c.Live.QueueSize < 0 {
		return fmt.Errorf("live.queue_size must be non-negative")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// EngineConfig converts the account, execution and instrument sections.
func (c *Config) EngineConfig() sim.Config {
	x := c.Execution
	return sim.Config{
		Cash:                c.Account.Cash,
		Primary:             c.Account.Primary,
		Instruments:         append([]market.Instrument(nil), c.Instruments...),
		CommissionPct:       x.CommissionPct,
		CommissionFlat:      x.CommissionFlat,
		Spread:              x.Spread,
		SlippagePct:         x.SlippagePct,
		MaxPositionsPerSide: x.MaxPositionsPerSide,
		TradeOnOpen:         x.TradeOnOpen,
		ScaleWithEquity:     x.ScaleWithEquity,
	}
}

func knownStrategy(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range strategies.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Cash:    100000,
			Primary: "SPY",
		},
		Execution: ExecutionConfig{
			CommissionPct: 0.0005,
		},
		Instruments: []market.Instrument{
			{Name: "SPY", Multiplier: 1, Leverage: 2, MaintenanceMarginPct: 1},
		},
		Strategy: StrategyConfig{
			Name: "sma-cross",
			Params: strategies.Params{
				Instrument: "SPY",
				Size:       10,
				Fast:       10,
				Slow:       30,
			},
		},
		Journal: JournalConfig{Type: "none"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}
