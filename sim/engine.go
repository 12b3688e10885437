package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
)

// Config holds the ledger's account and execution settings.
type Config struct {
	Cash        float64
	Primary     string
	Instruments []market.Instrument

	CommissionPct  float64 // fraction of notional, per fill
	CommissionFlat float64 // per fill
	Spread         float64 // absolute, half paid on each market fill
	SlippagePct    float64 // adverse fraction of price, per fill

	// MaxPositionsPerSide caps open trades per instrument and side. 0 = no cap.
	MaxPositionsPerSide int

	// TradeOnOpen defers market orders to the next event's open.
	TradeOnOpen bool

	// ScaleWithEquity multiplies order sizes by equity / Cash at admission.
	ScaleWithEquity bool
}

// EquityPoint is the ledger state after one settled event.
type EquityPoint struct {
	Index      int       `json:"index"`
	Time       time.Time `json:"time"`
	Cash       float64   `json:"cash"`
	Equity     float64   `json:"equity"`
	MarginUsed float64   `json:"margin_used"`
	Usage      float64   `json:"usage"`
	MarginCall bool      `json:"margin_call"`
	OpenTrades int       `json:"open_trades"`
}

// TradeClosedListener is told about trades the engine closed on its own
// (stop-loss, take-profit, liquidation), after the turn that closed them.
type TradeClosedListener interface {
	OnTradeClosed(t broker.Trade)
}

// Engine is the ledger core. It holds no locks: callers run one settlement
// turn or close call at a time (see backtest.Runner and live.Driver).
type Engine struct {
	cfg         Config
	instruments market.Instruments
	primary     string

	cash       float64
	equity     float64
	marginUsed float64
	marginCall bool

	trades  []*broker.Trade // open, oldest first
	closed  []broker.Trade
	pending []*broker.Order // resting entry orders, submission order
	orders  map[broker.OrderID]*broker.Order

	nextOrder broker.OrderID
	nextTrade broker.TradeID

	last      map[string]market.Tick
	lastIndex map[string]int
	index     int
	now       time.Time

	curve         []EquityPoint
	maxUsage      float64
	maxConcurrent int

	journal  journal.Journal
	log      *slog.Logger
	listener TradeClosedListener
}

var _ broker.Broker = (*Engine)(nil)

func NewEngine(cfg Config, j journal.Journal) (*Engine, error) {
	if cfg.Cash <= 0 {
		return nil, fmt.Errorf("sim: starting cash must be positive, got %g", cfg.Cash)
	}
	if cfg.CommissionPct < 0 || cfg.CommissionFlat < 0 || cfg.Spread < 0 || cfg.SlippagePct < 0 {
		return nil, fmt.Errorf("sim: execution costs must be non-negative")
	}
	if cfg.MaxPositionsPerSide < 0 {
		return nil, fmt.Errorf("sim: max positions per side must be non-negative")
	}
	reg, err := market.NewInstruments(cfg.Instruments...)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("sim: at least one instrument is required")
	}

	primary := cfg.Primary
	if primary == "" {
		primary = cfg.Instruments[0].Name
	}
	if _, ok := reg[primary]; !ok {
		return nil, fmt.Errorf("sim: primary instrument %q is not registered", primary)
	}

	if j == nil {
		j = journal.Discard
	}

	return &Engine{
		cfg:         cfg,
		instruments: reg,
		primary:     primary,
		cash:        cfg.Cash,
		equity:      cfg.Cash,
		orders:      make(map[broker.OrderID]*broker.Order),
		last:        make(map[string]market.Tick),
		lastIndex:   make(map[string]int),
		index:       -1,
		journal:     j,
		log:         slog.Default(),
	}, nil
}

func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.log = l
	}
}

func (e *Engine) SetTradeClosedListener(l TradeClosedListener) {
	e.listener = l
}

func (e *Engine) Primary() string                 { return e.primary }
func (e *Engine) Instruments() market.Instruments { return e.instruments }
func (e *Engine) InitialCash() float64            { return e.cfg.Cash }

func (e *Engine) Cash() float64      { return e.cash }
func (e *Engine) Equity() float64    { return e.equity }
func (e *Engine) IsMarginCall() bool { return e.marginCall }
func (e *Engine) Index() int         { return e.index }
func (e *Engine) Time() time.Time    { return e.now }
func (e *Engine) MarginUsed() float64 {
	return e.marginUsed
}

func (e *Engine) Account() broker.Account {
	return broker.Account{
		Cash:        e.cash,
		Equity:      e.equity,
		MarginUsed:  e.marginUsed,
		FreeMargin:  e.equity - e.marginUsed,
		MarginCall:  e.marginCall,
		OpenTrades:  len(e.trades),
		ClosedCount: len(e.closed),
	}
}

// Trades returns copies of the open trades, oldest first.
func (e *Engine) Trades() []broker.Trade {
	out := make([]broker.Trade, len(e.trades))
	for i, t := range e.trades {
		out[i] = t.Clone()
	}
	return out
}

// ClosedTrades returns copies of the closed trades in closing order.
func (e *Engine) ClosedTrades() []broker.Trade {
	out := make([]broker.Trade, len(e.closed))
	for i, t := range e.closed {
		out[i] = t.Clone()
	}
	return out
}

func (e *Engine) PendingOrders() []broker.Order {
	out := make([]broker.Order, len(e.pending))
	for i, o := range e.pending {
		out[i] = o.Clone()
	}
	return out
}

// Order looks up a resting entry order or a live contingent child.
func (e *Engine) Order(id broker.OrderID) (broker.Order, bool) {
	if o, ok := e.orders[id]; ok {
		return o.Clone(), true
	}
	for _, o := range e.pending {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return broker.Order{}, false
}

func (e *Engine) LastTick(instrument string) (market.Tick, bool) {
	tk, ok := e.last[instrument]
	return tk, ok
}

func (e *Engine) Updated(instrument string) bool {
	i, ok := e.lastIndex[instrument]
	return ok && i == e.index
}

func (e *Engine) Instrument(name string) (market.Instrument, bool) {
	return e.instruments.Lookup(name)
}

func (e *Engine) EquityCurve() []EquityPoint {
	out := make([]EquityPoint, len(e.curve))
	copy(out, e.curve)
	return out
}

func (e *Engine) MaxMarginUsage() float64  { return e.maxUsage }
func (e *Engine) MaxConcurrentTrades() int { return e.maxConcurrent }

func (e *Engine) openIndex(id broker.TradeID) int {
	for i, t := range e.trades {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) instrument(name string) market.Instrument {
	in, ok := e.instruments[name]
	if !ok {
		panic(fmt.Sprintf("sim: trade on unregistered instrument %q", name))
	}
	return in
}

func (e *Engine) recordTrade(t broker.Trade) error {
	rec := journal.TradeRecord{
		TradeID:    t.ID.String(),
		Instrument: t.Instrument,
		Size:       t.Size,
		EntryPrice: t.EntryPrice,
		EntryIndex: t.EntryIndex,
		EntryTime:  t.EntryTime,
		ExitTime:   t.ExitTime,
		Commission: t.Commission,
		PnL:        t.PnL(),
		Reason:     string(t.Reason),
	}
	if t.ExitPrice != nil {
		rec.ExitPrice = *t.ExitPrice
	}
	if t.ExitIndex != nil {
		rec.ExitIndex = *t.ExitIndex
	}
	if err := e.journal.RecordTrade(rec); err != nil {
		return fmt.Errorf("journal trade %s: %w", t.ID, err)
	}
	return nil
}

func (e *Engine) notify(closed []broker.Trade) {
	if e.listener == nil {
		return
	}
	for _, t := range closed {
		e.listener.OnTradeClosed(t)
	}
}

func joinErr(err, next error) error {
	if next == nil {
		return err
	}
	return errors.Join(err, next)
}
