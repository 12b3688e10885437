package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJournal struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
	fail   error
}

func (j *testJournal) RecordTrade(rec journal.TradeRecord) error {
	j.trades = append(j.trades, rec)
	return j.fail
}

func (j *testJournal) RecordEquity(rec journal.EquitySnapshot) error {
	j.equity = append(j.equity, rec)
	return j.fail
}

func (j *testJournal) Close() error { return nil }

type mockListener struct {
	closed []broker.Trade
}

func (m *mockListener) OnTradeClosed(t broker.Trade) {
	m.closed = append(m.closed, t)
}

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, cfg Config) (*Engine, *testJournal) {
	t.Helper()
	if cfg.Cash == 0 {
		cfg.Cash = 10000
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = []market.Instrument{{Name: "SPY"}}
	}
	j := &testJournal{}
	e, err := NewEngine(cfg, j)
	require.NoError(t, err)
	return e, j
}

func bar(inst string, o, h, l, c float64) market.Tick {
	return market.Tick{Instrument: inst, Open: o, High: h, Low: l, Close: c}
}

func flat(inst string, p float64) market.Tick {
	return bar(inst, p, p, p, p)
}

func quote(inst string, bid, ask float64) market.Tick {
	return market.Tick{Instrument: inst, Bid: bid, Ask: ask}
}

func settle(t *testing.T, e *Engine, index int, ticks ...market.Tick) {
	t.Helper()
	require.NoError(t, e.Settle(market.Event{
		Index: index,
		Time:  t0.Add(time.Duration(index) * time.Hour),
		Ticks: ticks,
	}))
}

func submit(t *testing.T, e *Engine, o broker.Order) broker.OrderID {
	t.Helper()
	id, err := e.Submit(o)
	require.NoError(t, err)
	return id
}

// checkLedger asserts every trade sits in exactly one set and cash equals
// starting cash plus realized P&L.
func checkLedger(t *testing.T, e *Engine) {
	t.Helper()

	seen := map[broker.TradeID]int{}
	for _, tr := range e.Trades() {
		assert.True(t, tr.IsOpen())
		seen[tr.ID]++
	}
	realized := 0.0
	for _, tr := range e.ClosedTrades() {
		assert.False(t, tr.IsOpen())
		seen[tr.ID]++
		realized += tr.PnL()
	}
	for id := broker.TradeID(1); id <= e.nextTrade; id++ {
		assert.Equal(t, 1, seen[id], "trade %s", id)
	}
	assert.InDelta(t, e.InitialCash()+realized, e.Cash(), 1e-9)
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{"no cash", Config{Instruments: []market.Instrument{{Name: "A"}}}, "starting cash"},
		{"no instruments", Config{Cash: 1}, "at least one instrument"},
		{"bad primary", Config{Cash: 1, Primary: "B", Instruments: []market.Instrument{{Name: "A"}}}, "primary instrument"},
		{"duplicate instrument", Config{Cash: 1, Instruments: []market.Instrument{{Name: "A"}, {Name: "A"}}}, "registered twice"},
		{"negative costs", Config{Cash: 1, SlippagePct: -1, Instruments: []market.Instrument{{Name: "A"}}}, "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMarketOrderStopLossLifecycle(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))

	submit(t, e, broker.Order{Size: 10, StopLoss: broker.Ptr(95)})
	open := e.Trades()
	require.Len(t, open, 1)
	assert.Equal(t, 100.0, open[0].EntryPrice)
	assert.Equal(t, 0, open[0].EntryIndex)
	assert.Equal(t, "SPY", open[0].Instrument)

	sl, ok := e.Order(open[0].SLOrder)
	require.True(t, ok)
	assert.Equal(t, open[0].ID, sl.ParentTrade)
	assert.Equal(t, -10.0, sl.Size)

	settle(t, e, 1, bar("SPY", 99, 101, 94, 96))

	assert.Empty(t, e.Trades())
	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, 95.0, *closed[0].ExitPrice)
	assert.Equal(t, 1, *closed[0].ExitIndex)
	assert.Equal(t, broker.ReasonStopLoss, closed[0].Reason)
	assert.InDelta(t, -50, closed[0].PnL(), 1e-9)
	assert.InDelta(t, 9950, e.Cash(), 1e-9)

	_, ok = e.Order(open[0].SLOrder)
	assert.False(t, ok, "child order must be dropped on close")

	require.Len(t, j.trades, 1)
	assert.Equal(t, "StopLoss", j.trades[0].Reason)
	assert.Len(t, j.equity, 2)
	checkLedger(t, e)
}

func TestCommissionReducesPnL(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{CommissionPct: 0.001, CommissionFlat: 1})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 10, StopLoss: broker.Ptr(95)})
	settle(t, e, 1, bar("SPY", 99, 101, 94, 96))

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	// entry 10*100*0.001+1 = 2, exit 10*95*0.001+1 = 1.95
	assert.InDelta(t, 3.95, closed[0].Commission, 1e-9)
	assert.InDelta(t, -53.95, closed[0].PnL(), 1e-9)
	assert.InDelta(t, 10000-53.95, e.Cash(), 1e-9)
	checkLedger(t, e)
}

func TestSameBarStopLossBeatsTakeProfit(t *testing.T) {
	t.Parallel()

	for _, size := range []float64{5, -5} {
		e, _ := newEngine(t, Config{})
		settle(t, e, 0, flat("SPY", 100))

		o := broker.Order{Size: size, StopLoss: broker.Ptr(98), TakeProfit: broker.Ptr(104)}
		if size < 0 {
			o.StopLoss, o.TakeProfit = broker.Ptr(102), broker.Ptr(96)
		}
		submit(t, e, o)
		settle(t, e, 1, bar("SPY", 100, 105, 95, 101))

		closed := e.ClosedTrades()
		require.Len(t, closed, 1)
		assert.Equal(t, broker.ReasonStopLoss, closed[0].Reason)
		assert.Equal(t, *o.StopLoss, *closed[0].ExitPrice)
		assert.InDelta(t, -10, closed[0].PnL(), 1e-9)
	}
}

func TestTakeProfit(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: -2, StopLoss: broker.Ptr(110), TakeProfit: broker.Ptr(90)})

	settle(t, e, 1, bar("SPY", 99, 100, 91, 92))
	assert.Len(t, e.Trades(), 1)

	settle(t, e, 2, bar("SPY", 92, 93, 89, 90))
	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, broker.ReasonTakeProfit, closed[0].Reason)
	assert.InDelta(t, 20, closed[0].PnL(), 1e-9)
}

func TestStopLossGapFillsAtOpen(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1, StopLoss: broker.Ptr(95)})
	settle(t, e, 1, bar("SPY", 90, 92, 88, 91))

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, 90.0, *closed[0].ExitPrice)
}

func TestMarginRejection(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{
		Cash:        1000,
		Instruments: []market.Instrument{{Name: "SPY", Leverage: 2}},
	})
	settle(t, e, 0, flat("SPY", 100))

	_, err := e.Submit(broker.Order{Size: 50})
	require.Error(t, err)
	assert.True(t, errors.Is(err, broker.ErrInsufficientMargin))
	assert.Equal(t, broker.ReasonInsufficientMargin, broker.Reason(err))
	assert.Empty(t, e.Trades())
	assert.Equal(t, 1000.0, e.Cash())

	// 20 * 100 / 2 = 1000 fits exactly.
	submit(t, e, broker.Order{Size: 20})
	assert.InDelta(t, 1000, e.MarginUsed(), 1e-9)

	_, err = e.Submit(broker.Order{Size: 0.5})
	assert.ErrorIs(t, err, broker.ErrInsufficientMargin)
}

func TestSubmitValidationOrder(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{
		Cash:                1000,
		MaxPositionsPerSide: 1,
		Instruments:         []market.Instrument{{Name: "SPY"}, {Name: "QQQ"}},
	})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1})

	tests := []struct {
		name  string
		order broker.Order
		want  error
	}{
		{"zero size", broker.Order{Size: 0, Instrument: "NOPE"}, broker.ErrZeroSize},
		{"unknown instrument", broker.Order{Size: 1e9, Instrument: "NOPE"}, broker.ErrUnknownInstrument},
		{"no price", broker.Order{Size: 1, Instrument: "QQQ"}, broker.ErrNoPrice},
		{"margin before trigger", broker.Order{Size: 100, Limit: broker.Ptr(120)}, broker.ErrInsufficientMargin},
		{"sell limit below price", broker.Order{Size: -1, Limit: broker.Ptr(90)}, broker.ErrInvalidTrigger},
		{"buy stop below price", broker.Order{Size: 1, Stop: broker.Ptr(90)}, broker.ErrInvalidTrigger},
		{"stop loss below short entry", broker.Order{Size: -1, StopLoss: broker.Ptr(90)}, broker.ErrInvalidTrigger},
		{"position cap", broker.Order{Size: 1}, broker.ErrPositionCapExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Submit(tt.order)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Len(t, e.Trades(), 1)
	assert.Empty(t, e.PendingOrders())
}

func TestPairsTradeLegsAreIndependent(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{
		Cash:        100000,
		Primary:     "A",
		Instruments: []market.Instrument{{Name: "A"}, {Name: "B"}},
	})
	settle(t, e, 0, flat("A", 100), flat("B", 50))

	submit(t, e, broker.Order{Instrument: "A", Size: 10})
	submit(t, e, broker.Order{Instrument: "B", Size: -10})

	open := e.Trades()
	require.Len(t, open, 2)
	assert.Equal(t, 100.0, open[0].EntryPrice)
	assert.Equal(t, 50.0, open[1].EntryPrice)
	assert.Equal(t, open[0].EntryIndex, open[1].EntryIndex)

	settle(t, e, 1, flat("A", 110), flat("B", 55))
	closed, err := e.CloseTrade(open[0].ID, 110, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100, closed.PnL(), 1e-9)

	rest := e.Trades()
	require.Len(t, rest, 1)
	assert.Equal(t, open[1].ID, rest[0].ID)
	assert.Equal(t, -10.0, rest[0].Size)
	assert.InDelta(t, 100000+100-50, e.Equity(), 1e-9)
	checkLedger(t, e)
}

func TestCloseTradeUnknown(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1})

	_, err := e.CloseTrade(99, 100, 0)
	assert.ErrorIs(t, err, broker.ErrUnknownTrade)

	tr := e.Trades()[0]
	_, err = e.CloseTrade(tr.ID, 101, 0)
	require.NoError(t, err)

	_, err = e.CloseTrade(tr.ID, 101, 0)
	assert.ErrorIs(t, err, broker.ErrUnknownTrade)
	checkLedger(t, e)
}

func TestCloseAllTradesIsIdempotent(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1, TakeProfit: broker.Ptr(120)})
	submit(t, e, broker.Order{Size: -2})
	submit(t, e, broker.Order{Size: 0.5})

	closed, err := e.CloseAllTrades(105, 3)
	require.NoError(t, err)
	require.Len(t, closed, 3)
	for i, tr := range closed {
		assert.Equal(t, broker.TradeID(i+1), tr.ID, "oldest first")
		assert.Equal(t, 3, *tr.ExitIndex)
	}
	assert.Empty(t, e.Trades())
	assert.Len(t, e.ClosedTrades(), 3)
	cash := e.Cash()
	assert.InDelta(t, 10000+5-10+2.5, cash, 1e-9)

	again, err := e.CloseAllTrades(105, 4)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, e.ClosedTrades(), 3)
	assert.Equal(t, cash, e.Cash())
	assert.Len(t, j.trades, 3)
	checkLedger(t, e)
}

func TestCloseAllAtMarketUsesEachInstrument(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{
		Cash:        100000,
		Instruments: []market.Instrument{{Name: "A"}, {Name: "B", Multiplier: 10}},
	})
	settle(t, e, 0, flat("A", 100), flat("B", 50))
	submit(t, e, broker.Order{Instrument: "A", Size: 1})
	submit(t, e, broker.Order{Instrument: "B", Size: 1})
	settle(t, e, 1, flat("A", 101), flat("B", 52))

	closed, err := e.CloseAllAtMarket(1, broker.ReasonEndOfData)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, 101.0, *closed[0].ExitPrice)
	assert.Equal(t, 52.0, *closed[1].ExitPrice)
	assert.InDelta(t, 20, closed[1].PnL(), 1e-9)
	assert.Equal(t, broker.ReasonEndOfData, closed[1].Reason)
	checkLedger(t, e)
}

func TestPendingLimitEntry(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1, Limit: broker.Ptr(95), StopLoss: broker.Ptr(94)})
	assert.Empty(t, e.Trades())
	require.Len(t, e.PendingOrders(), 1)

	settle(t, e, 1, bar("SPY", 99, 100, 96, 97))
	assert.Empty(t, e.Trades())

	// Fills at the limit; the stop-loss is not checked on the fill bar.
	settle(t, e, 2, bar("SPY", 97, 98, 94, 96))
	open := e.Trades()
	require.Len(t, open, 1)
	assert.Equal(t, 95.0, open[0].EntryPrice)
	assert.Equal(t, 2, open[0].EntryIndex)
	assert.Empty(t, e.PendingOrders())

	settle(t, e, 3, bar("SPY", 96, 97, 93, 95))
	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, 94.0, *closed[0].ExitPrice)
	checkLedger(t, e)
}

func TestPendingStopEntryGapAndSlippage(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{SlippagePct: 0.01})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: -1, Stop: broker.Ptr(95)})

	settle(t, e, 1, bar("SPY", 90, 91, 88, 89))
	open := e.Trades()
	require.Len(t, open, 1)
	assert.InDelta(t, 90*0.99, open[0].EntryPrice, 1e-9)
}

func TestStopLimitEntry(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1, Stop: broker.Ptr(105), Limit: broker.Ptr(103)})

	// Stop trades but the bar never comes back to the limit.
	settle(t, e, 1, bar("SPY", 104, 107, 104, 106))
	assert.Empty(t, e.Trades())
	pending := e.PendingOrders()
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].Stop)

	settle(t, e, 2, bar("SPY", 105, 106, 102, 103))
	open := e.Trades()
	require.Len(t, open, 1)
	assert.Equal(t, 103.0, open[0].EntryPrice)
}

func TestTradeOnOpenWithSpread(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{TradeOnOpen: true, Spread: 0.2})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1})
	assert.Empty(t, e.Trades())

	settle(t, e, 1, bar("SPY", 101, 102, 100, 101.5))
	open := e.Trades()
	require.Len(t, open, 1)
	assert.InDelta(t, 101.1, open[0].EntryPrice, 1e-9)
	assert.Equal(t, 1, open[0].EntryIndex)
}

func TestQuotesFillOnTheRightSide(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{
		Cash:        100000,
		Instruments: []market.Instrument{{Name: "EUR_USD", Leverage: 50}},
	})
	settle(t, e, 0, quote("EUR_USD", 1.1000, 1.1002))

	submit(t, e, broker.Order{Size: 10000, StopLoss: broker.Ptr(1.0990)})
	submit(t, e, broker.Order{Size: -10000})
	open := e.Trades()
	require.Len(t, open, 2)
	assert.Equal(t, 1.1002, open[0].EntryPrice)
	assert.Equal(t, 1.1000, open[1].EntryPrice)

	// Ask touches the stop, bid does not: the long survives.
	settle(t, e, 1, quote("EUR_USD", 1.0991, 1.0993))
	assert.Len(t, e.Trades(), 2)

	settle(t, e, 2, quote("EUR_USD", 1.0988, 1.0990))
	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, 1.0988, *closed[0].ExitPrice, "gapped through the stop on the bid")
	checkLedger(t, e)
}

func TestMarginCallFlag(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, Config{
		Cash:        1000,
		Instruments: []market.Instrument{{Name: "SPY", Leverage: 2}},
	})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 15})
	assert.False(t, e.IsMarginCall())

	settle(t, e, 1, flat("SPY", 60))
	assert.InDelta(t, 400, e.Equity(), 1e-9)
	assert.True(t, e.IsMarginCall())
	assert.True(t, j.equity[1].MarginCall)
	assert.Len(t, e.Trades(), 1, "the engine never liquidates on its own")

	settle(t, e, 2, flat("SPY", 100))
	assert.False(t, e.IsMarginCall())

	curve := e.EquityCurve()
	require.Len(t, curve, 3)
	assert.True(t, curve[1].MarginCall)
	assert.InDelta(t, 450.0/400.0, e.MaxMarginUsage(), 1e-9)
	assert.Equal(t, 1, e.MaxConcurrentTrades())
}

func TestListenerAndLiquidate(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	l := &mockListener{}
	e.SetTradeClosedListener(l)

	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1, StopLoss: broker.Ptr(99)})
	submit(t, e, broker.Order{Size: -3})
	submit(t, e, broker.Order{Size: 1})

	// Explicit closes are not reported.
	_, err := e.CloseTrade(3, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, l.closed)

	settle(t, e, 1, bar("SPY", 100, 104, 98, 104))
	require.Len(t, l.closed, 1)
	assert.Equal(t, broker.ReasonStopLoss, l.closed[0].Reason)

	worst, ok := e.WorstTrade()
	require.True(t, ok)
	assert.Equal(t, broker.TradeID(2), worst.ID)

	ct, err := e.Liquidate(worst.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.ReasonLiquidation, ct.Reason)
	assert.Equal(t, 104.0, *ct.ExitPrice)
	require.Len(t, l.closed, 2)
	assert.Empty(t, e.Trades())
	checkLedger(t, e)
}

func TestScaleWithEquity(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{ScaleWithEquity: true})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 10})
	_, err := e.CloseTrade(1, 200, 0)
	require.NoError(t, err)

	submit(t, e, broker.Order{Size: 10})
	open := e.Trades()
	require.Len(t, open, 1)
	assert.InDelta(t, 11, open[0].Size, 1e-9)
}

func TestSettleRejectsStaleEvent(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 3, flat("SPY", 100))
	err := e.Settle(market.Event{Index: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not after")
}

func TestSettleIgnoresUnknownInstrument(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100), flat("XYZ", 5))
	_, ok := e.LastTick("XYZ")
	assert.False(t, ok)
	tk, ok := e.LastTick("SPY")
	require.True(t, ok)
	assert.Equal(t, 100.0, tk.Price())
	assert.True(t, e.Updated("SPY"))
	assert.False(t, e.Updated("XYZ"))
}

func TestUpdatedTracksCurrentEvent(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{
		Primary:     "A",
		Instruments: []market.Instrument{{Name: "A"}, {Name: "B", Multiplier: 5}},
	})
	settle(t, e, 0, flat("A", 1), flat("B", 2))
	settle(t, e, 1, flat("A", 3))

	assert.True(t, e.Updated("A"))
	assert.False(t, e.Updated("B"))
	tk, ok := e.LastTick("B")
	require.True(t, ok)
	assert.Equal(t, 2.0, tk.Price())

	in, ok := e.Instrument("B")
	require.True(t, ok)
	assert.Equal(t, 5.0, in.Multiplier)
	assert.Equal(t, 1.0, in.Leverage)
}

func TestJournalFailureStillSettles(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1, StopLoss: broker.Ptr(95)})

	j.fail = errors.New("disk full")
	err := e.Settle(market.Event{Index: 1, Ticks: []market.Tick{bar("SPY", 96, 97, 90, 91)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, e.Trades())
	assert.Len(t, e.ClosedTrades(), 1)
	checkLedger(t, e)
}

func TestCloseOfNonOpenTradePanics(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	assert.Panics(t, func() {
		_, _ = e.closeTrade(&broker.Trade{ID: 42, Instrument: "SPY", Size: 1}, 100, 0, broker.ReasonManual)
	})
}

func TestReturnedRecordsDoNotAliasLedger(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, Config{})
	settle(t, e, 0, flat("SPY", 100))
	submit(t, e, broker.Order{Size: 1})
	limitID := submit(t, e, broker.Order{Size: 1, Limit: broker.Ptr(95)})

	pending := e.PendingOrders()
	require.Len(t, pending, 1)
	*pending[0].Limit = 1
	o, ok := e.Order(limitID)
	require.True(t, ok)
	*o.Limit = 2
	o, _ = e.Order(limitID)
	assert.Equal(t, 95.0, *o.Limit)

	ct, err := e.CloseTrade(1, 110, 0)
	require.NoError(t, err)
	*ct.ExitPrice = 0
	*ct.ExitIndex = 7

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	*closed[0].ExitPrice = 0

	again := e.ClosedTrades()[0]
	assert.Equal(t, 110.0, *again.ExitPrice)
	assert.Equal(t, 0, *again.ExitIndex)
	assert.InDelta(t, 10, again.PnL(), 1e-9)
	assert.InDelta(t, 10010, e.Cash(), 1e-9)
	checkLedger(t, e)
}

func TestCloseBeforeEntryIndexIsRejected(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, Config{})
	for i := 0; i < 3; i++ {
		settle(t, e, i, flat("SPY", 100))
	}
	submit(t, e, broker.Order{Size: 1})
	require.Equal(t, 2, e.Trades()[0].EntryIndex)
	assert.Equal(t, broker.OrderID(1), e.Trades()[0].EntryOrder)

	_, err := e.CloseTrade(1, 101, 1)
	assert.ErrorIs(t, err, broker.ErrExitBeforeEntry)
	_, err = e.CloseAllTrades(101, 1)
	assert.ErrorIs(t, err, broker.ErrExitBeforeEntry)
	_, err = e.CloseAllAtMarket(0, broker.ReasonEndOfData)
	assert.ErrorIs(t, err, broker.ErrExitBeforeEntry)

	require.Len(t, e.Trades(), 1)
	assert.Empty(t, e.ClosedTrades())
	assert.Empty(t, j.trades)

	ct, err := e.CloseTrade(1, 101, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, ct.Bars())
	checkLedger(t, e)
}
