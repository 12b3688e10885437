package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder checks that turns never overlap and remembers their indexes.
type recorder struct {
	inflight atomic.Int32
	overlap  atomic.Bool
	mu       sync.Mutex
	indexes  []int
	onNext   func(index int) error
}

func (r *recorder) Init(broker.Broker, market.Series) error { return nil }

func (r *recorder) Next(_ broker.Broker, index int) error {
	if r.inflight.Add(1) != 1 {
		r.overlap.Store(true)
	}
	defer r.inflight.Add(-1)

	r.mu.Lock()
	r.indexes = append(r.indexes, index)
	r.mu.Unlock()
	if r.onNext != nil {
		return r.onNext(index)
	}
	return nil
}

func newEngine(t *testing.T, cash float64, in market.Instrument) *sim.Engine {
	t.Helper()
	e, err := sim.NewEngine(sim.Config{Cash: cash, Instruments: []market.Instrument{in}}, nil)
	require.NoError(t, err)
	return e
}

func price(inst string, p float64) market.Event {
	return market.Event{Ticks: []market.Tick{{Instrument: inst, Open: p, High: p, Low: p, Close: p}}}
}

func start(t *testing.T, d *Driver, ctx context.Context) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	return errc
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop")
		return nil
	}
}

func TestNewDriver_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewDriver(nil, &recorder{}, Options{})
	assert.Error(t, err)
	_, err = NewDriver(newEngine(t, 1000, market.Instrument{Name: "X"}), nil, Options{})
	assert.Error(t, err)
}

func TestDriver_SerializesConcurrentProducers(t *testing.T) {
	t.Parallel()

	const producers, each = 4, 50
	e := newEngine(t, 1000, market.Instrument{Name: "X"})
	rec := &recorder{}
	d, err := NewDriver(e, rec, Options{QueueSize: 8})
	require.NoError(t, err)

	errc := start(t, d, context.Background())

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				assert.NoError(t, d.Publish(context.Background(), price("X", float64(100+p))))
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return d.Snapshot().Processed == producers*each }, 5*time.Second, 5*time.Millisecond)
	d.Stop()
	require.NoError(t, wait(t, errc))

	assert.False(t, rec.overlap.Load())
	require.Len(t, rec.indexes, producers*each)
	for i, idx := range rec.indexes {
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, producers*each-1, e.Index())
	assert.Len(t, e.EquityCurve(), producers*each)
}

func TestDriver_StopTakesEffectBetweenTurns(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 1000, market.Instrument{Name: "X"})
	rec := &recorder{}
	d, err := NewDriver(e, rec, Options{})
	require.NoError(t, err)
	rec.onNext = func(index int) error {
		if index == 2 {
			d.Stop()
		}
		return nil
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, d.TryPublish(price("X", 100)))
	}
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, []int{0, 1, 2}, rec.indexes)
	snap := d.Snapshot()
	assert.Equal(t, 3, snap.Processed)
	assert.Equal(t, 2, snap.Index)

	assert.ErrorIs(t, d.Publish(context.Background(), price("X", 1)), ErrQueueClosed)
	assert.ErrorIs(t, d.TryPublish(price("X", 1)), ErrQueueClosed)
}

func TestDriver_TryPublishFull(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(newEngine(t, 1000, market.Instrument{Name: "X"}), &recorder{}, Options{QueueSize: 1})
	require.NoError(t, err)

	require.NoError(t, d.TryPublish(price("X", 1)))
	assert.ErrorIs(t, d.TryPublish(price("X", 1)), ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Publish(ctx, price("X", 1)), context.DeadlineExceeded)
}

func TestDriver_ContextCancel(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(newEngine(t, 1000, market.Instrument{Name: "X"}), &recorder{}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := start(t, d, ctx)
	cancel()
	assert.ErrorIs(t, wait(t, errc), context.Canceled)
}

func TestDriver_RunTwice(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(newEngine(t, 1000, market.Instrument{Name: "X"}), &recorder{}, Options{})
	require.NoError(t, err)

	errc := start(t, d, context.Background())
	require.Eventually(t, d.running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, d.Run(context.Background()), ErrRunning)

	d.Stop()
	require.NoError(t, wait(t, errc))
}

func TestDriver_StrategyErrorEndsSession(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	rec := &recorder{onNext: func(int) error { return boom }}
	d, err := NewDriver(newEngine(t, 1000, market.Instrument{Name: "X"}), rec, Options{})
	require.NoError(t, err)

	require.NoError(t, d.TryPublish(price("X", 1)))
	require.NoError(t, d.TryPublish(price("X", 1)))
	err = d.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0}, rec.indexes)
}

func TestDriver_LiquidatesOnMarginCall(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 1000, market.Instrument{Name: "X", Leverage: 10})
	s := strategies.NewOpenOnce(strategies.Params{Instrument: "X", Size: 90})
	d, err := NewDriver(e, s, Options{LiquidateOnMarginCall: true})
	require.NoError(t, err)

	require.NoError(t, d.TryPublish(price("X", 100)))
	require.NoError(t, d.TryPublish(price("X", 98)))

	errc := start(t, d, context.Background())
	require.Eventually(t, func() bool { return d.Snapshot().Processed == 2 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()
	require.NoError(t, wait(t, errc))
	require.NoError(t, s.Err())

	snap := d.Snapshot()
	assert.Equal(t, 1, snap.Liquidated)
	assert.Empty(t, snap.Open)
	assert.False(t, snap.Account.MarginCall)
	assert.InDelta(t, 820, snap.Account.Cash, 1e-9)

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, broker.ReasonLiquidation, closed[0].Reason)
}

func TestDriver_CloseOnStop(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 1000, market.Instrument{Name: "X"})
	s := strategies.NewOpenOnce(strategies.Params{Instrument: "X", Size: 1})
	d, err := NewDriver(e, s, Options{CloseOnStop: true})
	require.NoError(t, err)

	require.NoError(t, d.TryPublish(price("X", 100)))
	require.NoError(t, d.TryPublish(price("X", 105)))

	errc := start(t, d, context.Background())
	require.Eventually(t, func() bool { return d.Snapshot().Processed == 2 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()
	require.NoError(t, wait(t, errc))

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, broker.ReasonCloseAll, closed[0].Reason)
	assert.InDelta(t, 5, closed[0].PnL(), 1e-9)
	assert.Empty(t, d.Snapshot().Open)
	assert.InDelta(t, 1005, d.Snapshot().Account.Cash, 1e-9)
}

func TestDriver_DrainSettlesQueuedEvents(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d, err := NewDriver(newEngine(t, 1000, market.Instrument{Name: "X"}), rec, Options{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.TryPublish(price("X", float64(100+i))))
	}
	d.Drain()
	assert.ErrorIs(t, d.TryPublish(price("X", 1)), ErrQueueClosed)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.indexes)
	assert.Equal(t, 5, d.Snapshot().Processed)
}
