// Package live runs a strategy against asynchronously arriving market
// events. Producers publish from any goroutine; one consumer settles each
// event and runs the strategy before taking the next, so the engine never
// sees two turns at once.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/strategies"
)

var (
	ErrQueueFull   = errors.New("live: event queue full")
	ErrQueueClosed = errors.New("live: event queue closed")
	ErrRunning     = errors.New("live: driver already running")
)

const defaultQueueLen = 1024

type Options struct {
	QueueSize int // default 1024

	// LiquidateOnMarginCall closes the worst open trade, repeatedly,
	// after each turn that ends in a margin call.
	LiquidateOnMarginCall bool

	// CloseOnStop closes every open trade at market when the session ends.
	CloseOnStop bool
}

// Snapshot is a consistent view of the ledger taken after a turn.
type Snapshot struct {
	Index      int            `json:"index"`
	Time       time.Time      `json:"time"`
	Account    broker.Account `json:"account"`
	Open       []broker.Trade `json:"open"`
	Processed  int            `json:"processed"`
	Liquidated int            `json:"liquidated"`
}

type Driver struct {
	engine   *sim.Engine
	strategy strategies.Strategy
	opts     Options
	log      *slog.Logger

	queue     chan market.Event
	done      chan struct{}
	stopOnce  sync.Once
	drain     chan struct{}
	drainOnce sync.Once
	running   atomic.Bool

	// consumer-only state
	next       int
	processed  int
	liquidated int

	mu   sync.RWMutex // guards snap; readers are outside the loop
	snap Snapshot
}

func NewDriver(e *sim.Engine, s strategies.Strategy, opts Options) (*Driver, error) {
	if e == nil {
		return nil, fmt.Errorf("live: Engine is required")
	}
	if s == nil {
		return nil, fmt.Errorf("live: Strategy is required")
	}
	n := opts.QueueSize
	if n <= 0 {
		n = defaultQueueLen
	}
	d := &Driver{
		engine:   e,
		strategy: s,
		opts:     opts,
		log:      slog.Default(),
		queue:    make(chan market.Event, n),
		done:     make(chan struct{}),
		drain:    make(chan struct{}),
	}
	d.snapshot()
	return d, nil
}

func (d *Driver) SetLogger(l *slog.Logger) {
	if l != nil {
		d.log = l
	}
}

// Publish enqueues ev, waiting for room. The event's Index is ignored;
// the driver numbers events in the order it settles them.
func (d *Driver) Publish(ctx context.Context, ev market.Event) error {
	if d.stopped() {
		return ErrQueueClosed
	}
	select {
	case <-d.done:
		return ErrQueueClosed
	case <-d.drain:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case d.queue <- ev:
		return nil
	}
}

// TryPublish enqueues ev without blocking.
func (d *Driver) TryPublish(ev market.Event) error {
	if d.stopped() {
		return ErrQueueClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain stops accepting events; Run returns once everything already
// queued has been settled.
func (d *Driver) Drain() {
	d.drainOnce.Do(func() { close(d.drain) })
}

// Stop asks Run to return after the turn in progress. Safe to call more
// than once and from any goroutine.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *Driver) stopped() bool {
	select {
	case <-d.done:
		return true
	case <-d.drain:
		return true
	default:
		return false
	}
}

// Snapshot returns the state as of the last completed turn.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.snap
	s.Open = append([]broker.Trade(nil), d.snap.Open...)
	return s
}

// Run consumes events until Stop or Drain (returns nil), ctx is cancelled
// (returns ctx.Err()) or the strategy fails. Cancellation is only observed between
// turns, so the ledger is always fully settled when Run returns. Events
// still queued at that point are dropped.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer d.running.Store(false)

	if l, ok := d.strategy.(strategies.TradeClosedListener); ok {
		d.engine.SetTradeClosedListener(l)
	}
	if err := d.strategy.Init(d.engine, nil); err != nil {
		return fmt.Errorf("live: init strategy: %w", err)
	}
	d.next = d.engine.Index() + 1

	d.log.Info("live session started", "primary", d.engine.Primary(), "cash", d.engine.Cash())

	var err error
loop:
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-d.done:
			break loop
		default:
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-d.done:
			break loop
		case ev := <-d.queue:
			if terr := d.turn(ev); terr != nil {
				err = terr
				break loop
			}
		case <-d.drain:
			err = d.drainQueue(ctx)
			break loop
		}
	}

	d.Stop()
	d.finish()
	d.log.Info("live session stopped",
		"processed", d.processed,
		"dropped", len(d.queue),
		"equity", d.engine.Equity(),
		"err", err,
	)
	return err
}

func (d *Driver) drainQueue(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-d.done:
			return nil
		case ev := <-d.queue:
			if err := d.turn(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (d *Driver) turn(ev market.Event) error {
	ev.Index = d.next
	d.next++
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	// Journal failures are reported but never stop the session.
	if err := d.engine.Settle(ev); err != nil {
		d.log.Error("settle", "index", ev.Index, "err", err)
	}
	if err := d.strategy.Next(d.engine, ev.Index); err != nil {
		return fmt.Errorf("live: strategy at %d: %w", ev.Index, err)
	}
	if d.opts.LiquidateOnMarginCall {
		d.liquidate()
	}

	d.processed++
	d.snapshot()
	return nil
}

// liquidate closes the worst trade first until the margin call clears.
func (d *Driver) liquidate() {
	for d.engine.IsMarginCall() {
		t, ok := d.engine.WorstTrade()
		if !ok {
			return
		}
		if _, err := d.engine.Liquidate(t.ID); err != nil {
			d.log.Error("liquidate", "trade", t.ID, "err", err)
		}
		d.liquidated++
	}
}

func (d *Driver) finish() {
	if d.opts.CloseOnStop && len(d.engine.Trades()) > 0 {
		if _, err := d.engine.CloseAllAtMarket(d.engine.Index(), broker.ReasonCloseAll); err != nil {
			d.log.Error("close on stop", "err", err)
		}
	}
	d.snapshot()
}

func (d *Driver) snapshot() {
	s := Snapshot{
		Index:      d.engine.Index(),
		Time:       d.engine.Time(),
		Account:    d.engine.Account(),
		Open:       d.engine.Trades(),
		Processed:  d.processed,
		Liquidated: d.liquidated,
	}
	d.mu.Lock()
	d.snap = s
	d.mu.Unlock()
}
