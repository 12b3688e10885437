// Package feed turns market data into market.Events: CSV files for
// backtests, and replayed series or a websocket quote stream for live
// sessions.
package feed

import (
	"context"
	"time"

	"github.com/rustyeddy/tradecore/market"
)

// Publisher accepts events for settlement. live.Driver implements it.
type Publisher interface {
	Publish(ctx context.Context, ev market.Event) error
}

// Replay publishes a preloaded series in order, one event every interval
// (or as fast as the publisher accepts them when interval is 0).
func Replay(ctx context.Context, s market.Series, pub Publisher, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for _, ev := range s {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := pub.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
