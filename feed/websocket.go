package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/tradecore/market"
)

// QuoteStream subscribes to a websocket quote server and publishes every
// price message as one event. Messages look like
//
//	{"type":"price","time":"2024-01-02T15:04:05Z","instrument":"EUR_USD","bid":"1.1","ask":"1.1002"}
//	{"type":"prices","time":"...","prices":[{"instrument":"EUR_USD","bid":"...","ask":"..."}, ...]}
//	{"type":"heartbeat"}
//
// Reconnects are the caller's business: Run returns when the connection
// drops and may simply be called again.
type QuoteStream struct {
	URL         string
	Instruments []string
	Header      http.Header

	Dialer *websocket.Dialer // nil uses websocket.DefaultDialer

	// ReadTimeout bounds the wait for the next message; 0 waits forever.
	ReadTimeout time.Duration

	Log *slog.Logger
}

type subscribeMsg struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments"`
}

type priceMsg struct {
	Type       string      `json:"type"`
	Time       string      `json:"time"`
	Instrument string      `json:"instrument"`
	Bid        json.Number `json:"bid"`
	Ask        json.Number `json:"ask"`
	Prices     []priceMsg  `json:"prices"`
}

// Run dials, subscribes and publishes until ctx is cancelled (returns
// ctx.Err()), the server closes normally (returns nil) or a read or
// publish fails.
func (q *QuoteStream) Run(ctx context.Context, pub Publisher) error {
	if q.URL == "" {
		return fmt.Errorf("feed: quote stream URL is required")
	}
	if len(q.Instruments) == 0 {
		return fmt.Errorf("feed: quote stream needs at least one instrument")
	}
	log := q.Log
	if log == nil {
		log = slog.Default()
	}
	dialer := q.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, q.URL, q.Header)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", q.URL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub, _ := json.Marshal(subscribeMsg{Type: "subscribe", Instruments: q.Instruments})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	log.Info("quote stream connected", "url", q.URL, "instruments", q.Instruments)

	for {
		if q.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(q.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("quote stream closed by server")
				return nil
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		ev, ok, err := decodePrices(data)
		if err != nil {
			log.Warn("dropping bad quote message", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if err := pub.Publish(ctx, ev); err != nil {
			return err
		}
	}
}

func decodePrices(data []byte) (market.Event, bool, error) {
	var msg priceMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return market.Event{}, false, err
	}

	var items []priceMsg
	switch msg.Type {
	case "price":
		items = []priceMsg{msg}
	case "prices":
		items = msg.Prices
	default:
		return market.Event{}, false, nil
	}
	if len(items) == 0 {
		return market.Event{}, false, nil
	}

	ts := time.Now().UTC()
	if msg.Time != "" {
		t, err := time.Parse(time.RFC3339Nano, msg.Time)
		if err != nil {
			return market.Event{}, false, fmt.Errorf("bad time %q", msg.Time)
		}
		ts = t.UTC()
	}

	ev := market.Event{Time: ts, Ticks: make([]market.Tick, 0, len(items))}
	for _, it := range items {
		if it.Instrument == "" {
			return market.Event{}, false, errors.New("price without instrument")
		}
		bid, err := positive(it.Bid)
		if err != nil {
			return market.Event{}, false, fmt.Errorf("%s bid: %w", it.Instrument, err)
		}
		ask, err := positive(it.Ask)
		if err != nil {
			return market.Event{}, false, fmt.Errorf("%s ask: %w", it.Instrument, err)
		}
		if ask < bid {
			return market.Event{}, false, fmt.Errorf("%s crossed quote %g/%g", it.Instrument, bid, ask)
		}
		ev.Ticks = append(ev.Ticks, market.Tick{Instrument: it.Instrument, Bid: bid, Ask: ask})
	}
	return ev, true, nil
}

func positive(n json.Number) (float64, error) {
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive, got %g", v)
	}
	return v, nil
}
