package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twistlabs/guardian/internal/domain"
)

const (
	wsWriteWait        = 10 * time.Second
	wsPongWait         = 60 * time.Second
	wsPingPeriod       = (wsPongWait * 9) / 10
	wsHandshakeTimeout = 15 * time.Second
	wsReconnectDelay   = 2 * time.Second
)

// TickHandler is called for each pool trade observed on the stream.
type TickHandler func(ctx context.Context, tick domain.PoolTick)

// PoolTickFeed streams trades from the token's primary DEX pool over a
// websocket and invokes the handler for each tick. It reconnects with a
// fixed delay on disconnect and exits cleanly when the context is cancelled.
type PoolTickFeed struct {
	wsURL     string
	pool      string
	onTick    TickHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewPoolTickFeed creates a feed for the given pool address.
func NewPoolTickFeed(wsURL, pool string, onTick TickHandler, logger *slog.Logger) *PoolTickFeed {
	return &PoolTickFeed{
		wsURL:  wsURL,
		pool:   pool,
		onTick: onTick,
		logger: logger.With(slog.String("component", "pool_tick_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and consumes ticks until ctx is cancelled or Close is called.
func (f *PoolTickFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Warn("pool tick feed disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(wsReconnectDelay):
		}
	}
}

// tickMessage is the wire format for one trade event.
type tickMessage struct {
	Type      string  `json:"type"`
	Pool      string  `json:"pool"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"ts"`
}

func (f *PoolTickFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("chain: dial pool feed: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	sub := map[string]any{"op": "subscribe", "channel": "trades", "pool": f.pool}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("chain: subscribe pool feed: %w", err)
	}
	f.logger.Info("pool tick feed subscribed", slog.String("pool", f.pool))

	// Ping loop keeps the connection alive; it stops when the connection
	// drops and the read loop below returns.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("chain: read pool feed: %w", err)
		}

		var msg tickMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("skipping malformed tick", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != "trade" || msg.Price <= 0 {
			continue
		}

		if f.onTick != nil {
			f.onTick(ctx, domain.PoolTick{
				Price:     msg.Price,
				Volume:    msg.Volume,
				Timestamp: time.Unix(msg.Timestamp, 0).UTC(),
			})
		}
	}
}

// Close stops the feed.
func (f *PoolTickFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
