package fraud

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// Stream names for the behavioral event feed.
const (
	StreamStakes = "events:stake"
	StreamClicks = "events:click"
)

// ConsumerConfig holds the stream-read tuning.
type ConsumerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultConsumerConfig returns the production cadence.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		PollInterval: time.Second,
		BatchSize:    100,
	}
}

// stakeMessage is the wire form of a stake event on the stream.
type stakeMessage struct {
	Subject   string  `json:"subject"`
	Amount    float64 `json:"amount"`
	Wallet    string  `json:"wallet"`
	IP        string  `json:"ip"`
	Unstake   bool    `json:"unstake"`
	Timestamp int64   `json:"timestamp"`
}

// clickMessage is the wire form of a click event on the stream.
type clickMessage struct {
	Subject   string `json:"subject"`
	LinkID    string `json:"link_id"`
	IP        string `json:"ip"`
	Country   string `json:"country"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
	Timestamp int64  `json:"timestamp"`
}

// Consumer tails the behavioral event streams and feeds each entry through
// the engine. A malformed entry is logged and skipped; the stream position
// always advances.
type Consumer struct {
	cfg    ConsumerConfig
	bus    domain.SignalBus
	engine *Engine
	logger *slog.Logger

	lastStakeID string
	lastClickID string
}

// NewConsumer creates a consumer starting from the beginning of both
// streams.
func NewConsumer(cfg ConsumerConfig, bus domain.SignalBus, engine *Engine, logger *slog.Logger) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg = DefaultConsumerConfig()
	}
	return &Consumer{
		cfg:         cfg,
		bus:         bus,
		engine:      engine,
		logger:      logger.With(slog.String("component", "fraud_consumer")),
		lastStakeID: "0",
		lastClickID: "0",
	}
}

// Run tails both streams until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.logger.Info("fraud consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("fraud consumer stopped")
			return ctx.Err()
		case <-ticker.C:
			c.drainStakes(ctx)
			c.drainClicks(ctx)
		}
	}
}

func (c *Consumer) drainStakes(ctx context.Context) {
	msgs, err := c.bus.StreamRead(ctx, StreamStakes, c.lastStakeID, c.cfg.BatchSize)
	if err != nil {
		c.logger.Error("stake stream read failed", slog.Any("error", err))
		return
	}
	for _, msg := range msgs {
		c.lastStakeID = msg.ID

		var wire stakeMessage
		if err := json.Unmarshal(msg.Payload, &wire); err != nil {
			c.logger.Warn("malformed stake entry skipped",
				slog.String("id", msg.ID), slog.Any("error", err))
			continue
		}

		ev := domain.StakeEvent{
			Subject:            wire.Subject,
			Amount:             wire.Amount,
			CounterpartyWallet: wire.Wallet,
			IP:                 wire.IP,
			Unstake:            wire.Unstake,
			Timestamp:          time.Unix(wire.Timestamp, 0).UTC(),
		}
		if _, err := c.engine.AnalyzeStake(ctx, ev); err != nil {
			c.logger.Error("stake analysis failed",
				slog.String("subject", ev.Subject), slog.Any("error", err))
		}
	}
}

func (c *Consumer) drainClicks(ctx context.Context) {
	msgs, err := c.bus.StreamRead(ctx, StreamClicks, c.lastClickID, c.cfg.BatchSize)
	if err != nil {
		c.logger.Error("click stream read failed", slog.Any("error", err))
		return
	}
	for _, msg := range msgs {
		c.lastClickID = msg.ID

		var wire clickMessage
		if err := json.Unmarshal(msg.Payload, &wire); err != nil {
			c.logger.Warn("malformed click entry skipped",
				slog.String("id", msg.ID), slog.Any("error", err))
			continue
		}

		ev := domain.ClickEvent{
			Subject:   wire.Subject,
			LinkID:    wire.LinkID,
			IP:        wire.IP,
			Country:   wire.Country,
			UserAgent: wire.UserAgent,
			Referrer:  wire.Referrer,
			Timestamp: time.Unix(wire.Timestamp, 0).UTC(),
		}
		if _, err := c.engine.AnalyzeClick(ctx, ev); err != nil {
			c.logger.Error("click analysis failed",
				slog.String("subject", ev.Subject), slog.Any("error", err))
		}
	}
}
