package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest consensus price.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assetIDs []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides short-lived leases keyed by target resource. Agents
// must hold the lease for a resource before executing a state-changing
// action on it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BudgetLedger tracks daily spend counters with atomic reservation. Reserve
// must be a single atomic read-modify-write so concurrent spenders can never
// oversubscribe the budget. Counters reset on a fixed UTC-midnight schedule
// via ResetDay, not lazily on read.
type BudgetLedger interface {
	Reserve(ctx context.Context, key string, amount, dailyLimit float64) (remaining float64, err error)
	Release(ctx context.Context, key string, amount float64) error
	Spent(ctx context.Context, key string) (float64, error)
	ResetDay(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for the behavioral event
// feed and cross-component notifications.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
