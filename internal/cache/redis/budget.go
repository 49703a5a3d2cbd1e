package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/twistlabs/guardian/internal/domain"
)

// reserveLua performs the read-check-write of a budget reservation as one
// atomic step, so concurrent spenders can never push the counter past the
// daily limit. Returns {ok (0/1), remaining} with remaining as a string to
// survive the Lua number round trip.
const reserveLua = `
local spent = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if spent + amount > limit then
    return {0, tostring(limit - spent)}
end
spent = spent + amount
redis.call('SET', KEYS[1], tostring(spent))
return {1, tostring(limit - spent)}
`

// releaseLua returns a failed reservation to the budget, clamping at zero so
// a double release cannot drive the counter negative.
const releaseLua = `
local spent = tonumber(redis.call('GET', KEYS[1]) or '0') - tonumber(ARGV[1])
if spent < 0 then
    spent = 0
end
redis.call('SET', KEYS[1], tostring(spent))
return tostring(spent)
`

// BudgetLedger implements domain.BudgetLedger on a Redis counter per budget
// key. Counters are reset by ResetDay on the scheduler's UTC-midnight tick,
// never lazily on read.
type BudgetLedger struct {
	rdb       *redis.Client
	reserveSc *redis.Script
	releaseSc *redis.Script
}

// NewBudgetLedger creates a BudgetLedger backed by the given Client.
func NewBudgetLedger(c *Client) *BudgetLedger {
	return &BudgetLedger{
		rdb:       c.Underlying(),
		reserveSc: redis.NewScript(reserveLua),
		releaseSc: redis.NewScript(releaseLua),
	}
}

func budgetKey(key string) string {
	return "budget:" + key
}

// Reserve atomically adds amount to the day's spend counter if doing so stays
// within dailyLimit, returning the remaining budget. It returns
// domain.ErrBudgetExhausted when the reservation would oversubscribe.
func (bl *BudgetLedger) Reserve(ctx context.Context, key string, amount, dailyLimit float64) (float64, error) {
	result, err := bl.reserveSc.Run(ctx, bl.rdb, []string{budgetKey(key)},
		formatAmount(amount), formatAmount(dailyLimit)).Slice()
	if err != nil {
		return 0, fmt.Errorf("redis: budget reserve %s: %w", key, err)
	}
	if len(result) < 2 {
		return 0, fmt.Errorf("redis: budget reserve %s: unexpected result length %d", key, len(result))
	}

	ok, okCast := result[0].(int64)
	remaining, err := parseAmount(result[1])
	if !okCast || err != nil {
		return 0, fmt.Errorf("redis: budget reserve %s: unexpected result %v", key, result)
	}

	if ok != 1 {
		return remaining, domain.ErrBudgetExhausted
	}
	return remaining, nil
}

// Release returns a previously reserved amount to the budget, used when the
// spend it backed did not go through.
func (bl *BudgetLedger) Release(ctx context.Context, key string, amount float64) error {
	if err := bl.releaseSc.Run(ctx, bl.rdb, []string{budgetKey(key)}, formatAmount(amount)).Err(); err != nil {
		return fmt.Errorf("redis: budget release %s: %w", key, err)
	}
	return nil
}

// Spent returns the day's spend counter, zero when nothing has been reserved.
func (bl *BudgetLedger) Spent(ctx context.Context, key string) (float64, error) {
	val, err := bl.rdb.Get(ctx, budgetKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: budget spent %s: %w", key, err)
	}
	spent, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: budget spent %s: parse %q: %w", key, val, err)
	}
	return spent, nil
}

// ResetDay zeroes the spend counter. The app scheduler calls this for every
// budget key at UTC midnight.
func (bl *BudgetLedger) ResetDay(ctx context.Context, key string) error {
	if err := bl.rdb.Del(ctx, budgetKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: budget reset %s: %w", key, err)
	}
	return nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseAmount(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("not a string: %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

// Compile-time interface check.
var _ domain.BudgetLedger = (*BudgetLedger)(nil)
