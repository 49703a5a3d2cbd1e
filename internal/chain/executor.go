package chain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/twistlabs/guardian/internal/domain"
)

// Executor submits protective actions to the execution gateway: buybacks,
// supply adjustments, breaker state changes, and trading restrictions. Every
// submission runs under bounded retry with exponential backoff; exhaustion
// is returned to the caller, which escalates through the alert manager
// instead of throwing.
type Executor struct {
	client *Client
	retry  retryPolicy
}

// NewExecutor creates an Executor on top of the shared gateway client.
func NewExecutor(client *Client) *Executor {
	return &Executor{
		client: client,
		retry:  defaultRetry,
	}
}

// SubmitBuyback asks the gateway to execute a treasury buyback.
func (e *Executor) SubmitBuyback(ctx context.Context, req domain.BuybackRequest) error {
	payload := map[string]any{
		"amount":           req.Amount,
		"max_slippage_bps": req.MaxSlippageBps,
		"reason":           req.Reason,
	}
	err := withRetry(ctx, e.retry, func(ctx context.Context) error {
		_, err := e.client.doRequest(ctx, http.MethodPost, "/v1/actions/buyback", payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("chain: submit buyback: %w", err)
	}
	return nil
}

// SubmitSupplyAdjustment asks the gateway to mint or burn supply.
func (e *Executor) SubmitSupplyAdjustment(ctx context.Context, req domain.SupplyRequest) error {
	if req.Type == domain.AdjustmentNone || req.Amount <= 0 {
		return nil
	}
	payload := map[string]any{
		"type":   string(req.Type),
		"amount": req.Amount,
		"reason": req.Reason,
	}
	err := withRetry(ctx, e.retry, func(ctx context.Context) error {
		_, err := e.client.doRequest(ctx, http.MethodPost, "/v1/actions/supply", payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("chain: submit supply adjustment: %w", err)
	}
	return nil
}

// ReportBreakerState notifies the gateway of a circuit breaker transition.
func (e *Executor) ReportBreakerState(ctx context.Context, change domain.BreakerStateChange) error {
	payload := map[string]any{
		"active":   change.Active,
		"severity": change.Severity.String(),
		"reason":   change.Reason,
	}
	err := withRetry(ctx, e.retry, func(ctx context.Context) error {
		_, err := e.client.doRequest(ctx, http.MethodPost, "/v1/actions/breaker", payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("chain: report breaker state: %w", err)
	}
	return nil
}

// ApplyRestrictions pushes the current trading restriction directive.
func (e *Executor) ApplyRestrictions(ctx context.Context, r domain.Restrictions) error {
	payload := map[string]any{
		"trading_paused":       r.TradingPaused,
		"buyback_disabled":     r.BuybackDisabled,
		"staking_disabled":     r.StakingDisabled,
		"enhanced_monitoring":  r.EnhancedMonitoring,
		"max_transaction_size": r.MaxTransactionSize,
	}
	err := withRetry(ctx, e.retry, func(ctx context.Context) error {
		_, err := e.client.doRequest(ctx, http.MethodPost, "/v1/actions/restrictions", payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("chain: apply restrictions: %w", err)
	}
	return nil
}
