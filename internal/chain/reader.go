package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// ProtocolReader reads on-chain program state through the gateway. All reads
// go through bounded retry with backoff; repeated failure surfaces to the
// caller, which reports it as a monitoring error rather than crashing the
// poll loop.
type ProtocolReader struct {
	client *Client
	retry  retryPolicy
}

// NewProtocolReader creates a reader on top of the shared gateway client.
func NewProtocolReader(client *Client) *ProtocolReader {
	return &ProtocolReader{
		client: client,
		retry:  defaultRetry,
	}
}

// protocolStateResponse mirrors the gateway's program-state endpoint.
type protocolStateResponse struct {
	FloorPrice        float64 `json:"floor_price"`
	TotalSupply       float64 `json:"total_supply"`
	CirculatingSupply float64 `json:"circulating_supply"`
	StakedSupply      float64 `json:"staked_supply"`
	DailyBuybackUsed  float64 `json:"daily_buyback_used"`
	EmergencyPaused   bool    `json:"emergency_paused"`
	LastDecayUnix     int64   `json:"last_decay_ts"`
	FloorLiquidity    float64 `json:"floor_liquidity"`
}

// GetState returns the current protocol state.
func (r *ProtocolReader) GetState(ctx context.Context) (domain.ProtocolState, error) {
	var resp protocolStateResponse

	err := withRetry(ctx, r.retry, func(ctx context.Context) error {
		body, err := r.client.doRequest(ctx, http.MethodGet, "/v1/protocol/state", nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("chain: decode protocol state: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ProtocolState{}, fmt.Errorf("chain: get protocol state: %w", err)
	}

	return domain.ProtocolState{
		FloorPrice:        resp.FloorPrice,
		TotalSupply:       resp.TotalSupply,
		CirculatingSupply: resp.CirculatingSupply,
		StakedSupply:      resp.StakedSupply,
		DailyBuybackUsed:  resp.DailyBuybackUsed,
		EmergencyPaused:   resp.EmergencyPaused,
		LastDecayAt:       time.Unix(resp.LastDecayUnix, 0).UTC(),
		FloorLiquidity:    resp.FloorLiquidity,
	}, nil
}
