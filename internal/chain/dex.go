package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// DexClient reads the token's primary liquidity pool: spot price, depth
// bands, and swap quotes. It shares the gateway transport.
type DexClient struct {
	client *Client
	pool   string
	retry  retryPolicy
}

// NewDexClient creates a DEX client for the given pool address.
func NewDexClient(client *Client, pool string) *DexClient {
	return &DexClient{
		client: client,
		pool:   pool,
		retry:  defaultRetry,
	}
}

// Pool returns the pool address this client is bound to.
func (d *DexClient) Pool() string {
	return d.pool
}

type poolStateResponse struct {
	SpotPrice float64 `json:"spot_price"`
	Liquidity float64 `json:"liquidity"`
	Depth     []struct {
		Bps    int     `json:"bps"`
		Amount float64 `json:"amount"`
	} `json:"depth"`
	ObservedUnix int64 `json:"observed_ts"`
}

// GetPoolState returns the current spot price and liquidity depth bands.
func (d *DexClient) GetPoolState(ctx context.Context) (domain.PoolState, error) {
	var resp poolStateResponse

	path := "/v1/dex/pools/" + url.PathEscape(d.pool)
	err := withRetry(ctx, d.retry, func(ctx context.Context) error {
		body, err := d.client.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("chain: decode pool state: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.PoolState{}, fmt.Errorf("chain: get pool state %s: %w", d.pool, err)
	}

	bands := make([]domain.DepthBand, 0, len(resp.Depth))
	for _, b := range resp.Depth {
		bands = append(bands, domain.DepthBand{Bps: b.Bps, Amount: b.Amount})
	}

	return domain.PoolState{
		SpotPrice:  resp.SpotPrice,
		Liquidity:  resp.Liquidity,
		DepthBands: bands,
		ObservedAt: time.Unix(resp.ObservedUnix, 0).UTC(),
	}, nil
}

// GetSwapQuote estimates the output and price impact of swapping amountIn of
// the quote currency into the pool.
func (d *DexClient) GetSwapQuote(ctx context.Context, amountIn float64) (domain.SwapQuote, error) {
	var resp struct {
		EstimatedOut   float64 `json:"estimated_out"`
		PriceImpactBps float64 `json:"price_impact_bps"`
	}

	path := "/v1/dex/pools/" + url.PathEscape(d.pool) + "/quote?amount_in=" +
		strconv.FormatFloat(amountIn, 'f', -1, 64)
	err := withRetry(ctx, d.retry, func(ctx context.Context) error {
		body, err := d.client.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("chain: decode swap quote: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("chain: get swap quote %s: %w", d.pool, err)
	}

	return domain.SwapQuote{
		AmountIn:       amountIn,
		EstimatedOut:   resp.EstimatedOut,
		PriceImpactBps: resp.PriceImpactBps,
	}, nil
}
