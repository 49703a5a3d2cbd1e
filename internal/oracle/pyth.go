package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// pythStaleness is the sample-age bound for the Pyth push oracle; it matches
// the on-chain staleness threshold.
const pythStaleness = 60 * time.Second

// PythSource fetches the token price from the Pyth Hermes HTTP API.
type PythSource struct {
	baseURL    string
	feedID     string
	httpClient *http.Client
}

// NewPythSource creates a source for the given Hermes endpoint and price
// feed ID.
func NewPythSource(baseURL, feedID string) *PythSource {
	return &PythSource{
		baseURL: baseURL,
		feedID:  feedID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the source identifier.
func (p *PythSource) Name() string { return "pyth" }

// MaxStaleness returns the staleness bound for this source class.
func (p *PythSource) MaxStaleness() time.Duration { return pythStaleness }

// hermesResponse mirrors the relevant part of the Hermes latest-price
// payload. Price and confidence are fixed-point integers scaled by expo.
type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// Fetch returns the latest Pyth sample for the configured feed.
func (p *PythSource) Fetch(ctx context.Context) (domain.PriceSample, error) {
	u := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", p.baseURL, url.QueryEscape(p.feedID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("pyth: create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("pyth: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PriceSample{}, fmt.Errorf("pyth: status %d: %s", resp.StatusCode, body)
	}

	var hr hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return domain.PriceSample{}, fmt.Errorf("pyth: decode: %w", err)
	}
	if len(hr.Parsed) == 0 {
		return domain.PriceSample{}, fmt.Errorf("pyth: no feed in response")
	}

	raw := hr.Parsed[0].Price
	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("pyth: parse price: %w", err)
	}
	conf, err := strconv.ParseFloat(raw.Conf, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("pyth: parse conf: %w", err)
	}
	scale := math.Pow10(raw.Expo)

	return domain.PriceSample{
		Source:     p.Name(),
		Price:      price * scale,
		Confidence: conf * scale,
		Timestamp:  time.Unix(raw.PublishTime, 0).UTC(),
	}, nil
}

// Compile-time interface check.
var _ FeedSource = (*PythSource)(nil)
