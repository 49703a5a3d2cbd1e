package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// switchboardStaleness is looser than Pyth's: Switchboard feeds here are
// pulled over HTTP and refresh on a slower cadence.
const switchboardStaleness = 3 * time.Minute

// SwitchboardSource fetches the token price from a Switchboard feed
// resolver endpoint.
type SwitchboardSource struct {
	baseURL    string
	feedID     string
	httpClient *http.Client
}

// NewSwitchboardSource creates a source for the given resolver endpoint and
// feed address.
func NewSwitchboardSource(baseURL, feedID string) *SwitchboardSource {
	return &SwitchboardSource{
		baseURL: baseURL,
		feedID:  feedID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the source identifier.
func (s *SwitchboardSource) Name() string { return "switchboard" }

// MaxStaleness returns the staleness bound for this source class.
func (s *SwitchboardSource) MaxStaleness() time.Duration { return switchboardStaleness }

// Fetch returns the latest Switchboard sample for the configured feed.
func (s *SwitchboardSource) Fetch(ctx context.Context) (domain.PriceSample, error) {
	u := fmt.Sprintf("%s/api/v1/feeds/%s/result", s.baseURL, url.PathEscape(s.feedID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("switchboard: create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("switchboard: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PriceSample{}, fmt.Errorf("switchboard: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Result    float64 `json:"result"`
		StdDev    float64 `json:"std_dev"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PriceSample{}, fmt.Errorf("switchboard: decode: %w", err)
	}

	return domain.PriceSample{
		Source:     s.Name(),
		Price:      payload.Result,
		Confidence: payload.StdDev,
		Timestamp:  time.Unix(payload.Timestamp, 0).UTC(),
	}, nil
}

// Compile-time interface check.
var _ FeedSource = (*SwitchboardSource)(nil)
