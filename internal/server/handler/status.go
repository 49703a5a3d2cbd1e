package handler

import (
	"net/http"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// SnapshotSource provides the latest collected market snapshot.
type SnapshotSource interface {
	Latest() (domain.MarketSnapshot, bool)
}

// BreakerSource provides the current breaker state.
type BreakerSource interface {
	Status() domain.BreakerStatus
}

// StatusHandler serves the guardian status summary for dashboards.
type StatusHandler struct {
	Mode    string
	snaps   SnapshotSource
	breaker BreakerSource
}

// NewStatusHandler creates a StatusHandler. Sources may be nil in modes that
// do not run the corresponding component.
func NewStatusHandler(mode string, snaps SnapshotSource, breaker BreakerSource) *StatusHandler {
	return &StatusHandler{Mode: mode, snaps: snaps, breaker: breaker}
}

// GetStatus responds with the running mode, latest snapshot summary, and
// breaker state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"mode": h.Mode}

	if h.snaps != nil {
		if snap, ok := h.snaps.Latest(); ok {
			body["snapshot"] = map[string]any{
				"timestamp":    snap.Timestamp.Format(time.RFC3339),
				"price":        snap.Price,
				"floor_price":  snap.FloorPrice,
				"price_ratio":  snap.PriceRatio,
				"volatility":   snap.Volatility1h,
				"live_sources": snap.OracleLiveSources,
			}
		}
	}

	if h.breaker != nil {
		status := h.breaker.Status()
		body["breaker"] = map[string]any{
			"active":     status.Active,
			"severity":   status.Severity.String(),
			"condition":  status.Condition,
			"trip_count": status.TripCount,
		}
	}

	writeJSON(w, http.StatusOK, body)
}
