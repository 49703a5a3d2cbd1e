package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/twistlabs/guardian/internal/breaker"
	"github.com/twistlabs/guardian/internal/domain"
)

// BreakerControl is the slice of the breaker the API exposes: read state,
// trip manually, attempt a reset.
type BreakerControl interface {
	Status() domain.BreakerStatus
	InjectExternal(ctx context.Context, result domain.TripResult)
	ManualReset(ctx context.Context) error
}

// BreakerHandler serves circuit-breaker HTTP endpoints.
type BreakerHandler struct {
	control BreakerControl
	logger  *slog.Logger
}

// NewBreakerHandler creates a BreakerHandler with the given control surface.
func NewBreakerHandler(control BreakerControl, logger *slog.Logger) *BreakerHandler {
	return &BreakerHandler{control: control, logger: logger}
}

// GetBreaker returns the full breaker state including trip history.
// GET /api/breaker
func (h *BreakerHandler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.control.Status())
}

type tripRequest struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// TripBreaker trips the breaker manually at the requested severity. Used for
// incident response when operators see something the conditions do not.
// POST /api/breaker/trip
func (h *BreakerHandler) TripBreaker(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	severity, err := domain.ParseSeverity(req.Severity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid severity")
		return
	}
	if req.Message == "" {
		req.Message = "manual trip"
	}

	h.logger.WarnContext(r.Context(), "manual breaker trip requested",
		slog.String("severity", severity.String()),
		slog.String("message", req.Message),
	)

	h.control.InjectExternal(r.Context(), domain.TripResult{
		Condition: breaker.CondManualTrigger,
		Tripped:   true,
		Severity:  severity,
		Message:   req.Message,
	})

	writeJSON(w, http.StatusOK, h.control.Status())
}

// ResetBreaker attempts a manual reset. A reset before the cooldown deadline
// is refused with 409.
// POST /api/breaker/reset
func (h *BreakerHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	if err := h.control.ManualReset(r.Context()); err != nil {
		switch {
		case errors.Is(err, breaker.ErrNotTripped):
			writeError(w, http.StatusConflict, "breaker is not tripped")
		case errors.Is(err, breaker.ErrResetTooEarly):
			writeError(w, http.StatusConflict, "cooldown has not elapsed")
		default:
			h.logger.ErrorContext(r.Context(), "handler: breaker reset failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to reset breaker")
		}
		return
	}

	writeJSON(w, http.StatusOK, h.control.Status())
}
