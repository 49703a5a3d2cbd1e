package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/twistlabs/guardian/internal/domain"
)

// AlertReader provides read access to stored alerts.
type AlertReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error)
	ListUnacknowledged(ctx context.Context, minSeverity domain.Severity) ([]domain.Alert, error)
}

// AlertAcker acknowledges an alert, resolving any paging incident behind it.
type AlertAcker interface {
	Acknowledge(ctx context.Context, id, by string) error
}

// AlertHandler serves alert-related HTTP endpoints.
type AlertHandler struct {
	alerts AlertReader
	acker  AlertAcker
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler with the given store and manager.
func NewAlertHandler(alerts AlertReader, acker AlertAcker, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		acker:  acker,
		logger: logger,
	}
}

type listAlertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
}

// ListAlerts returns stored alerts. With ?unacked=true only unacknowledged
// alerts at or above ?min_severity (default low) are returned.
// GET /api/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var (
		alerts []domain.Alert
		err    error
	)

	if r.URL.Query().Get("unacked") == "true" {
		minSeverity := domain.SeverityLow
		if v := r.URL.Query().Get("min_severity"); v != "" {
			minSeverity, err = domain.ParseSeverity(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid min_severity")
				return
			}
		}
		alerts, err = h.alerts.ListUnacknowledged(r.Context(), minSeverity)
	} else {
		alerts, err = h.alerts.List(r.Context(), parseListOpts(r))
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list alerts failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, listAlertsResponse{Alerts: alerts})
}

type ackRequest struct {
	By string `json:"by"`
}

// AcknowledgeAlert marks an alert acknowledged on behalf of an operator.
// POST /api/alerts/{id}/ack
func (h *AlertHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.By == "" {
		writeError(w, http.StatusBadRequest, "body must include non-empty \"by\"")
		return
	}

	if err := h.acker.Acknowledge(r.Context(), id, req.By); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: acknowledge alert failed",
			slog.String("alert_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
