package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// OpsHandler serves the bot operation log for operator inspection.
type OpsHandler struct {
	ops    domain.BotOpStore
	logger *slog.Logger
}

// NewOpsHandler creates an OpsHandler backed by the given operation store.
func NewOpsHandler(ops domain.BotOpStore, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{ops: ops, logger: logger}
}

type listOpsResponse struct {
	Operations []domain.BotOperation `json:"operations"`
}

// ListOperations returns bot operations within a time window. ?from and ?to
// take RFC 3339 timestamps; the default window is the last hour.
// GET /api/operations
func (h *OpsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must precede to")
		return
	}

	ops, err := h.ops.ListWindow(r.Context(), from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list operations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}

	if ops == nil {
		ops = []domain.BotOperation{}
	}
	writeJSON(w, http.StatusOK, listOpsResponse{Operations: ops})
}
