package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/twistlabs/guardian/internal/domain"
)

// FraudHandler serves the manual review queue.
type FraudHandler struct {
	cases  domain.FraudCaseStore
	logger *slog.Logger
}

// NewFraudHandler creates a FraudHandler backed by the given case store.
func NewFraudHandler(cases domain.FraudCaseStore, logger *slog.Logger) *FraudHandler {
	return &FraudHandler{cases: cases, logger: logger}
}

type listCasesResponse struct {
	Cases []domain.FraudCase `json:"cases"`
}

// ListOpenCases returns open review cases ordered by risk score.
// GET /api/fraud/cases
func (h *FraudHandler) ListOpenCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.cases.ListOpen(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fraud cases failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fraud cases")
		return
	}

	if cases == nil {
		cases = []domain.FraudCase{}
	}
	writeJSON(w, http.StatusOK, listCasesResponse{Cases: cases})
}

// GetCase returns a single review case by id.
// GET /api/fraud/cases/{id}
func (h *FraudHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	c, err := h.cases.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fraud case not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get fraud case failed",
			slog.String("case_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get fraud case")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

type resolveCaseRequest struct {
	Status string `json:"status"`
	By     string `json:"by"`
}

// ResolveCase closes a review case as confirmed or dismissed. Resolving an
// already-closed case returns 404 since only open cases can transition.
// POST /api/fraud/cases/{id}/resolve
func (h *FraudHandler) ResolveCase(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.By == "" {
		writeError(w, http.StatusBadRequest, "body must include \"status\" and non-empty \"by\"")
		return
	}

	status := domain.FraudCaseStatus(req.Status)
	if status != domain.FraudCaseConfirmed && status != domain.FraudCaseDismissed {
		writeError(w, http.StatusBadRequest, "status must be \"confirmed\" or \"dismissed\"")
		return
	}

	if err := h.cases.Resolve(r.Context(), id, status, req.By); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no open fraud case with that id")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: resolve fraud case failed",
			slog.String("case_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to resolve fraud case")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
