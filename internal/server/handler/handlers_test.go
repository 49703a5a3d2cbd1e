package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/breaker"
	"github.com/twistlabs/guardian/internal/domain"
)

type fakeAlertStore struct {
	alerts  []domain.Alert
	listErr error
	acked   map[string]string
}

func (f *fakeAlertStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Alert, error) {
	return f.alerts, f.listErr
}

func (f *fakeAlertStore) ListUnacknowledged(_ context.Context, minSeverity domain.Severity) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range f.alerts {
		if !a.Acknowledged && a.Severity >= minSeverity {
			out = append(out, a)
		}
	}
	return out, f.listErr
}

func (f *fakeAlertStore) Acknowledge(_ context.Context, id, by string) error {
	for _, a := range f.alerts {
		if a.ID == id {
			if f.acked == nil {
				f.acked = make(map[string]string)
			}
			f.acked[id] = by
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeBreakerControl struct {
	status   domain.BreakerStatus
	injected []domain.TripResult
	resetErr error
}

func (f *fakeBreakerControl) Status() domain.BreakerStatus { return f.status }

func (f *fakeBreakerControl) InjectExternal(_ context.Context, result domain.TripResult) {
	f.injected = append(f.injected, result)
}

func (f *fakeBreakerControl) ManualReset(_ context.Context) error { return f.resetErr }

type fakeCaseStore struct {
	cases    map[string]domain.FraudCase
	resolved map[string]domain.FraudCaseStatus
}

func (f *fakeCaseStore) Create(_ context.Context, c domain.FraudCase) error {
	f.cases[c.ID] = c
	return nil
}

func (f *fakeCaseStore) GetByID(_ context.Context, id string) (domain.FraudCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return domain.FraudCase{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCaseStore) Resolve(_ context.Context, id string, status domain.FraudCaseStatus, _ string) error {
	c, ok := f.cases[id]
	if !ok || c.Status != domain.FraudCaseOpen {
		return domain.ErrNotFound
	}
	if f.resolved == nil {
		f.resolved = make(map[string]domain.FraudCaseStatus)
	}
	f.resolved[id] = status
	return nil
}

func (f *fakeCaseStore) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.FraudCase, error) {
	var out []domain.FraudCase
	for _, c := range f.cases {
		if c.Status == domain.FraudCaseOpen {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeOpStore struct {
	ops        []domain.BotOperation
	gotFrom    time.Time
	gotTo      time.Time
	listCalled bool
}

func (f *fakeOpStore) Append(_ context.Context, op domain.BotOperation) error {
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakeOpStore) ListWindow(_ context.Context, from, to time.Time) ([]domain.BotOperation, error) {
	f.listCalled = true
	f.gotFrom, f.gotTo = from, to
	return f.ops, nil
}

func (f *fakeOpStore) ListBefore(_ context.Context, _ time.Time) ([]domain.BotOperation, error) {
	return nil, nil
}

func (f *fakeOpStore) DeleteBefore(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func do(t *testing.T, pattern string, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListAlertsEmptyIsArray(t *testing.T) {
	h := NewAlertHandler(&fakeAlertStore{}, &fakeAlertStore{}, slog.Default())

	rec := do(t, "GET /api/alerts", h.ListAlerts, http.MethodGet, "/api/alerts", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"alerts":[]}`, rec.Body.String())
}

func TestListAlertsUnackedFiltersBySeverity(t *testing.T) {
	store := &fakeAlertStore{alerts: []domain.Alert{
		{ID: "a1", Severity: domain.SeverityLow},
		{ID: "a2", Severity: domain.SeverityCritical},
		{ID: "a3", Severity: domain.SeverityHigh, Acknowledged: true},
	}}
	h := NewAlertHandler(store, store, slog.Default())

	rec := do(t, "GET /api/alerts", h.ListAlerts,
		http.MethodGet, "/api/alerts?unacked=true&min_severity=high", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, "a2", resp.Alerts[0].ID)
}

func TestListAlertsRejectsBadSeverity(t *testing.T) {
	h := NewAlertHandler(&fakeAlertStore{}, &fakeAlertStore{}, slog.Default())

	rec := do(t, "GET /api/alerts", h.ListAlerts,
		http.MethodGet, "/api/alerts?unacked=true&min_severity=apocalyptic", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	store := &fakeAlertStore{alerts: []domain.Alert{{ID: "a1"}}}
	h := NewAlertHandler(store, store, slog.Default())
	const pattern = "POST /api/alerts/{id}/ack"

	rec := do(t, pattern, h.AcknowledgeAlert,
		http.MethodPost, "/api/alerts/a1/ack", `{"by":"oncall"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "oncall", store.acked["a1"])

	rec = do(t, pattern, h.AcknowledgeAlert,
		http.MethodPost, "/api/alerts/a1/ack", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, pattern, h.AcknowledgeAlert,
		http.MethodPost, "/api/alerts/missing/ack", `{"by":"oncall"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTripBreakerManual(t *testing.T) {
	ctl := &fakeBreakerControl{}
	h := NewBreakerHandler(ctl, slog.Default())

	rec := do(t, "POST /api/breaker/trip", h.TripBreaker,
		http.MethodPost, "/api/breaker/trip", `{"severity":"high"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ctl.injected, 1)
	assert.Equal(t, breaker.CondManualTrigger, ctl.injected[0].Condition)
	assert.Equal(t, domain.SeverityHigh, ctl.injected[0].Severity)
	assert.Equal(t, "manual trip", ctl.injected[0].Message)
}

func TestTripBreakerRejectsUnknownSeverity(t *testing.T) {
	ctl := &fakeBreakerControl{}
	h := NewBreakerHandler(ctl, slog.Default())

	rec := do(t, "POST /api/breaker/trip", h.TripBreaker,
		http.MethodPost, "/api/breaker/trip", `{"severity":"meltdown"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ctl.injected)
}

func TestResetBreakerConflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not tripped", breaker.ErrNotTripped, http.StatusConflict},
		{"cooldown pending", breaker.ErrResetTooEarly, http.StatusConflict},
		{"success", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBreakerHandler(&fakeBreakerControl{resetErr: tt.err}, slog.Default())
			rec := do(t, "POST /api/breaker/reset", h.ResetBreaker,
				http.MethodPost, "/api/breaker/reset", "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestResolveFraudCase(t *testing.T) {
	store := &fakeCaseStore{cases: map[string]domain.FraudCase{
		"c1": {ID: "c1", Status: domain.FraudCaseOpen},
	}}
	h := NewFraudHandler(store, slog.Default())
	const pattern = "POST /api/fraud/cases/{id}/resolve"

	rec := do(t, pattern, h.ResolveCase,
		http.MethodPost, "/api/fraud/cases/c1/resolve", `{"status":"confirmed","by":"analyst"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.FraudCaseConfirmed, store.resolved["c1"])

	rec = do(t, pattern, h.ResolveCase,
		http.MethodPost, "/api/fraud/cases/c1/resolve", `{"status":"open","by":"analyst"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, pattern, h.ResolveCase,
		http.MethodPost, "/api/fraud/cases/missing/resolve", `{"status":"dismissed","by":"analyst"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFraudCaseNotFound(t *testing.T) {
	h := NewFraudHandler(&fakeCaseStore{cases: map[string]domain.FraudCase{}}, slog.Default())

	rec := do(t, "GET /api/fraud/cases/{id}", h.GetCase,
		http.MethodGet, "/api/fraud/cases/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOperationsWindow(t *testing.T) {
	store := &fakeOpStore{}
	h := NewOpsHandler(store, slog.Default())
	const pattern = "GET /api/operations"

	rec := do(t, pattern, h.ListOperations,
		http.MethodGet, "/api/operations?from=2026-08-23T10:00:00Z&to=2026-08-23T11:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, store.listCalled)
	assert.Equal(t, time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC), store.gotFrom.UTC())
	assert.Equal(t, time.Date(2026, 8, 23, 11, 0, 0, 0, time.UTC), store.gotTo.UTC())

	rec = do(t, pattern, h.ListOperations,
		http.MethodGet, "/api/operations?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, pattern, h.ListOperations,
		http.MethodGet, "/api/operations?from=2026-08-23T11:00:00Z&to=2026-08-23T10:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheckDegraded(t *testing.T) {
	checks := map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return context.DeadlineExceeded },
	}
	h := NewHealthHandler(checks, slog.Default())

	rec := do(t, "GET /api/health", h.HealthCheck, http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["postgres"])
}

func TestStatusReportsBreakerAndSnapshot(t *testing.T) {
	snaps := &fakeSnapSource{snap: domain.MarketSnapshot{
		Timestamp:  time.Now().UTC(),
		Price:      0.062,
		FloorPrice: 0.05,
		PriceRatio: 1.24,
	}, ok: true}
	brk := &fakeBreakerControl{status: domain.BreakerStatus{
		Active:   true,
		Severity: domain.SeverityHigh,
	}}
	h := NewStatusHandler("guard", snaps, brk)

	rec := do(t, "GET /api/status", h.GetStatus, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "guard", body["mode"])
	assert.Equal(t, 0.062, body["snapshot"].(map[string]any)["price"])
	assert.Equal(t, true, body["breaker"].(map[string]any)["active"])
}

type fakeSnapSource struct {
	snap domain.MarketSnapshot
	ok   bool
}

func (f *fakeSnapSource) Latest() (domain.MarketSnapshot, bool) { return f.snap, f.ok }
