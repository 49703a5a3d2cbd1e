package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

// memEventStore is an in-memory EventStore for engine tests.
type memEventStore struct {
	stakes []domain.StakeEvent
	clicks []domain.ClickEvent
}

func (m *memEventStore) InsertStake(_ context.Context, ev domain.StakeEvent) error {
	m.stakes = append(m.stakes, ev)
	return nil
}

func (m *memEventStore) InsertClick(_ context.Context, ev domain.ClickEvent) error {
	m.clicks = append(m.clicks, ev)
	return nil
}

func (m *memEventStore) ListStakesBySubject(_ context.Context, subject string, since time.Time) ([]domain.StakeEvent, error) {
	var out []domain.StakeEvent
	for _, ev := range m.stakes {
		if ev.Subject == subject && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEventStore) ListSubjectsByWallet(_ context.Context, wallet string, since time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range m.stakes {
		if ev.CounterpartyWallet == wallet && !ev.Timestamp.Before(since) {
			if _, ok := seen[ev.Subject]; !ok {
				seen[ev.Subject] = struct{}{}
				out = append(out, ev.Subject)
			}
		}
	}
	return out, nil
}

func (m *memEventStore) CountWalletsByIP(_ context.Context, ip string, since time.Time) (int, error) {
	seen := make(map[string]struct{})
	for _, ev := range m.stakes {
		if ev.IP == ip && ev.CounterpartyWallet != "" && !ev.Timestamp.Before(since) {
			seen[ev.CounterpartyWallet] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *memEventStore) ListClicksByIP(_ context.Context, ip string, since time.Time) ([]domain.ClickEvent, error) {
	var out []domain.ClickEvent
	for _, ev := range m.clicks {
		if ev.IP == ip && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEventStore) ListClicksByLink(_ context.Context, linkID string, since time.Time) ([]domain.ClickEvent, error) {
	var out []domain.ClickEvent
	for _, ev := range m.clicks {
		if ev.LinkID == linkID && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type memCaseStore struct {
	cases []domain.FraudCase
}

func (m *memCaseStore) Create(_ context.Context, c domain.FraudCase) error {
	m.cases = append(m.cases, c)
	return nil
}

func (m *memCaseStore) GetByID(context.Context, string) (domain.FraudCase, error) {
	return domain.FraudCase{}, domain.ErrNotFound
}

func (m *memCaseStore) Resolve(context.Context, string, domain.FraudCaseStatus, string) error {
	return nil
}

func (m *memCaseStore) ListOpen(context.Context, domain.ListOpts) ([]domain.FraudCase, error) {
	return m.cases, nil
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Trigger(_ context.Context, _ domain.Severity, alertType, _ string, _ map[string]string) {
	f.alerts = append(f.alerts, alertType)
}

type fakeRiskSink struct {
	trips []domain.TripResult
}

func (f *fakeRiskSink) InjectExternal(_ context.Context, result domain.TripResult) {
	f.trips = append(f.trips, result)
}

func newTestEngine(store *memEventStore) (*Engine, *memCaseStore, *fakeAlerter, *fakeRiskSink) {
	cases := &memCaseStore{}
	alerts := &fakeAlerter{}
	risk := &fakeRiskSink{}
	return NewEngine(DefaultConfig(), store, cases, alerts, risk, slog.Default()), cases, alerts, risk
}

func findIndicator(t *testing.T, analysis domain.FraudAnalysis, typ string) domain.FraudIndicator {
	t.Helper()
	for _, ind := range analysis.Indicators {
		if ind.Type == typ {
			return ind
		}
	}
	t.Fatalf("indicator %s did not fire; got %+v", typ, analysis.Indicators)
	return domain.FraudIndicator{}
}

func TestStakeVelocityElevenPerHour(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()

	// Ten prior stakes spread over the hour, varied amounts and spacing so
	// only the velocity check fires.
	for i := 0; i < 10; i++ {
		store.stakes = append(store.stakes, domain.StakeEvent{
			Subject:   "s-1",
			Amount:    float64(100 + i*17),
			Timestamp: now.Add(-time.Duration(55-i*5) * time.Minute).Add(time.Duration(i*i) * time.Second),
		})
	}

	engine, _, _, _ := newTestEngine(store)
	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject: "s-1", Amount: 333, Timestamp: now,
	})
	require.NoError(t, err)

	ind := findIndicator(t, analysis, IndStakeVelocity)
	assert.Equal(t, domain.SeverityHigh, ind.Severity)
	assert.EqualValues(t, 90, ind.Confidence)
}

func TestWalletCyclingAcrossSubjectsIsCritical(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()
	wallet := "0x52908400098527886E0F7030069857D2E4169EE7"

	store.stakes = append(store.stakes, domain.StakeEvent{
		Subject:            "s-1",
		Amount:             100,
		CounterpartyWallet: wallet,
		Timestamp:          now.Add(-3 * 24 * time.Hour),
	})

	engine, _, _, _ := newTestEngine(store)
	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject:            "s-2",
		Amount:             100,
		CounterpartyWallet: wallet,
		Timestamp:          now,
	})
	require.NoError(t, err)

	ind := findIndicator(t, analysis, IndWalletCycling)
	assert.Equal(t, domain.SeverityCritical, ind.Severity)
	assert.EqualValues(t, 95, ind.Confidence)
}

func TestWalletCyclingSurvivesCasingGames(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()

	engine, _, _, _ := newTestEngine(store)

	// Same address, different casing: normalization makes them identical.
	_, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject:            "s-1",
		Amount:             100,
		CounterpartyWallet: "0x52908400098527886e0f7030069857d2e4169ee7",
		Timestamp:          now.Add(-time.Hour),
	})
	require.NoError(t, err)

	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject:            "s-2",
		Amount:             100,
		CounterpartyWallet: "0x52908400098527886E0F7030069857D2E4169EE7",
		Timestamp:          now,
	})
	require.NoError(t, err)
	findIndicator(t, analysis, IndWalletCycling)
}

func TestClickFloodIsBlockedAndCritical(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()

	// 101 clicks in the trailing minute from one IP on one link.
	for i := 0; i < 101; i++ {
		store.clicks = append(store.clicks, domain.ClickEvent{
			Subject:   "s-1",
			LinkID:    "l-1",
			IP:        "10.0.0.9",
			Country:   "US",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15",
			Timestamp: now.Add(-time.Duration(i*500) * time.Millisecond),
		})
	}

	engine, _, alerts, _ := newTestEngine(store)
	analysis, err := engine.AnalyzeClick(context.Background(), domain.ClickEvent{
		Subject:   "s-1",
		LinkID:    "l-1",
		IP:        "10.0.0.9",
		Country:   "US",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15",
		Timestamp: now,
	})
	require.NoError(t, err)

	ind := findIndicator(t, analysis, IndClickPattern)
	assert.Equal(t, domain.SeverityCritical, ind.Severity)
	assert.EqualValues(t, 95, ind.Confidence)
	assert.Equal(t, domain.RecommendationBlock, analysis.Recommendation)
	assert.Contains(t, alerts.alerts, domain.AlertFraudDetected)
}

func TestReviewScoreQueuesCase(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()

	// A lone medium/60 indicator (short user agent) scores 60: review, not
	// block.
	engine, cases, alerts, _ := newTestEngine(store)
	analysis, err := engine.AnalyzeClick(context.Background(), domain.ClickEvent{
		Subject:   "s-1",
		LinkID:    "l-1",
		IP:        "10.0.0.9",
		UserAgent: "x",
		Timestamp: now,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RecommendationReview, analysis.Recommendation)
	require.Len(t, cases.cases, 1)
	assert.Equal(t, "s-1", cases.cases[0].Subject)
	assert.Equal(t, domain.FraudCaseOpen, cases.cases[0].Status)
	assert.Empty(t, alerts.alerts)
}

func TestCriticalBlockInjectsBreakerSignal(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()
	wallet := "0x52908400098527886E0F7030069857D2E4169EE7"

	store.stakes = append(store.stakes, domain.StakeEvent{
		Subject: "s-1", Amount: 100, CounterpartyWallet: wallet,
		Timestamp: now.Add(-time.Hour),
	})

	engine, _, _, risk := newTestEngine(store)
	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject: "s-2", Amount: 100, CounterpartyWallet: wallet, Timestamp: now,
	})
	require.NoError(t, err)

	require.Equal(t, domain.RecommendationBlock, analysis.Recommendation)
	require.Len(t, risk.trips, 1)
	assert.Equal(t, domain.SeverityCritical, risk.trips[0].Severity)
}

func TestCleanEventAllowed(t *testing.T) {
	store := &memEventStore{}
	engine, cases, alerts, risk := newTestEngine(store)

	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject: "s-1", Amount: 100,
		CounterpartyWallet: "0x52908400098527886E0F7030069857D2E4169EE7",
		Timestamp:          time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RecommendationAllow, analysis.Recommendation)
	assert.Zero(t, analysis.Score)
	assert.Empty(t, analysis.Indicators)
	assert.Empty(t, cases.cases)
	assert.Empty(t, alerts.alerts)
	assert.Empty(t, risk.trips)
}

func TestScoreMonotonicInConfidence(t *testing.T) {
	base := []domain.FraudIndicator{
		{Type: "a", Severity: domain.SeverityHigh, Confidence: 40},
		{Type: "b", Severity: domain.SeverityMedium, Confidence: 70},
	}

	prev := -1.0
	for conf := 0.0; conf <= 100; conf += 10 {
		inds := append([]domain.FraudIndicator{}, base...)
		inds[0].Confidence = conf
		score := Score(inds)
		assert.GreaterOrEqual(t, score, prev, "conf %v", conf)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
		prev = score
	}
}

func TestScoreClampsMalformedConfidence(t *testing.T) {
	score := Score([]domain.FraudIndicator{
		{Type: "a", Severity: domain.SeverityCritical, Confidence: 400},
		{Type: "b", Severity: domain.SeverityLow, Confidence: -20},
	})
	assert.LessOrEqual(t, score, 100.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestScoreWeighting(t *testing.T) {
	// One critical/100 and one low/0: score = (100*100 + 10*0) / 110.
	score := Score([]domain.FraudIndicator{
		{Type: "a", Severity: domain.SeverityCritical, Confidence: 100},
		{Type: "b", Severity: domain.SeverityLow, Confidence: 0},
	})
	assert.InDelta(t, 90.9, score, 0.1)
}

func TestAnalyzeStakeRejectsInvalidEvent(t *testing.T) {
	engine, _, _, _ := newTestEngine(&memEventStore{})

	_, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{Subject: "", Amount: 10})
	require.Error(t, err)

	_, err = engine.AnalyzeStake(context.Background(), domain.StakeEvent{Subject: "s-1", Amount: -5})
	require.Error(t, err)
}

func TestAmountSpikeGrading(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		store.stakes = append(store.stakes, domain.StakeEvent{
			Subject:   "s-1",
			Amount:    100,
			Timestamp: now.Add(-time.Duration(i+2) * 24 * time.Hour / 7),
		})
	}

	engine, _, _, _ := newTestEngine(store)
	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject: "s-1", Amount: 600, Timestamp: now, // 6x the average
	})
	require.NoError(t, err)

	ind := findIndicator(t, analysis, IndAmountSpike)
	assert.Equal(t, domain.SeverityMedium, ind.Severity)
}

func TestTimePatternDetectsMetronome(t *testing.T) {
	store := &memEventStore{}
	now := time.Now().UTC()

	// Four prior stakes exactly 30s apart: scripted cadence.
	for i := 4; i >= 1; i-- {
		store.stakes = append(store.stakes, domain.StakeEvent{
			Subject:   "s-1",
			Amount:    float64(100 + i),
			Timestamp: now.Add(-time.Duration(i) * 30 * time.Second),
		})
	}

	engine, _, _, _ := newTestEngine(store)
	analysis, err := engine.AnalyzeStake(context.Background(), domain.StakeEvent{
		Subject: "s-1", Amount: 200, Timestamp: now,
	})
	require.NoError(t, err)

	ind := findIndicator(t, analysis, IndTimePattern)
	assert.Equal(t, domain.SeverityHigh, ind.Severity)
}

func TestBotUserAgentFires(t *testing.T) {
	engine, _, _, _ := newTestEngine(&memEventStore{})

	analysis, err := engine.AnalyzeClick(context.Background(), domain.ClickEvent{
		Subject:   "s-1",
		LinkID:    "l-1",
		IP:        "10.0.0.1",
		UserAgent: fmt.Sprintf("HeadlessChrome/%d.0 (compatible; bot)", 120),
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	ind := findIndicator(t, analysis, IndBotUserAgent)
	assert.Equal(t, domain.SeverityHigh, ind.Severity)
}
