package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeOnMacUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const firefoxOnLinuxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"

type mockProfileStore struct {
	profiles map[string]*models.AccountProfile
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{profiles: make(map[string]*models.AccountProfile)}
}

func (m *mockProfileStore) Get(ctx context.Context, accountID string) (*models.AccountProfile, error) {
	p, ok := m.profiles[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockProfileStore) Upsert(ctx context.Context, p *models.AccountProfile) error {
	copied := *p
	m.profiles[p.AccountID] = &copied
	return nil
}

func (m *mockProfileStore) Delete(ctx context.Context, accountID string) error {
	delete(m.profiles, accountID)
	return nil
}

type mockAnomalyStore struct {
	created  []*models.Anomaly
	statuses map[string]string
}

func newMockAnomalyStore() *mockAnomalyStore {
	return &mockAnomalyStore{statuses: make(map[string]string)}
}

func (m *mockAnomalyStore) Create(ctx context.Context, a *models.Anomaly) (*models.Anomaly, error) {
	copied := *a
	copied.ID = "anomaly-" + copied.AnomalyType
	m.created = append(m.created, &copied)
	return &copied, nil
}

func (m *mockAnomalyStore) GetByID(ctx context.Context, id string) (*models.Anomaly, error) {
	for _, a := range m.created {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *mockAnomalyStore) UpdateStatus(ctx context.Context, id, status string) error {
	m.statuses[id] = status
	return nil
}

type profilerFixture struct {
	service   *ProfilerService
	profiles  *mockProfileStore
	anomalies *mockAnomalyStore
	notifier  *mockNotifier
	blocks    *mockBlockStore
	geo       *mockCountryLookup
	clock     time.Time
}

func newProfilerFixture(t *testing.T) *profilerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := NewAuditService(&mockAuditStore{}, logger)

	f := &profilerFixture{
		profiles:  newMockProfileStore(),
		anomalies: newMockAnomalyStore(),
		notifier:  &mockNotifier{},
		blocks:    newMockBlockStore(),
		geo:       &mockCountryLookup{country: "US"},
		clock:     time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}

	throttle := NewThrottleService(
		f.blocks, &mockLedger{}, &mockIPWhitelist{ips: map[string]bool{}}, f.geo,
		audit, f.notifier,
		ThrottleConfig{FailureWindow: time.Hour, Tiers: DefaultTiers()},
		logger,
	)

	f.service = NewProfilerService(
		f.profiles, f.anomalies, f.geo, throttle, f.notifier, audit,
		ProfilerConfig{Enabled: true, OperatorEmail: "ops@example.com"},
		logger,
	)
	f.service.now = func() time.Time { return f.clock }
	return f
}

// login runs one evaluation at the fixture clock and advances nothing
func (f *profilerFixture) login(t *testing.T, accountID string) []*models.Anomaly {
	t.Helper()
	anomalies, err := f.service.Evaluate(context.Background(), accountID, "Alice", "198.51.100.1", chromeOnMacUA)
	require.NoError(t, err)
	return anomalies
}

func TestProfiler_FirstLoginSeedsProfileOnly(t *testing.T) {
	f := newProfilerFixture(t)

	anomalies := f.login(t, "acct-1")
	assert.Empty(t, anomalies, "first login must never be anomalous")

	profile, ok := f.profiles.profiles["acct-1"]
	require.True(t, ok)
	assert.Equal(t, []string{"198.51.100.1"}, profile.KnownIPs)
	assert.Equal(t, []string{"US"}, profile.KnownCountries)
	assert.Len(t, profile.KnownDevices, 1)
	assert.Equal(t, []int64{14}, profile.LoginHours)
}

func TestProfiler_RepeatLoginFromKnownContextIsClean(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(24 * time.Hour)
	anomalies := f.login(t, "acct-1")
	assert.Empty(t, anomalies)
}

func TestProfiler_NewCountry(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(48 * time.Hour)
	f.geo.country = "BR"
	anomalies := f.login(t, "acct-1")

	types := anomalyTypes(anomalies)
	assert.Contains(t, types, models.AnomalyNewCountry)
	assert.NotContains(t, types, models.AnomalyImpossibleTravel, "48h gap is not impossible travel")

	// The new country is now part of the profile
	assert.Contains(t, f.profiles.profiles["acct-1"].KnownCountries, "BR")
}

func TestProfiler_ImpossibleTravel(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(30 * time.Minute)
	f.geo.country = "JP"
	anomalies := f.login(t, "acct-1")

	types := anomalyTypes(anomalies)
	assert.Contains(t, types, models.AnomalyImpossibleTravel)

	for _, a := range anomalies {
		if a.AnomalyType == models.AnomalyImpossibleTravel {
			assert.Equal(t, models.ScoreImpossibleTravel, a.Score)
		}
	}
}

func TestProfiler_SameCountryQuickSuccessionIsNotTravel(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(10 * time.Minute)
	anomalies := f.login(t, "acct-1")
	assert.NotContains(t, anomalyTypes(anomalies), models.AnomalyImpossibleTravel)
}

func TestProfiler_NewDevice(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(24 * time.Hour)
	anomalies, err := f.service.Evaluate(context.Background(), "acct-1", "Alice", "198.51.100.1", firefoxOnLinuxUA)
	require.NoError(t, err)

	types := anomalyTypes(anomalies)
	assert.Contains(t, types, models.AnomalyNewDevice)
}

func TestProfiler_UnusualTime_RequiresMinimumSamples(t *testing.T) {
	f := newProfilerFixture(t)

	// 4 logins at 14:00 is below the baseline minimum
	for i := 0; i < 4; i++ {
		f.login(t, "acct-1")
		f.clock = f.clock.Add(24 * time.Hour)
	}

	f.clock = f.clock.Add(13 * time.Hour) // 03:00
	anomalies := f.login(t, "acct-1")
	assert.NotContains(t, anomalyTypes(anomalies), models.AnomalyUnusualTime)
}

func TestProfiler_UnusualTime_FiresOutsidePattern(t *testing.T) {
	f := newProfilerFixture(t)

	// Build a tight 14:00 baseline
	for i := 0; i < 6; i++ {
		f.login(t, "acct-1")
		f.clock = f.clock.Add(24 * time.Hour)
	}

	f.clock = f.clock.Add(13 * time.Hour) // 03:00
	anomalies := f.login(t, "acct-1")
	assert.Contains(t, anomalyTypes(anomalies), models.AnomalyUnusualTime)
}

func TestProfiler_HighScoreNotifiesOperator(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(30 * time.Minute)
	f.geo.country = "JP"
	f.login(t, "acct-1")

	assert.NotEmpty(t, f.notifier.sent, "impossible travel scores above the notification threshold")
}

func TestProfiler_LowScoreDoesNotNotify(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(48 * time.Hour)
	f.geo.country = "BR"
	f.login(t, "acct-1")

	assert.Empty(t, f.notifier.sent, "a lone new-country anomaly is below the notification threshold")
}

func TestProfiler_UnknownCountryDetectsNothingGeo(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")

	f.clock = f.clock.Add(30 * time.Minute)
	f.geo.country = ""
	anomalies := f.login(t, "acct-1")

	types := anomalyTypes(anomalies)
	assert.NotContains(t, types, models.AnomalyImpossibleTravel)
	assert.NotContains(t, types, models.AnomalyNewCountry)
}

func TestProfiler_DisabledEvaluatesNothing(t *testing.T) {
	f := newProfilerFixture(t)
	f.service.config.Enabled = false

	anomalies := f.login(t, "acct-1")
	assert.Empty(t, anomalies)
	assert.Empty(t, f.profiles.profiles)
}

func TestProfiler_MarkSafe(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")
	f.clock = f.clock.Add(48 * time.Hour)
	f.geo.country = "BR"
	anomalies := f.login(t, "acct-1")
	require.NotEmpty(t, anomalies)

	id := anomalies[0].ID
	require.NoError(t, f.service.MarkSafe(context.Background(), id, "op-1"))
	assert.Equal(t, models.AnomalyStatusMarkedSafe, f.anomalies.statuses[id])
}

func TestProfiler_BlockFromAnomaly(t *testing.T) {
	f := newProfilerFixture(t)
	f.login(t, "acct-1")
	f.clock = f.clock.Add(30 * time.Minute)
	f.geo.country = "JP"
	anomalies := f.login(t, "acct-1")
	require.NotEmpty(t, anomalies)

	id := anomalies[0].ID
	require.NoError(t, f.service.BlockFromAnomaly(context.Background(), id, "op-1"))

	assert.Equal(t, models.AnomalyStatusBlocked, f.anomalies.statuses[id])

	block, ok := f.blocks.blocks["198.51.100.1"]
	require.True(t, ok, "the anomaly's source IP must be blocked")
	assert.True(t, block.Permanent)
}

func anomalyTypes(anomalies []*models.Anomaly) []string {
	types := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		types = append(types, a.AnomalyType)
	}
	return types
}
