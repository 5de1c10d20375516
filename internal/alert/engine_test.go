package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/domain"
)

type fakeFences map[string]domain.Geofence

func (f fakeFences) Get(id string) (domain.Geofence, error) {
	g, ok := f[id]
	if !ok {
		return domain.Geofence{}, domain.ErrNotFound
	}
	return g, nil
}

// testEngine returns an engine with a controllable clock.
func testEngine(cfg Config) (*Engine, *time.Time) {
	e := NewEngine(cfg)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func speedSample(trackerID string, speed float64) *domain.PositionSample {
	return &domain.PositionSample{
		TrackerID: trackerID,
		Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Lat:       52.52,
		Lng:       13.405,
		SpeedKmh:  speed,
	}
}

func TestOverspeedSeverityLadder(t *testing.T) {
	tracker := domain.Tracker{ID: "t1", SpeedLimitKmh: 90}

	tests := []struct {
		name     string
		speed    float64
		severity domain.Severity
	}{
		{"just over the limit", 91, domain.SeverityMedium},
		{"well over", 130, domain.SeverityHigh}, // ratio 1.44
		{"at the high threshold", 112.5, domain.SeverityHigh},
		{"at the critical threshold", 135, domain.SeverityCritical},
		{"far beyond", 200, domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEngine(DefaultConfig())
			created := e.EvaluateSample(tracker, speedSample("t1", tt.speed), nil, fakeFences{})
			require.Len(t, created, 1)
			assert.Equal(t, domain.AlertOverspeed, created[0].Type)
			assert.Equal(t, tt.severity, created[0].Severity)
			assert.Equal(t, tt.speed, created[0].SpeedKmh)
			assert.Equal(t, 90.0, created[0].SpeedLimitKmh)
		})
	}
}

func TestOverspeedAtLimitDoesNotFire(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	tracker := domain.Tracker{ID: "t1", SpeedLimitKmh: 90}

	created := e.EvaluateSample(tracker, speedSample("t1", 90), nil, fakeFences{})
	assert.Empty(t, created)
}

func TestOverspeedZeroLimitDisablesRule(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	tracker := domain.Tracker{ID: "t1", SpeedLimitKmh: 0}

	created := e.EvaluateSample(tracker, speedSample("t1", 180), nil, fakeFences{})
	assert.Empty(t, created)
}

// A continuous overspeed episode produces one alert; a fresh episode after
// the condition cleared and the window passed produces a new one.
func TestOverspeedDedup(t *testing.T) {
	e, now := testEngine(DefaultConfig())
	tracker := domain.Tracker{ID: "t1", SpeedLimitKmh: 90}

	created := e.EvaluateSample(tracker, speedSample("t1", 120), nil, fakeFences{})
	require.Len(t, created, 1)

	// Still speeding: suppressed by the open alert.
	created = e.EvaluateSample(tracker, speedSample("t1", 125), nil, fakeFences{})
	assert.Empty(t, created)

	// Slows down: condition clears, but the debounce window still holds.
	e.EvaluateSample(tracker, speedSample("t1", 80), nil, fakeFences{})
	created = e.EvaluateSample(tracker, speedSample("t1", 120), nil, fakeFences{})
	assert.Empty(t, created)

	// Past the window, a fresh episode fires again.
	*now = now.Add(6 * time.Minute)
	e.EvaluateSample(tracker, speedSample("t1", 80), nil, fakeFences{})
	created = e.EvaluateSample(tracker, speedSample("t1", 120), nil, fakeFences{})
	require.Len(t, created, 1)
}

func TestResolvedAlertMayFireAgainAfterWindow(t *testing.T) {
	e, now := testEngine(DefaultConfig())
	tracker := domain.Tracker{ID: "t1", SpeedLimitKmh: 90}

	created := e.EvaluateSample(tracker, speedSample("t1", 120), nil, fakeFences{})
	require.Len(t, created, 1)

	_, err := e.UpdateStatus(created[0].ID, domain.StatusResolved, "ops")
	require.NoError(t, err)

	// Open marker released, but the window still applies.
	assert.Empty(t, e.EvaluateSample(tracker, speedSample("t1", 120), nil, fakeFences{}))

	*now = now.Add(6 * time.Minute)
	created = e.EvaluateSample(tracker, speedSample("t1", 120), nil, fakeFences{})
	require.Len(t, created, 1)
}

func TestTransitionAlerts(t *testing.T) {
	fences := fakeFences{
		"depot": {ID: "depot", Name: "Depot", Mode: domain.AlertOnBoth},
	}
	tracker := domain.Tracker{ID: "t1", GeofenceAlerts: true}
	tr := domain.TransitionEvent{
		TrackerID:  "t1",
		GeofenceID: "depot",
		Type:       domain.TransitionEnter,
		Lat:        52.52,
		Lng:        13.405,
	}

	e, _ := testEngine(DefaultConfig())
	created := e.EvaluateSample(tracker, speedSample("t1", 10), []domain.TransitionEvent{tr}, fences)
	require.Len(t, created, 1)
	assert.Equal(t, domain.AlertGeofenceEnter, created[0].Type)
	assert.Equal(t, "depot", created[0].GeofenceID)
	assert.Contains(t, created[0].Message, "entered")
}

func TestTransitionRespectsTrackerOptOut(t *testing.T) {
	fences := fakeFences{"depot": {ID: "depot", Mode: domain.AlertOnBoth}}
	tracker := domain.Tracker{ID: "t1", GeofenceAlerts: false}
	tr := domain.TransitionEvent{TrackerID: "t1", GeofenceID: "depot", Type: domain.TransitionEnter}

	e, _ := testEngine(DefaultConfig())
	created := e.EvaluateSample(tracker, speedSample("t1", 10), []domain.TransitionEvent{tr}, fences)
	assert.Empty(t, created)
}

func TestTransitionRespectsFenceMode(t *testing.T) {
	fences := fakeFences{"depot": {ID: "depot", Mode: domain.AlertOnExit}}
	tracker := domain.Tracker{ID: "t1", GeofenceAlerts: true}

	e, _ := testEngine(DefaultConfig())

	enter := domain.TransitionEvent{TrackerID: "t1", GeofenceID: "depot", Type: domain.TransitionEnter}
	assert.Empty(t, e.EvaluateSample(tracker, speedSample("t1", 10), []domain.TransitionEvent{enter}, fences))

	exit := domain.TransitionEvent{TrackerID: "t1", GeofenceID: "depot", Type: domain.TransitionExit}
	created := e.EvaluateSample(tracker, speedSample("t1", 10), []domain.TransitionEvent{exit}, fences)
	require.Len(t, created, 1)
	assert.Equal(t, domain.AlertGeofenceExit, created[0].Type)
}

func TestDeviceFlagAlerts(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	sample := speedSample("t1", 10)
	sample.Flags = domain.DeviceFlags{SOS: true, LowBattery: true}

	created := e.EvaluateSample(domain.Tracker{ID: "t1"}, sample, nil, fakeFences{})
	require.Len(t, created, 2)

	byType := map[domain.AlertType]domain.Severity{}
	for _, a := range created {
		byType[a.Type] = a.Severity
	}
	assert.Equal(t, domain.SeverityCritical, byType[domain.AlertSOS])
	assert.Equal(t, domain.SeverityMedium, byType[domain.AlertLowBattery])
}

func TestDeviceFlagClearsAndRefires(t *testing.T) {
	e, now := testEngine(DefaultConfig())
	tracker := domain.Tracker{ID: "t1"}

	flagged := speedSample("t1", 10)
	flagged.Flags = domain.DeviceFlags{SOS: true}

	require.Len(t, e.EvaluateSample(tracker, flagged, nil, fakeFences{}), 1)
	assert.Empty(t, e.EvaluateSample(tracker, flagged, nil, fakeFences{}))

	// Flag drops, window passes, flag raises again.
	e.EvaluateSample(tracker, speedSample("t1", 10), nil, fakeFences{})
	*now = now.Add(6 * time.Minute)
	require.Len(t, e.EvaluateSample(tracker, flagged, nil, fakeFences{}), 1)
}

func TestOfflineAlertOncePerEpisode(t *testing.T) {
	e, now := testEngine(DefaultConfig())
	lastSeen := now.Add(-10 * time.Minute)

	a := e.EvaluateOffline("t1", lastSeen)
	require.NotNil(t, a)
	assert.Equal(t, domain.AlertOffline, a.Type)
	assert.Equal(t, domain.SeverityHigh, a.Severity)

	// Following sweeps stay silent.
	assert.Nil(t, e.EvaluateOffline("t1", lastSeen))

	// Back online then offline again past the window: fires again.
	e.ClearOffline("t1")
	*now = now.Add(6 * time.Minute)
	assert.NotNil(t, e.EvaluateOffline("t1", lastSeen))
}

func TestLifecycleForwardOnly(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	created := e.External("t1", "door opened", domain.SeverityLow)

	a, err := e.UpdateStatus(created.ID, domain.StatusAcknowledged, "ops")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcknowledged, a.Status)
	assert.Equal(t, "ops", a.AckedBy)
	require.NotNil(t, a.AckedAt)

	// Backwards and same-status transitions are rejected.
	_, err = e.UpdateStatus(created.ID, domain.StatusRead, "ops")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = e.UpdateStatus(created.ID, domain.StatusAcknowledged, "ops")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	a, err = e.UpdateStatus(created.ID, domain.StatusResolved, "ops")
	require.NoError(t, err)
	assert.Equal(t, "ops", a.ResolvedBy)

	_, err = e.UpdateStatus(created.ID, domain.StatusNew, "ops")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateStatusUnknownAlert(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	_, err := e.UpdateStatus("nope", domain.StatusRead, "ops")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	a1 := e.External("t1", "one", domain.SeverityLow)
	e.External("t2", "two", domain.SeverityLow)
	e.External("t1", "three", domain.SeverityLow)

	_, err := e.UpdateStatus(a1.ID, domain.StatusResolved, "ops")
	require.NoError(t, err)

	assert.Len(t, e.List("", ""), 3)
	assert.Len(t, e.List("t1", ""), 2)
	assert.Len(t, e.List("t1", domain.StatusNew), 1)
	assert.Len(t, e.List("", domain.StatusResolved), 1)

	// Creation order is preserved.
	all := e.List("", "")
	assert.Equal(t, "one", all[0].Message)
	assert.Equal(t, "three", all[2].Message)
}

func TestConfigGuardsMonotonicSeverity(t *testing.T) {
	// Misconfigured ratios must not invert the ladder.
	e := NewEngine(Config{HighRatio: 2.0, CriticalRatio: 1.1})
	assert.Greater(t, e.cfg.CriticalRatio, e.cfg.HighRatio)
}
