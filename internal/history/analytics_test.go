package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewLog(), AnalyticsConfig{
		StopSpeedThresholdKmh: 2.0,
		StopMinDwell:          3 * time.Minute,
		Timezone:              "UTC",
	})
	require.NoError(t, err)
	return svc
}

func appendFix(svc *Service, trackerID string, ts time.Time, lat, lng, speed float64) {
	svc.Log().Append(&domain.PositionSample{
		TrackerID:  trackerID,
		Timestamp:  ts,
		ReceivedAt: ts,
		Lat:        lat,
		Lng:        lng,
		SpeedKmh:   speed,
	})
}

func TestNewServiceRejectsBadTimezone(t *testing.T) {
	_, err := NewService(NewLog(), AnalyticsConfig{Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRangeInclusiveBounds(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		appendFix(svc, "t1", base.Add(time.Duration(i)*time.Minute), 52.52, 13.405, 30)
	}

	got := svc.Track("t1", base.Add(time.Minute), base.Add(3*time.Minute))
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(time.Minute), got[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Minute), got[2].Timestamp)

	assert.Empty(t, svc.Track("t1", base.Add(time.Hour), base.Add(2*time.Hour)))
	assert.Empty(t, svc.Track("ghost", base, base.Add(time.Hour)))
}

func TestTravelStats(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// Drive east along the equator for 50 minutes at one fix per minute,
	// then dwell in place for 10 minutes. 0.009 degrees of longitude per
	// minute is very close to 1 km per leg.
	for i := 0; i <= 50; i++ {
		appendFix(svc, "t1", base.Add(time.Duration(i)*time.Minute), 0, float64(i)*0.009, 60)
	}
	for i := 51; i <= 60; i++ {
		appendFix(svc, "t1", base.Add(time.Duration(i)*time.Minute), 0, 50*0.009, 0)
	}

	stats := svc.TravelStats("t1", base, base.Add(time.Hour))
	assert.Equal(t, 61, stats.SampleCount)
	assert.InDelta(t, 50.0, stats.TotalKm, 0.1)
	assert.Equal(t, 60.0, stats.MaxSpeedKmh)

	require.Len(t, stats.Stops, 1)
	assert.Equal(t, base.Add(51*time.Minute), stats.Stops[0].Start)
	assert.Equal(t, 9*time.Minute, stats.Stops[0].Duration)
	assert.Equal(t, 9*time.Minute, stats.StoppedTime)
	assert.Equal(t, 51*time.Minute, stats.MovingTime)
}

// A dip below the threshold shorter than the dwell minimum is jitter, not
// a stop.
func TestTravelStatsIgnoresShortDips(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	speeds := []float64{40, 40, 0, 40, 40, 40}
	for i, sp := range speeds {
		appendFix(svc, "t1", base.Add(time.Duration(i)*time.Minute), 0, float64(i)*0.01, sp)
	}

	stats := svc.TravelStats("t1", base, base.Add(time.Hour))
	assert.Empty(t, stats.Stops)
	assert.Equal(t, time.Duration(0), stats.StoppedTime)
	assert.Equal(t, 5*time.Minute, stats.MovingTime)
}

// A trailing stop, with no moving fix after it, still counts.
func TestTravelStatsTrailingStop(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	appendFix(svc, "t1", base, 0, 0, 40)
	for i := 1; i <= 5; i++ {
		appendFix(svc, "t1", base.Add(time.Duration(i)*time.Minute), 0, 0.01, 0)
	}

	stats := svc.TravelStats("t1", base, base.Add(time.Hour))
	require.Len(t, stats.Stops, 1)
	assert.Equal(t, base.Add(time.Minute), stats.Stops[0].Start)
	assert.Equal(t, 4*time.Minute, stats.Stops[0].Duration)
}

func TestTravelStatsEmptyRange(t *testing.T) {
	svc := newTestService(t)
	stats := svc.TravelStats("t1", time.Now().Add(-time.Hour), time.Now())
	assert.Equal(t, 0, stats.SampleCount)
	assert.Zero(t, stats.TotalKm)
	assert.Empty(t, stats.Stops)
}

func TestDailyMileageSplitsAtMidnight(t *testing.T) {
	svc := newTestService(t)

	// Four fixes straddling midnight UTC, 1 km legs.
	times := []time.Time{
		time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 23, 45, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 15, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC),
	}
	for i, ts := range times {
		appendFix(svc, "t1", ts, 0, float64(i)*0.009, 40)
	}

	days := svc.DailyMileage("t1", times[0], times[3])
	require.Len(t, days, 2)

	// The leg crossing midnight starts on day one.
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.InDelta(t, 2.0, days[0].Km, 0.05)
	assert.Equal(t, "2026-03-02", days[1].Date)
	assert.InDelta(t, 1.0, days[1].Km, 0.05)
}

func TestDailyMileageNeedsTwoFixes(t *testing.T) {
	svc := newTestService(t)
	appendFix(svc, "t1", time.Now(), 0, 0, 0)
	assert.Nil(t, svc.DailyMileage("t1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour)))
}

func TestSimplifyNegativeEpsilon(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Simplify("t1", time.Now().Add(-time.Hour), time.Now(), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSimplifyStraightTrack(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		appendFix(svc, "t1", base.Add(time.Duration(i)*time.Minute), 0, float64(i)*0.01, 40)
	}

	points, err := svc.Simplify("t1", base, base.Add(time.Hour), 25)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, base, points[0].Time)
	assert.Equal(t, base.Add(9*time.Minute), points[1].Time)
}
