package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/domain"
)

func sampleAt(trackerID string, ts time.Time, speed float64) *domain.PositionSample {
	return &domain.PositionSample{
		TrackerID:  trackerID,
		Timestamp:  ts,
		ReceivedAt: ts.Add(200 * time.Millisecond),
		Lat:        52.52,
		Lng:        13.405,
		SpeedKmh:   speed,
	}
}

func TestProvisionAndConfig(t *testing.T) {
	r := NewRegistry()

	err := r.Provision(domain.Tracker{ID: "t1", IMEI: "356938035643809", SpeedLimitKmh: 90})
	require.NoError(t, err)

	cfg, err := r.Config("t1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.SpeedLimitKmh)

	_, err = r.Config("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProvisionRequiresID(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Provision(domain.Tracker{}), domain.ErrInvalidInput)
}

// Re-provisioning updates the config but must not wipe live state.
func TestReprovisionKeepsLiveState(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Provision(domain.Tracker{ID: "t1", SpeedLimitKmh: 90}))

	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err := r.Update(sampleAt("t1", ts, 40))
	require.NoError(t, err)

	require.NoError(t, r.Provision(domain.Tracker{ID: "t1", SpeedLimitKmh: 60}))

	snap, ok := r.Snapshot("t1")
	require.True(t, ok)
	assert.True(t, snap.Online)
	assert.Equal(t, ts, snap.Timestamp)
}

func TestUpdateUnknownTracker(t *testing.T) {
	r := NewRegistry()
	_, err := r.Update(sampleAt("ghost", time.Now(), 0))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateLastWriteWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Provision(domain.Tracker{ID: "t1"}))

	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	res, err := r.Update(sampleAt("t1", ts, 40))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	// Older sample is dropped entirely.
	res, err = r.Update(sampleAt("t1", ts.Add(-time.Minute), 80))
	require.NoError(t, err)
	assert.False(t, res.Accepted)

	snap, _ := r.Snapshot("t1")
	assert.Equal(t, 40.0, snap.SpeedKmh)

	// Equal timestamp overwrites (duplicate redelivery).
	res, err = r.Update(sampleAt("t1", ts, 41))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	snap, _ = r.Snapshot("t1")
	assert.Equal(t, 41.0, snap.SpeedKmh)
}

func TestCameOnlineOnlyOnFlip(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Provision(domain.Tracker{ID: "t1"}))

	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// First ever sample: the tracker was never offline, just unknown.
	res, err := r.Update(sampleAt("t1", ts, 10))
	require.NoError(t, err)
	assert.False(t, res.CameOnline)

	// Still online, no flip.
	res, err = r.Update(sampleAt("t1", ts.Add(time.Minute), 10))
	require.NoError(t, err)
	assert.False(t, res.CameOnline)

	require.True(t, r.MarkOffline("t1"))

	res, err = r.Update(sampleAt("t1", ts.Add(10*time.Minute), 10))
	require.NoError(t, err)
	assert.True(t, res.CameOnline)
}

func TestMarkOfflineFlipsOnce(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Provision(domain.Tracker{ID: "t1"}))
	_, err := r.Update(sampleAt("t1", time.Now(), 0))
	require.NoError(t, err)

	assert.True(t, r.MarkOffline("t1"))
	assert.False(t, r.MarkOffline("t1"))
	assert.False(t, r.MarkOffline("ghost"))
}

func TestSnapshotsSortedByID(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, r.Provision(domain.Tracker{ID: id}))
	}

	snaps := r.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "alpha", snaps[0].TrackerID)
	assert.Equal(t, "bravo", snaps[1].TrackerID)
	assert.Equal(t, "charlie", snaps[2].TrackerID)
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Provision(domain.Tracker{ID: "t1", IMEI: "356938035643809", VehicleID: "truck-12"}))
	require.NoError(t, r.Provision(domain.Tracker{ID: "t2", IMEI: "356938035643810"}))

	label, err := r.Resolve("t1")
	require.NoError(t, err)
	assert.Equal(t, "truck-12", label)

	label, err = r.Resolve("t2")
	require.NoError(t, err)
	assert.Equal(t, "356938035643810", label)

	_, err = r.Resolve("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIsOffline(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	timeout := 5 * time.Minute

	tests := []struct {
		name     string
		lastSeen time.Time
		want     bool
	}{
		{"never reported", time.Time{}, false},
		{"fresh", now.Add(-time.Minute), false},
		{"exactly at timeout", now.Add(-timeout), false},
		{"past timeout", now.Add(-timeout - time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOffline(tt.lastSeen, now, timeout))
		})
	}
}
