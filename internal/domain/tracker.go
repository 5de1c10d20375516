package domain

import "time"

// Tracker is a provisioned GPS device, optionally linked to a vehicle.
// Configuration fields are set at provisioning time; live state lives in
// the state registry and is mutated only by the ingestion pipeline.
type Tracker struct {
	ID        string `json:"id"`
	IMEI      string `json:"imei"`
	VehicleID string `json:"vehicle_id,omitempty"`

	// SpeedLimitKmh is the per-tracker overspeed threshold. Zero disables
	// the overspeed rule for this tracker.
	SpeedLimitKmh  float64 `json:"speed_limit_kmh"`
	GeofenceAlerts bool    `json:"geofence_alerts"`
}

// TrackerSnapshot is a consistent copy of a tracker's live state, safe to
// hand to broadcast subscribers.
type TrackerSnapshot struct {
	TrackerID  string    `json:"tracker_id"`
	Label      string    `json:"label,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   float64   `json:"speed_kmh"`
	HeadingDeg float64   `json:"heading_deg"`
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"last_seen"`
	Timestamp  time.Time `json:"timestamp"`
}
