package domain

import (
	"fmt"
	"time"
)

type AlertType string

const (
	AlertOverspeed     AlertType = "overspeed"
	AlertGeofenceEnter AlertType = "geofence_enter"
	AlertGeofenceExit  AlertType = "geofence_exit"
	AlertOffline       AlertType = "offline"
	AlertLowBattery    AlertType = "low_battery"
	AlertSOS           AlertType = "sos"
	AlertVibration     AlertType = "vibration"
	AlertPowerCut      AlertType = "power_cut"
	AlertExternal      AlertType = "external"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for monotonicity checks.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// AlertStatus follows a strict forward lifecycle:
// new -> read -> acknowledged -> resolved. Skipping forward is allowed,
// going backward is not, and resolved is terminal.
type AlertStatus string

const (
	StatusNew          AlertStatus = "new"
	StatusRead         AlertStatus = "read"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

func statusRank(s AlertStatus) int {
	switch s {
	case StatusNew:
		return 0
	case StatusRead:
		return 1
	case StatusAcknowledged:
		return 2
	case StatusResolved:
		return 3
	}
	return -1
}

// Alert is one rule firing with its operator-facing lifecycle.
type Alert struct {
	ID        string      `json:"id"`
	TrackerID string      `json:"tracker_id"`
	Type      AlertType   `json:"type"`
	Severity  Severity    `json:"severity"`
	Status    AlertStatus `json:"status"`
	Message   string      `json:"message"`

	// Geo context recorded at trigger time.
	GeofenceID    string  `json:"geofence_id,omitempty"`
	Lat           float64 `json:"lat,omitempty"`
	Lng           float64 `json:"lng,omitempty"`
	SpeedKmh      float64 `json:"speed_kmh,omitempty"`
	SpeedLimitKmh float64 `json:"speed_limit_kmh,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	AckedAt    *time.Time `json:"acked_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	AckedBy    string     `json:"acked_by,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// Transition advances the status, recording actor and timestamps. It fails
// with ErrInvalidTransition for backward or repeated moves.
func (a *Alert) Transition(to AlertStatus, actor string, now time.Time) error {
	toRank := statusRank(to)
	if toRank < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	if statusRank(a.Status) >= toRank {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	a.Status = to
	switch to {
	case StatusAcknowledged:
		a.AckedAt = &now
		a.AckedBy = actor
	case StatusResolved:
		a.ResolvedAt = &now
		a.ResolvedBy = actor
	}
	return nil
}
