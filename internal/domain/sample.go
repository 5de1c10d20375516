package domain

import (
	"fmt"
	"time"
)

// DeviceFlags are the conditions a tracker reports about itself. The core
// never infers these; they are packaged into alerts as-is.
type DeviceFlags struct {
	LowBattery bool `json:"low_battery,omitempty"`
	SOS        bool `json:"sos,omitempty"`
	Vibration  bool `json:"vibration,omitempty"`
	PowerCut   bool `json:"power_cut,omitempty"`
}

func (f DeviceFlags) Any() bool {
	return f.LowBattery || f.SOS || f.Vibration || f.PowerCut
}

// PositionSample is one immutable observation from a tracker, already
// normalized by the upstream transport. Appended to history, never mutated.
type PositionSample struct {
	ReceivedAt time.Time `json:"received_at"`

	TrackerID string    `json:"tracker_id"`
	Timestamp time.Time `json:"timestamp"`

	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	SpeedKmh   float64 `json:"speed_kmh"`
	HeadingDeg float64 `json:"heading_deg"`
	AltitudeM  float64 `json:"altitude_m,omitempty"`
	OdometerKm float64 `json:"odometer_km,omitempty"`

	Online bool        `json:"online"`
	Flags  DeviceFlags `json:"flags,omitempty"`
}

// Validate rejects malformed samples before they touch any state.
func (s *PositionSample) Validate() error {
	if s.TrackerID == "" {
		return fmt.Errorf("%w: tracker_id is required", ErrInvalidInput)
	}
	if s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidInput, s.Lat)
	}
	if s.Lng < -180 || s.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidInput, s.Lng)
	}
	if s.SpeedKmh < 0 {
		return fmt.Errorf("%w: negative speed %v", ErrInvalidInput, s.SpeedKmh)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	return nil
}
