package domain

import (
	"fmt"
	"time"

	"fleettrack/internal/geo"
)

type GeofenceShape string

const (
	ShapeCircle  GeofenceShape = "circle"
	ShapePolygon GeofenceShape = "polygon"
)

// AlertMode selects which containment transitions produce alerts.
type AlertMode string

const (
	AlertOnEnter AlertMode = "enter"
	AlertOnExit  AlertMode = "exit"
	AlertOnBoth  AlertMode = "both"
)

// Geofence is a named circular or polygonal region. Polygon rings are
// treated as simple and open; the closing edge is implied. The core does
// not validate self-intersection — callers must supply valid rings.
type Geofence struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Shape  GeofenceShape `json:"shape"`
	Center geo.Point     `json:"center,omitempty"`
	RadiusM float64      `json:"radius_m,omitempty"`
	Ring   []geo.Point   `json:"ring,omitempty"`
	Mode   AlertMode     `json:"mode"`
	Active bool          `json:"active"`
}

// Validate enforces the shape invariants. A failed edit leaves the
// previous definition active.
func (g *Geofence) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("%w: geofence id is required", ErrInvalidInput)
	}
	switch g.Shape {
	case ShapeCircle:
		if g.RadiusM <= 0 {
			return fmt.Errorf("%w: circle radius must be > 0, got %v", ErrInvalidInput, g.RadiusM)
		}
	case ShapePolygon:
		if len(g.Ring) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidInput, len(g.Ring))
		}
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidInput, g.Shape)
	}
	switch g.Mode {
	case AlertOnEnter, AlertOnExit, AlertOnBoth:
	default:
		return fmt.Errorf("%w: unknown alert mode %q", ErrInvalidInput, g.Mode)
	}
	return nil
}

// Contains evaluates point containment for this geofence's shape.
func (g *Geofence) Contains(p geo.Point) bool {
	switch g.Shape {
	case ShapeCircle:
		return geo.InCircle(p, g.Center, g.RadiusM)
	case ShapePolygon:
		return geo.InPolygon(p, g.Ring)
	default:
		return false
	}
}

// WantsAlert reports whether the configured mode covers the given
// transition type.
func (g *Geofence) WantsAlert(t TransitionType) bool {
	switch g.Mode {
	case AlertOnBoth:
		return true
	case AlertOnEnter:
		return t == TransitionEnter
	case AlertOnExit:
		return t == TransitionExit
	}
	return false
}

type TransitionType string

const (
	TransitionEnter TransitionType = "enter"
	TransitionExit  TransitionType = "exit"
)

// TransitionEvent records a containment flip for one (tracker, geofence)
// pair, emitted by the geofence index exactly once per flip.
type TransitionEvent struct {
	TrackerID    string         `json:"tracker_id"`
	GeofenceID   string         `json:"geofence_id"`
	GeofenceName string         `json:"geofence_name"`
	Type         TransitionType `json:"type"`
	Lat          float64        `json:"lat"`
	Lng          float64        `json:"lng"`
	At           time.Time      `json:"at"`
}
