package domain

import "time"

// Server-to-client event types carried over the broadcast hub.
const (
	EventPositionUpdate = "position:update"
	EventPositionsBatch = "positions:batch"
	EventAlertNew       = "alert:new"
	EventGeofenceEvent  = "geofence:event"
	EventTrackerStatus  = "tracker:status"
)

// TopicAlerts receives every alert regardless of tracker subscriptions.
const TopicAlerts = "alerts:*"

func TopicTracker(id string) string  { return "tracker:" + id }
func TopicGeofence(id string) string { return "geofence:" + id }

// Event is one unit of fan-out. Topics name the subscriptions it is
// delivered to; delivery order per topic matches production order.
type Event struct {
	Type    string   `json:"type"`
	Topics  []string `json:"-"`
	Payload any      `json:"data"`
}

// StatusChange is the payload of a tracker:status event.
type StatusChange struct {
	TrackerID string    `json:"tracker_id"`
	Online    bool      `json:"online"`
	LastSeen  time.Time `json:"last_seen"`
}
