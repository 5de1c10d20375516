// Package alert turns observations and geofence transitions into Alert
// records. Each rule is independent; all may fire for one sample. An open
// alert per (tracker, type, condition) plus a debounce window keeps a
// still-ongoing condition from flooding the operator.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
)

// Config carries the tunable rule thresholds. Severity must stay monotonic
// with excess speed, so the ratios are validated by construction order:
// medium below HighRatio, high below CriticalRatio, critical beyond.
type Config struct {
	DebounceWindow time.Duration
	HighRatio      float64
	CriticalRatio  float64
}

// DefaultConfig mirrors the production env defaults.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 5 * time.Minute,
		HighRatio:      1.25,
		CriticalRatio:  1.5,
	}
}

type condKey struct {
	trackerID string
	alertType domain.AlertType
	condition string // geofence id for geofence types, empty otherwise
}

type Engine struct {
	cfg Config

	mu        sync.Mutex
	alerts    map[string]*domain.Alert
	order     []string // creation order, for listing
	open      map[condKey]string
	lastFired map[condKey]time.Time

	now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.HighRatio <= 1 {
		cfg.HighRatio = 1.25
	}
	if cfg.CriticalRatio <= cfg.HighRatio {
		cfg.CriticalRatio = cfg.HighRatio * 1.2
	}
	return &Engine{
		cfg:       cfg,
		alerts:    make(map[string]*domain.Alert),
		open:      make(map[condKey]string),
		lastFired: make(map[condKey]time.Time),
		now:       time.Now,
	}
}

// EvaluateSample runs the per-sample rules in order: overspeed, geofence
// transitions, device-reported conditions. Transitions are assumed to come
// from the geofence index for this same sample.
func (e *Engine) EvaluateSample(
	tracker domain.Tracker,
	sample *domain.PositionSample,
	transitions []domain.TransitionEvent,
	fences FenceResolver,
) []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var created []domain.Alert

	if a := e.evalOverspeed(tracker, sample); a != nil {
		created = append(created, *a)
	}
	for _, tr := range transitions {
		if a := e.evalTransition(tracker, tr, fences); a != nil {
			created = append(created, *a)
		}
	}
	created = append(created, e.evalDeviceFlags(sample)...)

	return created
}

// FenceResolver looks geofence definitions up for the alert-mode filter.
type FenceResolver interface {
	Get(id string) (domain.Geofence, error)
}

func (e *Engine) evalOverspeed(tracker domain.Tracker, sample *domain.PositionSample) *domain.Alert {
	key := condKey{sample.TrackerID, domain.AlertOverspeed, ""}

	if tracker.SpeedLimitKmh <= 0 || sample.SpeedKmh <= tracker.SpeedLimitKmh {
		// Condition cleared: the next overspeed may open a fresh alert.
		delete(e.open, key)
		return nil
	}

	if !e.mayFire(key) {
		return nil
	}

	ratio := sample.SpeedKmh / tracker.SpeedLimitKmh
	severity := domain.SeverityMedium
	switch {
	case ratio >= e.cfg.CriticalRatio:
		severity = domain.SeverityCritical
	case ratio >= e.cfg.HighRatio:
		severity = domain.SeverityHigh
	}

	a := e.create(domain.Alert{
		TrackerID: sample.TrackerID,
		Type:      domain.AlertOverspeed,
		Severity:  severity,
		Message: fmt.Sprintf("speed %.0f km/h exceeds limit %.0f km/h",
			sample.SpeedKmh, tracker.SpeedLimitKmh),
		Lat:           sample.Lat,
		Lng:           sample.Lng,
		SpeedKmh:      sample.SpeedKmh,
		SpeedLimitKmh: tracker.SpeedLimitKmh,
	}, key)
	return a
}

func (e *Engine) evalTransition(tracker domain.Tracker, tr domain.TransitionEvent, fences FenceResolver) *domain.Alert {
	if !tracker.GeofenceAlerts {
		return nil
	}

	fence, err := fences.Get(tr.GeofenceID)
	if err != nil || !fence.WantsAlert(tr.Type) {
		return nil
	}

	alertType := domain.AlertGeofenceExit
	verb := "left"
	if tr.Type == domain.TransitionEnter {
		alertType = domain.AlertGeofenceEnter
		verb = "entered"
	}

	key := condKey{tr.TrackerID, alertType, tr.GeofenceID}
	// The opposite transition clears this pair's previous condition.
	opposite := domain.AlertGeofenceEnter
	if alertType == domain.AlertGeofenceEnter {
		opposite = domain.AlertGeofenceExit
	}
	delete(e.open, condKey{tr.TrackerID, opposite, tr.GeofenceID})

	if !e.mayFire(key) {
		return nil
	}

	return e.create(domain.Alert{
		TrackerID:  tr.TrackerID,
		Type:       alertType,
		Severity:   domain.SeverityMedium,
		Message:    fmt.Sprintf("tracker %s %s geofence %s", tr.TrackerID, verb, fence.Name),
		GeofenceID: tr.GeofenceID,
		Lat:        tr.Lat,
		Lng:        tr.Lng,
	}, key)
}

// Severity for device-reported conditions is fixed by type.
var deviceFlagRules = []struct {
	alertType domain.AlertType
	severity  domain.Severity
	message   string
	isSet     func(domain.DeviceFlags) bool
}{
	{domain.AlertSOS, domain.SeverityCritical, "SOS button pressed", func(f domain.DeviceFlags) bool { return f.SOS }},
	{domain.AlertPowerCut, domain.SeverityHigh, "device power cut", func(f domain.DeviceFlags) bool { return f.PowerCut }},
	{domain.AlertLowBattery, domain.SeverityMedium, "device battery low", func(f domain.DeviceFlags) bool { return f.LowBattery }},
	{domain.AlertVibration, domain.SeverityMedium, "vibration detected", func(f domain.DeviceFlags) bool { return f.Vibration }},
}

func (e *Engine) evalDeviceFlags(sample *domain.PositionSample) []domain.Alert {
	var created []domain.Alert
	for _, rule := range deviceFlagRules {
		key := condKey{sample.TrackerID, rule.alertType, ""}
		if !rule.isSet(sample.Flags) {
			delete(e.open, key)
			continue
		}
		if !e.mayFire(key) {
			continue
		}
		a := e.create(domain.Alert{
			TrackerID: sample.TrackerID,
			Type:      rule.alertType,
			Severity:  rule.severity,
			Message:   rule.message,
			Lat:       sample.Lat,
			Lng:       sample.Lng,
		}, key)
		created = append(created, *a)
	}
	return created
}

// EvaluateOffline is invoked by the periodic sweep after the state
// registry flips a tracker offline. The open marker guarantees one alert
// per continuous offline episode; ClearOffline releases it when the
// tracker reports again.
func (e *Engine) EvaluateOffline(trackerID string, lastSeen time.Time) *domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := condKey{trackerID, domain.AlertOffline, ""}
	if !e.mayFire(key) {
		return nil
	}
	return e.create(domain.Alert{
		TrackerID: trackerID,
		Type:      domain.AlertOffline,
		Severity:  domain.SeverityHigh,
		Message:   fmt.Sprintf("no data since %s", lastSeen.UTC().Format(time.RFC3339)),
	}, key)
}

// ClearOffline marks the offline condition as ended.
func (e *Engine) ClearOffline(trackerID string) {
	e.mu.Lock()
	delete(e.open, condKey{trackerID, domain.AlertOffline, ""})
	e.mu.Unlock()
}

// External packages an alert produced outside the rule set (platform
// events from the upstream aggregator).
func (e *Engine) External(trackerID, message string, severity domain.Severity) domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.create(domain.Alert{
		TrackerID: trackerID,
		Type:      domain.AlertExternal,
		Severity:  severity,
		Message:   message,
	}, condKey{trackerID, domain.AlertExternal, message})
	return *a
}

// mayFire checks the open marker and the debounce window. Callers hold e.mu.
func (e *Engine) mayFire(key condKey) bool {
	if _, isOpen := e.open[key]; isOpen {
		return false
	}
	if last, ok := e.lastFired[key]; ok && e.now().Sub(last) < e.cfg.DebounceWindow {
		return false
	}
	return true
}

// create records the alert and its open marker. Callers hold e.mu.
func (e *Engine) create(a domain.Alert, key condKey) *domain.Alert {
	a.ID = uuid.New().String()
	a.Status = domain.StatusNew
	a.CreatedAt = e.now()

	e.alerts[a.ID] = &a
	e.order = append(e.order, a.ID)
	e.open[key] = a.ID
	e.lastFired[key] = a.CreatedAt
	return &a
}

// Get returns one alert by id.
func (e *Engine) Get(id string) (domain.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: alert %s", domain.ErrNotFound, id)
	}
	return *a, nil
}

// List returns alerts in creation order, optionally filtered by tracker
// and status.
func (e *Engine) List(trackerID string, status domain.AlertStatus) []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Alert, 0, len(e.order))
	for _, id := range e.order {
		a := e.alerts[id]
		if trackerID != "" && a.TrackerID != trackerID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// UpdateStatus advances an alert's lifecycle. Resolving releases the open
// marker so the same condition may alert again.
func (e *Engine) UpdateStatus(id string, to domain.AlertStatus, actor string) (domain.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: alert %s", domain.ErrNotFound, id)
	}
	if err := a.Transition(to, actor, e.now()); err != nil {
		return domain.Alert{}, err
	}
	if to == domain.StatusResolved {
		for key, openID := range e.open {
			if openID == id {
				delete(e.open, key)
			}
		}
	}
	return *a, nil
}
