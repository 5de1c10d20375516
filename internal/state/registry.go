// Package state is the single source of truth for where each tracker is
// right now and whether it is online. Live state is mutated only by the
// ingestion pipeline; readers always get consistent copies.
package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"fleettrack/internal/domain"
)

type entry struct {
	cfg  domain.Tracker
	live domain.TrackerSnapshot
}

type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*entry)}
}

// Provision registers a tracker. Re-provisioning an existing id updates its
// configuration and keeps the live state.
func (r *Registry) Provision(t domain.Tracker) error {
	if t.ID == "" {
		return fmt.Errorf("%w: tracker id is required", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.trackers[t.ID]; ok {
		e.cfg = t
		return nil
	}
	r.trackers[t.ID] = &entry{
		cfg:  t,
		live: domain.TrackerSnapshot{TrackerID: t.ID},
	}
	return nil
}

// Config returns the provisioning-time configuration for a tracker.
func (r *Registry) Config(id string) (domain.Tracker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.trackers[id]
	if !ok {
		return domain.Tracker{}, fmt.Errorf("%w: tracker %s", domain.ErrNotFound, id)
	}
	return e.cfg, nil
}

// UpdateResult describes what an Update call actually did.
type UpdateResult struct {
	// Accepted is false when the sample was older than the stored state
	// (last-write-wins by timestamp, not arrival order).
	Accepted bool
	// CameOnline is true when this update flipped the tracker from
	// offline to online.
	CameOnline bool
}

// Update applies a sample to the tracker's live state. Samples whose
// timestamp is older than the stored one are dropped; equal timestamps
// overwrite (duplicate redelivery carries the same values). Any accepted
// sample marks the tracker online and refreshes last-seen.
func (r *Registry) Update(sample *domain.PositionSample) (UpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.trackers[sample.TrackerID]
	if !ok {
		return UpdateResult{}, fmt.Errorf("%w: tracker %s", domain.ErrNotFound, sample.TrackerID)
	}

	if !e.live.Timestamp.IsZero() && sample.Timestamp.Before(e.live.Timestamp) {
		return UpdateResult{}, nil
	}

	wasOffline := !e.live.Online
	hadState := !e.live.Timestamp.IsZero()

	e.live.Lat = sample.Lat
	e.live.Lng = sample.Lng
	e.live.SpeedKmh = sample.SpeedKmh
	e.live.HeadingDeg = sample.HeadingDeg
	e.live.Timestamp = sample.Timestamp
	e.live.LastSeen = sample.ReceivedAt
	e.live.Online = true

	return UpdateResult{
		Accepted:   true,
		CameOnline: hadState && wasOffline,
	}, nil
}

// MarkOffline flips the tracker offline. Returns true only on an actual
// flip, so the sweep emits one offline transition, not one per tick.
func (r *Registry) MarkOffline(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.trackers[id]
	if !ok || !e.live.Online {
		return false
	}
	e.live.Online = false
	return true
}

// Snapshot returns a consistent copy of one tracker's live state.
func (r *Registry) Snapshot(id string) (domain.TrackerSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.trackers[id]
	if !ok {
		return domain.TrackerSnapshot{}, false
	}
	return e.live, true
}

// Snapshots returns every tracker's live state, ordered by id. Used for
// the periodic batch broadcast so it reads the same state as individual
// updates.
func (r *Registry) Snapshots() []domain.TrackerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TrackerSnapshot, 0, len(r.trackers))
	for _, e := range r.trackers {
		out = append(out, e.live)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackerID < out[j].TrackerID })
	return out
}

// Resolve maps a tracker id to the label shown on dashboards: the
// vehicle id when one was provisioned, otherwise the IMEI.
func (r *Registry) Resolve(trackerID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.trackers[trackerID]
	if !ok {
		return "", fmt.Errorf("%w: tracker %s", domain.ErrNotFound, trackerID)
	}
	if e.cfg.VehicleID != "" {
		return e.cfg.VehicleID, nil
	}
	return e.cfg.IMEI, nil
}

// IDs lists provisioned tracker ids for the offline sweep.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.trackers))
	for id := range r.trackers {
		out = append(out, id)
	}
	return out
}

// IsOffline is the pure offline check: absence of data for longer than the
// timeout. Trackers that never reported are not "offline", they are
// unknown to the sweep.
func IsOffline(lastSeen, now time.Time, timeout time.Duration) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) > timeout
}
