// Package geofence decides, for a tracker and a new position, which
// geofence transitions just occurred. Definitions and assignments are
// read-mostly and swapped as immutable snapshots; containment state is
// kept per (tracker, geofence) pair and flips exactly once per crossing.
package geofence

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
)

type snapshot struct {
	fences   map[string]*domain.Geofence
	assigned map[string][]string // tracker id -> geofence ids
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		fences:   make(map[string]*domain.Geofence, len(s.fences)),
		assigned: make(map[string][]string, len(s.assigned)),
	}
	for id, f := range s.fences {
		next.fences[id] = f
	}
	for tid, ids := range s.assigned {
		next.assigned[tid] = append([]string(nil), ids...)
	}
	return next
}

type pairKey struct {
	trackerID  string
	geofenceID string
}

type Index struct {
	defs atomic.Value // *snapshot

	editMu sync.Mutex // serializes snapshot swaps

	mu     sync.Mutex
	inside map[pairKey]bool
}

func NewIndex() *Index {
	idx := &Index{inside: make(map[pairKey]bool)}
	idx.defs.Store(&snapshot{
		fences:   make(map[string]*domain.Geofence),
		assigned: make(map[string][]string),
	})
	return idx
}

func (idx *Index) current() *snapshot {
	return idx.defs.Load().(*snapshot)
}

// Put creates or replaces a geofence definition. A replaced shape
// invalidates stored containment for all pairs involving it, forcing
// re-evaluation on the next sample instead of carrying stale state.
// Invalid geometry rejects the edit and leaves the previous snapshot
// active.
func (idx *Index) Put(g domain.Geofence) error {
	if err := g.Validate(); err != nil {
		return err
	}

	idx.editMu.Lock()
	defer idx.editMu.Unlock()

	next := idx.current().clone()
	_, existed := next.fences[g.ID]
	fence := g
	next.fences[g.ID] = &fence
	idx.defs.Store(next)

	if existed {
		idx.invalidateGeofence(g.ID)
	}
	return nil
}

// Remove deletes a geofence and its assignments.
func (idx *Index) Remove(id string) error {
	idx.editMu.Lock()
	defer idx.editMu.Unlock()

	next := idx.current().clone()
	if _, ok := next.fences[id]; !ok {
		return fmt.Errorf("%w: geofence %s", domain.ErrNotFound, id)
	}
	delete(next.fences, id)
	for tid, ids := range next.assigned {
		next.assigned[tid] = removeString(ids, id)
		if len(next.assigned[tid]) == 0 {
			delete(next.assigned, tid)
		}
	}
	idx.defs.Store(next)

	idx.invalidateGeofence(id)
	return nil
}

// Get returns a geofence definition by id.
func (idx *Index) Get(id string) (domain.Geofence, error) {
	f, ok := idx.current().fences[id]
	if !ok {
		return domain.Geofence{}, fmt.Errorf("%w: geofence %s", domain.ErrNotFound, id)
	}
	return *f, nil
}

// List returns all geofence definitions ordered by id.
func (idx *Index) List() []domain.Geofence {
	snap := idx.current()
	out := make([]domain.Geofence, 0, len(snap.fences))
	for _, f := range snap.fences {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Assign subscribes a tracker to a geofence. Containment starts false
// regardless of the tracker's current position, so the first evaluation
// after assignment may synthesize an enter. Assigning twice is a no-op.
func (idx *Index) Assign(geofenceID, trackerID string) error {
	idx.editMu.Lock()
	defer idx.editMu.Unlock()

	next := idx.current().clone()
	if _, ok := next.fences[geofenceID]; !ok {
		return fmt.Errorf("%w: geofence %s", domain.ErrNotFound, geofenceID)
	}
	for _, id := range next.assigned[trackerID] {
		if id == geofenceID {
			return nil
		}
	}
	next.assigned[trackerID] = append(next.assigned[trackerID], geofenceID)
	idx.defs.Store(next)

	idx.mu.Lock()
	delete(idx.inside, pairKey{trackerID, geofenceID})
	idx.mu.Unlock()
	return nil
}

// Unassign removes a tracker's subscription and its containment state.
func (idx *Index) Unassign(geofenceID, trackerID string) error {
	idx.editMu.Lock()
	defer idx.editMu.Unlock()

	next := idx.current().clone()
	if _, ok := next.fences[geofenceID]; !ok {
		return fmt.Errorf("%w: geofence %s", domain.ErrNotFound, geofenceID)
	}
	next.assigned[trackerID] = removeString(next.assigned[trackerID], geofenceID)
	if len(next.assigned[trackerID]) == 0 {
		delete(next.assigned, trackerID)
	}
	idx.defs.Store(next)

	idx.mu.Lock()
	delete(idx.inside, pairKey{trackerID, geofenceID})
	idx.mu.Unlock()
	return nil
}

// Evaluate computes containment for every active geofence assigned to the
// tracker and emits a transition for each pair whose containment flipped.
// Re-evaluating the same containment produces no event.
func (idx *Index) Evaluate(trackerID string, p geo.Point, at time.Time) []domain.TransitionEvent {
	snap := idx.current()
	ids := snap.assigned[trackerID]
	if len(ids) == 0 {
		return nil
	}

	var events []domain.TransitionEvent

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, gid := range ids {
		fence, ok := snap.fences[gid]
		if !ok || !fence.Active {
			continue
		}

		key := pairKey{trackerID, gid}
		now := fence.Contains(p)
		was := idx.inside[key]
		if now == was {
			continue
		}
		idx.inside[key] = now

		t := domain.TransitionExit
		if now {
			t = domain.TransitionEnter
		}
		events = append(events, domain.TransitionEvent{
			TrackerID:    trackerID,
			GeofenceID:   gid,
			GeofenceName: fence.Name,
			Type:         t,
			Lat:          p.Lat,
			Lng:          p.Lng,
			At:           at,
		})
	}
	return events
}

func (idx *Index) invalidateGeofence(id string) {
	idx.mu.Lock()
	for key := range idx.inside {
		if key.geofenceID == id {
			delete(idx.inside, key)
		}
	}
	idx.mu.Unlock()
}

func removeString(in []string, s string) []string {
	out := in[:0]
	for _, v := range in {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
