// Package history keeps the append-only per-tracker position log and
// derives track simplification and travel statistics from it. The log is
// never corrected in place; analytics always recompute from the raw fixes.
package history

import (
	"sort"
	"sync"
	"time"

	"fleettrack/internal/domain"
)

type Log struct {
	mu        sync.RWMutex
	byTracker map[string][]domain.PositionSample
}

func NewLog() *Log {
	return &Log{byTracker: make(map[string][]domain.PositionSample)}
}

// Append adds a sample to the tracker's log. The pipeline appends in
// shard order after the last-write-wins check, so per-tracker timestamps
// are non-decreasing.
func (l *Log) Append(sample *domain.PositionSample) {
	l.mu.Lock()
	l.byTracker[sample.TrackerID] = append(l.byTracker[sample.TrackerID], *sample)
	l.mu.Unlock()
}

// Range returns the samples with start <= timestamp <= end, in time order.
func (l *Log) Range(trackerID string, start, end time.Time) []domain.PositionSample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	samples := l.byTracker[trackerID]
	lo := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(samples), func(i int) bool {
		return samples[i].Timestamp.After(end)
	})
	if lo >= hi {
		return nil
	}
	out := make([]domain.PositionSample, hi-lo)
	copy(out, samples[lo:hi])
	return out
}

// Len reports the number of stored samples for a tracker.
func (l *Log) Len(trackerID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byTracker[trackerID])
}
