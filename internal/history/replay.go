package history

import (
	"context"
	"fmt"
	"time"

	"fleettrack/internal/domain"
)

// Archive is the durable sample store the log is rebuilt from after a
// restart.
type Archive interface {
	ActiveTrackers(ctx context.Context, since time.Time) ([]string, error)
	FetchRange(ctx context.Context, trackerID string, start, end time.Time) ([]domain.PositionSample, error)
}

// Replay loads the recent archive window back into the log so history
// queries keep working across restarts. A window of zero disables the
// replay. Returns the number of samples restored.
func Replay(ctx context.Context, src Archive, log *Log, window time.Duration, now time.Time) (int, error) {
	if window <= 0 {
		return 0, nil
	}
	since := now.Add(-window)

	ids, err := src.ActiveTrackers(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("listing active trackers: %w", err)
	}

	total := 0
	for _, id := range ids {
		samples, err := src.FetchRange(ctx, id, since, now)
		if err != nil {
			return total, fmt.Errorf("fetching archive for %s: %w", id, err)
		}
		for i := range samples {
			log.Append(&samples[i])
		}
		total += len(samples)
	}
	return total, nil
}
