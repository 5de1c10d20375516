package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fleettrack/internal/domain"
	"fleettrack/internal/metrics"
)

// StateMirror replicates live state and alerts to out-of-process readers.
type StateMirror interface {
	MirrorState(ctx context.Context, snap domain.TrackerSnapshot) error
	PublishAlert(ctx context.Context, a domain.Alert) error
}

// Mirror forwards snapshots and alerts to the mirror store off the shard
// goroutines. A full queue drops the update; the next sample refreshes the
// mirror anyway.
type Mirror struct {
	snapCh  chan domain.TrackerSnapshot
	alertCh chan domain.Alert
	store   StateMirror
	log     zerolog.Logger
}

func NewMirror(store StateMirror, channelSize int, log zerolog.Logger) *Mirror {
	return &Mirror{
		snapCh:  make(chan domain.TrackerSnapshot, channelSize),
		alertCh: make(chan domain.Alert, 256),
		store:   store,
		log:     log,
	}
}

func (m *Mirror) EnqueueSnapshot(snap domain.TrackerSnapshot) {
	select {
	case m.snapCh <- snap:
	default:
		metrics.MirrorDrops.Add(1)
	}
}

func (m *Mirror) EnqueueAlert(a domain.Alert) {
	select {
	case m.alertCh <- a:
	default:
		metrics.MirrorDrops.Add(1)
	}
}

func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case snap := <-m.snapCh:
			writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := m.store.MirrorState(writeCtx, snap); err != nil {
				m.log.Warn().Err(err).Str("tracker_id", snap.TrackerID).Msg("state mirror failed")
			}
			cancel()

		case a := <-m.alertCh:
			writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := m.store.PublishAlert(writeCtx, a); err != nil {
				m.log.Warn().Err(err).Str("alert_id", a.ID).Msg("alert publish failed")
			}
			cancel()

		case <-ctx.Done():
			return
		}
	}
}
