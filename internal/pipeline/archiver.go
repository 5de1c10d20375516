package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fleettrack/internal/domain"
	"fleettrack/internal/metrics"
)

// PositionArchive is the durable sink for position batches.
type PositionArchive interface {
	BatchInsert(ctx context.Context, samples []*domain.PositionSample) error
}

// AlertArchive persists alert rows and their status changes.
type AlertArchive interface {
	InsertAlert(ctx context.Context, a domain.Alert) error
}

// Archiver drains samples and alerts into the durable store without ever
// blocking a shard: enqueues are non-blocking and overflow is counted and
// dropped. Samples are batched and flushed on size or interval.
type Archiver struct {
	sampleCh chan *domain.PositionSample
	alertCh  chan domain.Alert

	positions PositionArchive
	alerts    AlertArchive

	batchSize     int
	flushInterval time.Duration
	log           zerolog.Logger
}

func NewArchiver(
	positions PositionArchive,
	alerts AlertArchive,
	channelSize int,
	batchSize int,
	flushInterval time.Duration,
	log zerolog.Logger,
) *Archiver {
	return &Archiver{
		sampleCh:      make(chan *domain.PositionSample, channelSize),
		alertCh:       make(chan domain.Alert, 256),
		positions:     positions,
		alerts:        alerts,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           log,
	}
}

// EnqueueSample hands a sample to the batch writer. Never blocks.
func (a *Archiver) EnqueueSample(sample *domain.PositionSample) {
	select {
	case a.sampleCh <- sample:
	default:
		metrics.ArchiveDrops.Add(1)
	}
}

// EnqueueAlert hands an alert to the writer. Never blocks.
func (a *Archiver) EnqueueAlert(alert domain.Alert) {
	select {
	case a.alertCh <- alert:
	default:
		metrics.ArchiveDrops.Add(1)
	}
}

func (a *Archiver) Run(ctx context.Context) {
	batch := make([]*domain.PositionSample, 0, a.batchSize)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case sample := <-a.sampleCh:
			batch = append(batch, sample)
			if len(batch) >= a.batchSize {
				a.flush(ctx, batch)
				batch = batch[:0]
			}

		case alert := <-a.alertCh:
			if err := a.alerts.InsertAlert(ctx, alert); err != nil {
				a.log.Error().Err(err).Str("alert_id", alert.ID).Msg("alert archive failed")
				metrics.ArchiveFailures.Add(1)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				a.flush(context.Background(), batch)
			}
			return
		}
	}
}

func (a *Archiver) flush(ctx context.Context, batch []*domain.PositionSample) {
	err := a.positions.BatchInsert(ctx, batch)
	if err != nil {
		a.log.Warn().Err(err).Int("batch", len(batch)).Msg("archive write failed, retrying once")
		time.Sleep(500 * time.Millisecond)
		if err = a.positions.BatchInsert(ctx, batch); err != nil {
			a.log.Error().Err(err).Int("batch", len(batch)).Msg("archive write permanently failed")
			metrics.ArchiveFailures.Add(int64(len(batch)))
			return
		}
	}
	metrics.ArchiveWrites.Add(int64(len(batch)))
}
