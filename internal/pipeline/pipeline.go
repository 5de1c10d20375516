// Package pipeline is the single ingestion entry point. Every sample runs,
// on its tracker's shard, the fixed sequence: state update, geofence
// evaluation, alert rules, history append, broadcast. One goroutine owns
// each shard, so per-tracker state never sees concurrent writers, and the
// offline sweep is routed through the same shards as ingestion.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fleettrack/internal/alert"
	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
	"fleettrack/internal/geofence"
	"fleettrack/internal/history"
	"fleettrack/internal/metrics"
	"fleettrack/internal/state"
)

// Broadcaster receives the ordered event stream for fan-out. Publish must
// not block on client I/O.
type Broadcaster interface {
	Publish(ev domain.Event)
}

// LabelResolver maps a tracker to a human-readable vehicle label. Lookup
// failure falls back to the raw tracker id and never blocks delivery.
type LabelResolver interface {
	Resolve(trackerID string) (string, error)
}

type Options struct {
	ShardCount     int
	ShardQueueSize int
	OfflineTimeout time.Duration
	SweepInterval  time.Duration
}

type task struct {
	sample    *domain.PositionSample
	sweepID   string // non-empty for an offline sweep check
	sweepTime time.Time
}

type Pipeline struct {
	opts     Options
	registry *state.Registry
	fences   *geofence.Index
	alerts   *alert.Engine
	log      *history.Log

	hub      Broadcaster
	labels   LabelResolver
	archiver *Archiver // optional
	mirror   *Mirror   // optional

	shards []chan task
	wg     sync.WaitGroup
	ctx    context.Context
	logger zerolog.Logger
}

func New(
	opts Options,
	registry *state.Registry,
	fences *geofence.Index,
	alerts *alert.Engine,
	log *history.Log,
	hub Broadcaster,
	logger zerolog.Logger,
) *Pipeline {
	if opts.ShardCount <= 0 {
		opts.ShardCount = 16
	}
	if opts.ShardQueueSize <= 0 {
		opts.ShardQueueSize = 1024
	}

	shards := make([]chan task, opts.ShardCount)
	for i := range shards {
		shards[i] = make(chan task, opts.ShardQueueSize)
	}

	return &Pipeline{
		opts:     opts,
		registry: registry,
		fences:   fences,
		alerts:   alerts,
		log:      log,
		hub:      hub,
		shards:   shards,
		logger:   logger,
	}
}

// SetLabelResolver wires the optional vehicle-label lookup.
func (p *Pipeline) SetLabelResolver(r LabelResolver) { p.labels = r }

// SetArchiver wires the optional durable archive.
func (p *Pipeline) SetArchiver(a *Archiver) { p.archiver = a }

// SetMirror wires the optional live-state mirror.
func (p *Pipeline) SetMirror(m *Mirror) { p.mirror = m }

// Run starts the shard workers and the offline sweep. It returns when all
// shards have drained after ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.ctx = ctx

	for i := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, p.shards[i])
	}

	p.wg.Add(1)
	go p.sweepLoop(ctx)

	p.wg.Wait()
}

// ReportPosition validates and enqueues one sample. It may block briefly
// if the tracker's shard is mid-update, but never on client I/O.
// Validation failures and unknown trackers are rejected synchronously and
// leave no partial state.
func (p *Pipeline) ReportPosition(ctx context.Context, sample *domain.PositionSample) error {
	metrics.SamplesReceived.Add(1)

	if err := sample.Validate(); err != nil {
		metrics.SamplesRejected.Add(1)
		return err
	}
	if _, err := p.registry.Config(sample.TrackerID); err != nil {
		metrics.SamplesRejected.Add(1)
		return err
	}
	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = time.Now()
	}

	shard := p.shards[shardFor(sample.TrackerID, len(p.shards))]
	select {
	case shard <- task{sample: sample}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: ingestion queue", domain.ErrCapacityExceeded)
	}
}

func (p *Pipeline) worker(ctx context.Context, ch chan task) {
	defer p.wg.Done()

	for {
		select {
		case t := <-ch:
			if t.sample != nil {
				p.processSample(t.sample)
			} else {
				p.processSweep(t.sweepID, t.sweepTime)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) processSample(sample *domain.PositionSample) {
	res, err := p.registry.Update(sample)
	if err != nil {
		p.logger.Warn().Err(err).Str("tracker_id", sample.TrackerID).Msg("state update failed")
		return
	}
	if !res.Accepted {
		// Older than stored state: last-write-wins by timestamp.
		metrics.SamplesStale.Add(1)
		return
	}

	if res.CameOnline {
		p.alerts.ClearOffline(sample.TrackerID)
		p.hub.Publish(domain.Event{
			Type:   domain.EventTrackerStatus,
			Topics: []string{domain.TopicTracker(sample.TrackerID)},
			Payload: domain.StatusChange{
				TrackerID: sample.TrackerID,
				Online:    true,
				LastSeen:  sample.ReceivedAt,
			},
		})
	}

	transitions := p.fences.Evaluate(
		sample.TrackerID,
		geo.Point{Lat: sample.Lat, Lng: sample.Lng},
		sample.Timestamp,
	)
	metrics.GeofenceEvents.Add(int64(len(transitions)))

	cfg, err := p.registry.Config(sample.TrackerID)
	if err != nil {
		p.logger.Warn().Err(err).Str("tracker_id", sample.TrackerID).Msg("tracker vanished mid-update")
		return
	}
	created := p.alerts.EvaluateSample(cfg, sample, transitions, p.fences)
	metrics.AlertsCreated.Add(int64(len(created)))

	p.log.Append(sample)
	if p.archiver != nil {
		p.archiver.EnqueueSample(sample)
	}

	snap, _ := p.registry.Snapshot(sample.TrackerID)
	snap.Label = p.labelFor(sample.TrackerID)
	if p.mirror != nil {
		p.mirror.EnqueueSnapshot(snap)
	}

	// The position update goes out before anything derived from it, so a
	// subscriber never sees an alert referencing a position it lacks.
	p.hub.Publish(domain.Event{
		Type:    domain.EventPositionUpdate,
		Topics:  []string{domain.TopicTracker(sample.TrackerID)},
		Payload: snap,
	})
	for _, tr := range transitions {
		p.hub.Publish(domain.Event{
			Type: domain.EventGeofenceEvent,
			Topics: []string{
				domain.TopicGeofence(tr.GeofenceID),
				domain.TopicTracker(tr.TrackerID),
			},
			Payload: tr,
		})
	}
	for _, a := range created {
		p.publishAlert(a)
	}
}

func (p *Pipeline) processSweep(trackerID string, now time.Time) {
	snap, ok := p.registry.Snapshot(trackerID)
	if !ok || !snap.Online {
		return
	}
	if !state.IsOffline(snap.LastSeen, now, p.opts.OfflineTimeout) {
		return
	}
	if !p.registry.MarkOffline(trackerID) {
		return
	}

	p.hub.Publish(domain.Event{
		Type:   domain.EventTrackerStatus,
		Topics: []string{domain.TopicTracker(trackerID)},
		Payload: domain.StatusChange{
			TrackerID: trackerID,
			Online:    false,
			LastSeen:  snap.LastSeen,
		},
	})

	if a := p.alerts.EvaluateOffline(trackerID, snap.LastSeen); a != nil {
		metrics.AlertsCreated.Add(1)
		p.publishAlert(*a)
	}
}

// PublishAlert pushes an alert created outside the sample path (external
// integrations, manual raises) through the same archive, mirror, and
// fan-out route as pipeline-generated alerts.
func (p *Pipeline) PublishAlert(a domain.Alert) {
	metrics.AlertsCreated.Add(1)
	p.publishAlert(a)
}

func (p *Pipeline) publishAlert(a domain.Alert) {
	if p.archiver != nil {
		p.archiver.EnqueueAlert(a)
	}
	if p.mirror != nil {
		p.mirror.EnqueueAlert(a)
	}
	p.hub.Publish(domain.Event{
		Type: domain.EventAlertNew,
		Topics: []string{
			domain.TopicAlerts,
			domain.TopicTracker(a.TrackerID),
		},
		Payload: a,
	})
}

// sweepLoop routes an offline check for every tracker through its own
// shard, so the sweep never races ingestion for the same tracker.
func (p *Pipeline) sweepLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.opts.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			p.SweepOnce(now)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce enqueues one offline check per tracker. Exposed for tests and
// for a manual sweep trigger.
func (p *Pipeline) SweepOnce(now time.Time) {
	for _, id := range p.registry.IDs() {
		shard := p.shards[shardFor(id, len(p.shards))]
		select {
		case shard <- task{sweepID: id, sweepTime: now}:
		default:
			// Shard saturated with ingestion; the next tick retries.
		}
	}
}

func (p *Pipeline) labelFor(trackerID string) string {
	if p.labels == nil {
		return ""
	}
	label, err := p.labels.Resolve(trackerID)
	if err != nil || label == "" {
		return trackerID
	}
	return label
}

func shardFor(trackerID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(trackerID))
	return int(h.Sum32() % uint32(n))
}
