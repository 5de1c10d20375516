package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	SamplesReceived    atomic.Int64
	SamplesRejected    atomic.Int64
	SamplesStale       atomic.Int64
	AlertsCreated      atomic.Int64
	GeofenceEvents     atomic.Int64
	ArchiveWrites      atomic.Int64
	ArchiveFailures    atomic.Int64
	ArchiveDrops       atomic.Int64
	MirrorDrops        atomic.Int64
	HubClientsDropped  atomic.Int64
	HubEventsDelivered atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "fleettrack_samples_received_total %d\n", SamplesReceived.Load())
	fmt.Fprintf(w, "fleettrack_samples_rejected_total %d\n", SamplesRejected.Load())
	fmt.Fprintf(w, "fleettrack_samples_stale_total %d\n", SamplesStale.Load())
	fmt.Fprintf(w, "fleettrack_alerts_created_total %d\n", AlertsCreated.Load())
	fmt.Fprintf(w, "fleettrack_geofence_events_total %d\n", GeofenceEvents.Load())
	fmt.Fprintf(w, "fleettrack_archive_writes_total %d\n", ArchiveWrites.Load())
	fmt.Fprintf(w, "fleettrack_archive_failures_total %d\n", ArchiveFailures.Load())
	fmt.Fprintf(w, "fleettrack_archive_drops_total %d\n", ArchiveDrops.Load())
	fmt.Fprintf(w, "fleettrack_mirror_drops_total %d\n", MirrorDrops.Load())
	fmt.Fprintf(w, "fleettrack_hub_clients_dropped_total %d\n", HubClientsDropped.Load())
	fmt.Fprintf(w, "fleettrack_hub_events_delivered_total %d\n", HubEventsDelivered.Load())
}
