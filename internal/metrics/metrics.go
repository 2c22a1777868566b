package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync pass counters, recorded by the worker.
var (
	SyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacontrack_syncs_total",
		Help: "Timetable sync passes completed.",
	})
	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacontrack_sync_failures_total",
		Help: "Timetable sync passes that failed.",
	})
	MeetingsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacontrack_meetings_activated_total",
		Help: "Meetings newly activated by reconciliation.",
	})
	MeetingsDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacontrack_meetings_deactivated_total",
		Help: "Meetings deactivated by reconciliation.",
	})
)
