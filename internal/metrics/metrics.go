// Package metrics exposes ingest instrumentation via Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events accepted and folded, by kind.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilytics_events_ingested_total",
		Help: "Events accepted and folded into rollups, by kind.",
	}, []string{"kind"})

	// EventsRejected counts refused payloads by rejection reason.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilytics_events_rejected_total",
		Help: "Payloads rejected before aggregation, by reason.",
	}, []string{"reason"})

	// FoldFailures counts rollup writes that failed against the store.
	FoldFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilytics_fold_failures_total",
		Help: "Rollup folds that failed against the key-value store.",
	})

	// SaltRotations counts lazily created daily salts.
	SaltRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilytics_salt_rotations_total",
		Help: "Daily salts created on first event of a new UTC day.",
	})

	// UnattributedEvents counts events ingested without identity granularity
	// because the salt store was unavailable.
	UnattributedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilytics_unattributed_events_total",
		Help: "Events counted without identity hashes due to salt store outages.",
	})
)
