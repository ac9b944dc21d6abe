package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ReconcileTicksTotal counts reconciliation ticks by outcome
	ReconcileTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgraph_reconcile_ticks_total",
			Help: "Total number of reconciliation ticks",
		},
		[]string{"outcome"},
	)

	// PersistDuration tracks how long snapshot persists take
	PersistDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshgraph_persist_duration_seconds",
			Help:    "Time spent persisting a graph snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SnapshotsPrunedTotal counts snapshots removed by retention
	SnapshotsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshgraph_snapshots_pruned_total",
			Help: "Total number of snapshots deleted by retention",
		},
	)

	// SnapshotsArchivedTotal counts snapshots copied to the blob archive
	SnapshotsArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshgraph_snapshots_archived_total",
			Help: "Total number of snapshots written to the archive",
		},
	)

	// Leader is 1 while this replica holds the reconciler lease
	Leader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshgraph_leader",
			Help: "Whether this replica is the reconciliation leader",
		},
	)
)

func init() {
	prometheus.MustRegister(ReconcileTicksTotal)
	prometheus.MustRegister(PersistDuration)
	prometheus.MustRegister(SnapshotsPrunedTotal)
	prometheus.MustRegister(SnapshotsArchivedTotal)
	prometheus.MustRegister(Leader)
}
