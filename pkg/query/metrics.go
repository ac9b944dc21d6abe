package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExcludedSnapshotsTotal counts stored snapshots left out of a range query
// because an edge referenced a missing node.
var ExcludedSnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "meshgraph_query_excluded_snapshots_total",
	Help: "Total number of inconsistent snapshots excluded from range queries",
})
