package graph

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// GraphNodes tracks the number of nodes in the live network
	GraphNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshgraph_graph_nodes",
			Help: "Number of nodes in the live dependency graph",
		},
	)

	// GraphEdges tracks the number of edges in the live network
	GraphEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshgraph_graph_edges",
			Help: "Number of edges in the live dependency graph",
		},
	)

	// LinkRejectedTotal counts links dropped by AddLink
	LinkRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgraph_link_rejected_total",
			Help: "Total number of links that could not be added to the graph",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(GraphNodes)
	prometheus.MustRegister(GraphEdges)
	prometheus.MustRegister(LinkRejectedTotal)
}
