package api

import (
	"github.com/rmax-ai/meshgraph/pkg/ingest"
	"github.com/rmax-ai/meshgraph/pkg/store"
)

// ObservationsRequest matches the POST /v1/observations body schema
type ObservationsRequest struct {
	Observations []ingest.Observation `json:"observations"`
}

// ObservationsResponse reports how many observations were queued.
type ObservationsResponse struct {
	Accepted int                   `json:"accepted"`
	Rejected []RejectedObservation `json:"rejected,omitempty"`
}

// RejectedObservation identifies an observation that failed validation.
type RejectedObservation struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ReconcileResponse matches the response for POST /v1/admin/reconcile
type ReconcileResponse struct {
	Outcome string `json:"outcome"`
}

// PruneResponse matches the response for POST /v1/admin/prune
type PruneResponse struct {
	Status      string `json:"status"`
	PrunedCount int64  `json:"pruned_count"`
}

type SnapshotListResponse struct {
	Snapshots []store.SnapshotInfo `json:"snapshots"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
