package client

import (
	"fmt"
	"time"
)

// Status is the daemon health report.
type Status struct {
	Status string `json:"status"`
}

// Observation is one resolved call between services, as sent to
// POST /v1/observations.
type Observation struct {
	SourceNode    string `json:"source_node"`
	SourceService string `json:"source_service"`
	TargetNode    string `json:"target_node"`
	TargetService string `json:"target_service"`
}

// ObservationResult reports what the daemon queued.
type ObservationResult struct {
	Accepted int `json:"accepted"`
	Rejected []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	} `json:"rejected,omitempty"`
}

// ReconcileResult is the outcome of an on-demand reconciliation tick,
// e.g. "persisted", "unchanged", "empty" or "standby".
type ReconcileResult struct {
	Outcome string `json:"outcome"`
}

// Window selects the snapshots a query reads. The zero Window reads the live
// graph; a zero To means now.
type Window struct {
	From time.Time
	To   time.Time
}

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("meshgraph: %s (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("meshgraph: unexpected status %d", e.StatusCode)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

type transportError struct {
	err error
}

func (e *transportError) Error() string   { return "meshgraph: daemon unreachable: " + e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Temporary() bool { return true }
