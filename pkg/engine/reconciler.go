package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
	"github.com/rmax-ai/meshgraph/pkg/store"
)

// Outcome is the result of one reconciliation tick.
type Outcome string

const (
	OutcomePersisted Outcome = "persisted"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
	OutcomeStandby   Outcome = "standby"
)

// GraphSource provides copies of the live topology.
type GraphSource interface {
	Snapshot() *model.Model
}

// LeaderGate reports whether this replica may write snapshots.
type LeaderGate interface {
	IsLeader() bool
}

// Reconciler compares the live graph with the last persisted snapshot and
// persists a new snapshot when they differ. Ticks never overlap.
type Reconciler struct {
	graph    GraphSource
	store    store.ModelStore
	interval time.Duration

	mu     sync.Mutex
	last   *model.Model
	leader LeaderGate
}

// NewReconciler creates a reconciler ticking every interval.
func NewReconciler(graph GraphSource, st store.ModelStore, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		graph:    graph,
		store:    st,
		interval: interval,
	}
}

// SetLeaderGate makes ticks run only while gate reports leadership.
func (r *Reconciler) SetLeaderGate(gate LeaderGate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leader = gate
}

// Invalidate drops the cached last-persisted model so the next tick reloads
// it from storage. Called when another replica may have written meanwhile.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = nil
}

// LastPersisted returns the cached last-persisted model, or nil.
func (r *Reconciler) LastPersisted() *model.Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run starts the reconciliation loop
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Reconciler stopped")
			return
		case <-ticker.C:
			outcome, err := r.Tick(ctx)
			if err != nil {
				slog.Error("Reconciliation failed", "error", err)
				continue
			}
			slog.Debug("Reconciliation tick", "outcome", outcome)
		}
	}
}

// Tick runs one reconciliation. A storage failure leaves the cached
// last-persisted model untouched so the next tick retries.
func (r *Reconciler) Tick(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome, err := r.tickLocked(ctx)
	ReconcileTicksTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (r *Reconciler) tickLocked(ctx context.Context) (Outcome, error) {
	if r.leader != nil && !r.leader.IsLeader() {
		return OutcomeStandby, nil
	}

	current := r.graph.Snapshot()

	if r.last == nil {
		last, err := r.store.LoadLastModel(ctx)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("failed to load last snapshot: %w", err)
		}
		r.last = last
	}

	if r.last == nil {
		if current.IsEmpty() {
			return OutcomeEmpty, nil
		}
	} else if SameModel(current, r.last) {
		return OutcomeUnchanged, nil
	}

	start := time.Now()
	persisted, err := r.store.PersistModel(ctx, current)
	PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	r.last = persisted
	slog.Info("Snapshot persisted", "nodes", persisted.NodeCount(), "edges", persisted.EdgeCount())
	return OutcomePersisted, nil
}

// SameModel reports whether current matches last: equal node and edge counts,
// then IsSameNodes and IsSameEdges.
func SameModel(current, last *model.Model) bool {
	if current.NodeCount() != last.NodeCount() || current.EdgeCount() != last.EdgeCount() {
		return false
	}
	return IsSameNodes(current, last) && IsSameEdges(current, last)
}

// IsSameNodes reports whether every node of current has a counterpart with
// the same id and the same components in last. Self-edges are not compared.
func IsSameNodes(current, last *model.Model) bool {
	for id, n := range current.Nodes {
		other, ok := last.Nodes[id]
		if !ok {
			return false
		}
		if !n.Components.Equal(other.Components) {
			return false
		}
	}
	return true
}

// IsSameEdges reports whether every edge of current is present in last.
func IsSameEdges(current, last *model.Model) bool {
	for label := range current.Edges {
		if _, ok := last.Edges[label]; !ok {
			return false
		}
	}
	return true
}
