// Package query answers graph and dependency queries over the live topology
// or over the snapshots stored for a time range.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
	"github.com/rmax-ai/meshgraph/pkg/resolver"
	"github.com/rmax-ai/meshgraph/pkg/store"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidRange is returned when to precedes from.
var ErrInvalidRange = errors.New("invalid time range")

// LiveGraph provides copies of the live topology.
type LiveGraph interface {
	Snapshot() *model.Model
}

// Service answers queries. A zero from and to selects the live graph; a zero
// to alone means now.
type Service struct {
	live  LiveGraph
	store store.ModelStore
	now   func() time.Time

	rangeGroup singleflight.Group
}

// NewService creates a query service.
func NewService(live LiveGraph, st store.ModelStore) *Service {
	return &Service{
		live:  live,
		store: st,
		now:   time.Now,
	}
}

// GetGraph returns the whole topology for the window.
func (s *Service) GetGraph(ctx context.Context, from, to time.Time) (*model.Model, error) {
	if from.IsZero() && to.IsZero() {
		return s.live.Snapshot(), nil
	}
	if to.IsZero() {
		to = s.now()
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to %s is before from %s", ErrInvalidRange, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	key := fmt.Sprintf("%d:%d", from.UnixMilli(), to.UnixMilli())
	// The shared load ignores the first caller's cancellation; each caller
	// stops waiting on its own context.
	flight := context.WithoutCancel(ctx)
	ch := s.rangeGroup.DoChan(key, func() (any, error) {
		return s.loadRange(flight, from, to)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	merged, ok := res.Val.(*model.Model)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight group: got %T", res.Val)
	}
	// Callers sharing one flight must not share one model.
	return merged.Clone(), nil
}

// GetDependencyModel returns the transitive dependencies of a node. An
// unknown node yields an empty model.
func (s *Service) GetDependencyModel(ctx context.Context, from, to time.Time, nodeID string) (*model.Model, error) {
	g, err := s.GetGraph(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return resolver.TransitiveModel(g, nodeID)
}

// GetServiceDependencyModel returns the services reachable from one service
// of a node. An unknown node yields an empty model.
func (s *Service) GetServiceDependencyModel(ctx context.Context, from, to time.Time, nodeID, service string) (*model.Model, error) {
	g, err := s.GetGraph(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return resolver.ServiceModel(g, nodeID, service)
}

// loadRange merges the stored snapshots of the window. Snapshots that fail
// validation are excluded; storage errors are returned.
func (s *Service) loadRange(ctx context.Context, from, to time.Time) (*model.Model, error) {
	models, err := s.store.LoadModels(ctx, from, to)
	if err != nil {
		return nil, err
	}

	valid := make([]*model.Model, 0, len(models))
	for _, m := range models {
		if err := m.Validate(); err != nil {
			ExcludedSnapshotsTotal.Inc()
			slog.Warn("Excluding inconsistent snapshot from range query", "error", err, "nodes", m.NodeCount(), "edges", m.EdgeCount())
			continue
		}
		valid = append(valid, m)
	}
	return resolver.MergeModels(valid), nil
}
