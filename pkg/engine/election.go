package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/store"
)

// ElectionManager decides which replica reconciles when several replicas
// share one snapshot store. It holds a lease and renews it every ttl/2.
type ElectionManager struct {
	store     store.LeaseStore
	holderID  string
	leaseName string
	ttl       time.Duration

	onPromote func()
	onDemote  func()

	isLeader bool
	started  bool
	mu       sync.RWMutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewElectionManager creates a new ElectionManager instance.
func NewElectionManager(
	store store.LeaseStore,
	holderID string,
	leaseName string,
	ttl time.Duration,
	onPromote func(),
	onDemote func(),
) *ElectionManager {
	return &ElectionManager{
		store:     store,
		holderID:  holderID,
		leaseName: leaseName,
		ttl:       ttl,
		onPromote: onPromote,
		onDemote:  onDemote,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs one election round immediately, then keeps campaigning in the
// background until Stop or ctx cancellation.
func (em *ElectionManager) Start(ctx context.Context) {
	em.mu.Lock()
	em.started = true
	em.mu.Unlock()

	slog.Info("ElectionManager started", "holderID", em.holderID, "leaseName", em.leaseName)
	em.attemptElection(ctx)

	go func() {
		defer close(em.doneCh)
		ticker := time.NewTicker(em.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				em.attemptElection(ctx)
			case <-em.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the election loop and releases the lease if currently leader.
// Stopping does not fire onDemote.
func (em *ElectionManager) Stop(ctx context.Context) {
	em.stopOnce.Do(func() { close(em.stopCh) })

	em.mu.RLock()
	started := em.started
	em.mu.RUnlock()
	if started {
		<-em.doneCh
	}

	em.mu.Lock()
	wasLeader := em.isLeader
	em.isLeader = false
	em.mu.Unlock()
	Leader.Set(0)

	if wasLeader {
		if err := em.store.Release(ctx, em.leaseName, em.holderID); err != nil {
			slog.Error("Failed to release lease on stop", "error", err, "holderID", em.holderID, "leaseName", em.leaseName)
		} else {
			slog.Info("Lease released on stop", "holderID", em.holderID, "leaseName", em.leaseName)
		}
	}
	slog.Info("ElectionManager stopped", "holderID", em.holderID, "leaseName", em.leaseName)
}

// IsLeader returns true if this instance is currently the leader.
func (em *ElectionManager) IsLeader() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.isLeader
}

func (em *ElectionManager) attemptElection(ctx context.Context) {
	wasLeader := em.IsLeader()

	var leader bool
	if wasLeader {
		if err := em.store.Renew(ctx, em.leaseName, em.holderID, em.ttl); err != nil {
			slog.Warn("Failed to renew lease", "error", err, "holderID", em.holderID, "leaseName", em.leaseName)
		} else {
			leader = true
			slog.Debug("Lease renewed", "holderID", em.holderID, "leaseName", em.leaseName)
		}
	} else {
		acquired, err := em.store.Acquire(ctx, em.leaseName, em.holderID, em.ttl)
		switch {
		case err != nil:
			slog.Warn("Failed to acquire lease", "error", err, "holderID", em.holderID, "leaseName", em.leaseName)
		case acquired:
			leader = true
			slog.Info("Lease acquired", "holderID", em.holderID, "leaseName", em.leaseName)
		default:
			slog.Debug("Lease held elsewhere", "holderID", em.holderID, "leaseName", em.leaseName)
		}
	}

	em.mu.Lock()
	em.isLeader = leader
	em.mu.Unlock()

	switch {
	case !wasLeader && leader:
		Leader.Set(1)
		if em.onPromote != nil {
			em.onPromote()
		}
		slog.Info("Promoted to leader", "holderID", em.holderID, "leaseName", em.leaseName)
	case wasLeader && !leader:
		Leader.Set(0)
		if em.onDemote != nil {
			em.onDemote()
		}
		slog.Info("Demoted from leader", "holderID", em.holderID, "leaseName", em.leaseName)
	}
}
