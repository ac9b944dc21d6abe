package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/store"
)

const archiveSlack = time.Minute

// PruneWorker applies snapshot retention. It never touches the live graph.
type PruneWorker struct {
	store    store.SnapshotPruner
	config   *RetentionConfig
	archiver *Archiver
	mu       sync.RWMutex
}

func NewPruneWorker(st store.SnapshotPruner, cfg *RetentionConfig) *PruneWorker {
	return &PruneWorker{
		store:  st,
		config: cfg,
	}
}

func (w *PruneWorker) UpdateConfig(cfg *RetentionConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

// SetArchiver makes every prune archive the snapshots it may delete first.
func (w *PruneWorker) SetArchiver(a *Archiver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.archiver = a
}

func (w *PruneWorker) Run(ctx context.Context) {
	w.mu.RLock()
	disabled := w.config == nil || !w.config.Enabled
	interval := 1 * time.Hour
	if !disabled && w.config.CheckInterval != "" {
		if d, err := time.ParseDuration(w.config.CheckInterval); err == nil && d > 0 {
			interval = d
		}
	}
	w.mu.RUnlock()

	if disabled {
		slog.Info("Snapshot pruning disabled")
		return
	}

	slog.Info("Prune worker started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial run
	if _, err := w.Prune(ctx); err != nil {
		slog.Error("Prune failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Prune worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Prune(ctx); err != nil {
				slog.Error("Prune failed", "error", err)
			}
		}
	}
}

// Prune runs retention once and returns the number of snapshots deleted.
// A disabled or invalid policy deletes nothing.
func (w *PruneWorker) Prune(ctx context.Context) (int64, error) {
	w.mu.RLock()
	cfg := w.config
	archiver := w.archiver
	w.mu.RUnlock()

	if cfg == nil || !cfg.Enabled {
		return 0, nil
	}

	maxAge, err := time.ParseDuration(cfg.MaxAge)
	if err != nil {
		slog.Warn("Invalid retention max_age", "max_age", cfg.MaxAge, "error", err)
		return 0, nil
	}

	if archiver != nil {
		// The store computes its own cutoff a moment later; archive a little
		// past ours so nothing slips through unarchived.
		cutoff := time.Now().Add(-maxAge).Add(archiveSlack)
		if _, err := archiver.ArchiveBefore(ctx, cutoff); err != nil {
			return 0, fmt.Errorf("archive before prune: %w", err)
		}
	}

	deleted, err := w.store.PruneSnapshots(ctx, maxAge, cfg.KeepLatest)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		SnapshotsPrunedTotal.Add(float64(deleted))
		slog.Info("Pruned snapshots", "deleted", deleted, "max_age", maxAge, "keep_latest", cfg.KeepLatest)
	}
	return deleted, nil
}
