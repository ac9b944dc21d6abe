package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/meshgraph/pkg/api"
	"github.com/rmax-ai/meshgraph/pkg/blob"
	"github.com/rmax-ai/meshgraph/pkg/engine"
	"github.com/rmax-ai/meshgraph/pkg/graph"
	"github.com/rmax-ai/meshgraph/pkg/ingest"
	"github.com/rmax-ai/meshgraph/pkg/query"
	"github.com/rmax-ai/meshgraph/pkg/store"
	redisstore "github.com/rmax-ai/meshgraph/pkg/store/redis"
)

// snapshotBackend is everything the daemon needs from a storage backend.
type snapshotBackend interface {
	store.ModelStore
	store.SnapshotCatalog
	store.SnapshotPruner
}

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "meshgraph-d: %v\n", err)
		os.Exit(2)
	}

	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("System started", "component", "meshgraph-d", "store", cfg.Store, "addr", cfg.Addr)

	if err := run(cfg); err != nil {
		slog.Error("Daemon failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

func run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, leases, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Error("Failed to close store", "error", err)
		} else {
			slog.Info("Store closed")
		}
	}()

	g, err := bootstrapGraph(ctx, snapshots)
	if err != nil {
		return err
	}

	reconciler := engine.NewReconciler(g, snapshots, cfg.ReconcileInterval)

	ingestor := ingest.NewIngestor(g, cfg.Workers, cfg.QueueSize)
	ingestor.Start()

	server := api.NewServer(query.NewService(g, snapshots), ingestor, cfg.Addr)
	server.SetSnapshotCatalog(snapshots)
	server.SetReconciler(reconciler)

	retention := cfg.File.Retention
	pruner := engine.NewPruneWorker(snapshots, &retention)
	pruner.SetArchiver(archiverFor(snapshots, retention))
	server.SetPruner(pruner)

	var election *engine.ElectionManager
	if cfg.File.Election.Enabled {
		ttl, err := cfg.File.Election.LeaseTTL()
		if err != nil {
			return err
		}
		election = engine.NewElectionManager(
			leases,
			cfg.HolderID,
			cfg.File.Election.Lease(),
			ttl,
			reconciler.Invalidate,
			nil,
		)
		reconciler.SetLeaderGate(election)
		server.SetElectionManager(election)
		election.Start(ctx)
	}

	go reconciler.Run(ctx)
	go pruner.Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

wait:
	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				reloadConfig(cfg, pruner, snapshots)
				continue
			}
			slog.Info("Shutdown initiated", "signal", sig.String())
			break wait
		case err := <-serverErr:
			if err != nil {
				slog.Error("Server stopped unexpectedly", "error", err)
			}
			break wait
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("Failed to stop server", "error", err)
	}
	if err := ingestor.Close(); err != nil {
		slog.Error("Failed to drain ingestor", "error", err)
	}
	cancel()

	// Persist whatever arrived since the last tick.
	if outcome, err := reconciler.Tick(shutdownCtx); err != nil {
		slog.Error("Final reconcile failed", "error", err)
	} else {
		slog.Info("Final reconcile", "outcome", string(outcome))
	}

	if election != nil {
		election.Stop(shutdownCtx)
	}
	return nil
}

// openStore opens the configured backend. Both backends also provide leases
// for leader election.
func openStore(cfg Config) (snapshotBackend, store.LeaseStore, func() error, error) {
	switch cfg.Store {
	case "redis":
		client := backend.NewClient(&backend.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("Store initialized", "backend", "redis", "addr", cfg.RedisAddr)
		return redisstore.NewSnapshotStore(client), redisstore.NewLeaseStore(client, ""), client.Close, nil
	default:
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to init store: %w", err)
		}
		slog.Info("Store initialized", "backend", "sqlite", "path", cfg.DBPath)
		return st, st, st.Close, nil
	}
}

// bootstrapGraph rebuilds the live graph from the last snapshot. A snapshot
// that cannot be loaded consistently is skipped and the daemon starts cold.
func bootstrapGraph(ctx context.Context, st store.ModelStore) (*graph.Store, error) {
	last, err := st.LoadLastModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load last snapshot: %w", err)
	}
	if last == nil {
		slog.Info("No snapshot found, starting with an empty graph")
		return graph.New(), nil
	}

	g, err := graph.NewFromModel(last)
	if err != nil {
		slog.Warn("Last snapshot is inconsistent, starting with an empty graph", "error", err)
		return graph.New(), nil
	}
	slog.Info("Graph restored from snapshot", "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}

// archiverFor returns nil when no archive directory is configured.
func archiverFor(catalog store.SnapshotCatalog, retention engine.RetentionConfig) *engine.Archiver {
	if retention.ArchiveDir == "" {
		return nil
	}
	slog.Info("Snapshot archive enabled", "dir", retention.ArchiveDir)
	return engine.NewArchiver(catalog, blob.NewLocalBlobStore(retention.ArchiveDir))
}

func reloadConfig(cfg Config, pruner *engine.PruneWorker, catalog store.SnapshotCatalog) {
	if cfg.ConfigPath == "" {
		slog.Info("Reload requested without a config file, ignoring")
		return
	}
	file, err := LoadFileConfig(cfg.ConfigPath)
	if err != nil {
		slog.Error("Config reload failed", "path", cfg.ConfigPath, "error", err)
		return
	}
	retention := file.Retention
	pruner.UpdateConfig(&retention)
	pruner.SetArchiver(archiverFor(catalog, retention))
	slog.Info("Config reloaded", "path", cfg.ConfigPath, "retention_enabled", retention.Enabled)
}
