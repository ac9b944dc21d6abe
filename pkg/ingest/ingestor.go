package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("ingest queue closed")

var observationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "meshgraph_observations_total",
	Help: "Total number of observations by result",
}, []string{"result"})

// Ingestor applies observations to the graph from a bounded queue using a
// fixed number of workers.
type Ingestor struct {
	graph   Graph
	workers int
	queue   chan Observation

	mu      sync.RWMutex
	closed  bool
	started bool
	group   errgroup.Group
}

// NewIngestor creates an ingestor; call Start before Submit.
func NewIngestor(g Graph, workers, queueSize int) *Ingestor {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Ingestor{
		graph:   g,
		workers: workers,
		queue:   make(chan Observation, queueSize),
	}
}

// Start launches the workers. They run until Close drains the queue.
func (i *Ingestor) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return
	}
	i.started = true

	for w := 0; w < i.workers; w++ {
		i.group.Go(func() error {
			for obs := range i.queue {
				i.apply(obs)
			}
			return nil
		})
	}
	slog.Info("Ingestor started", "workers", i.workers, "queue", cap(i.queue))
}

// Submit validates obs and enqueues it, blocking while the queue is full.
func (i *Ingestor) Submit(ctx context.Context, obs Observation) error {
	if err := obs.Validate(); err != nil {
		observationsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		observationsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueClosed
	}

	select {
	case i.queue <- obs:
		return nil
	case <-ctx.Done():
		observationsTotal.WithLabelValues("dropped").Inc()
		return ctx.Err()
	}
}

// Close stops accepting observations and waits for queued ones to be applied.
func (i *Ingestor) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	close(i.queue)
	started := i.started
	i.mu.Unlock()

	if !started {
		return nil
	}
	err := i.group.Wait()
	slog.Info("Ingestor stopped")
	return err
}

func (i *Ingestor) apply(obs Observation) {
	if err := Apply(i.graph, obs); err != nil {
		observationsTotal.WithLabelValues("rejected").Inc()
		slog.Debug("Observation rejected", "error", err, "source_node", obs.SourceNode, "target_node", obs.TargetNode)
		return
	}
	observationsTotal.WithLabelValues("applied").Inc()
}
