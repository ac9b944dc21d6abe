package graph

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// Store maintains the live dependency network and its node cache.
//
// The network is authoritative. The cache maps node ids to the node instances
// held by the network and is filled on lookup and on insertion. Both are
// guarded by one lock; neither is exposed.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*model.Node
	edges map[string]model.Edge
	cache map[string]*model.Node
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nodes: make(map[string]*model.Node),
		edges: make(map[string]model.Edge),
		cache: make(map[string]*model.Node),
	}
}

// NewFromModel bulk loads a persisted model. A nil model is a cold start.
// Nodes go in first, duplicates ignored; every edge must then resolve both
// endpoints through the cache or the load fails with a *model.ConstructionError.
func NewFromModel(m *model.Model) (*Store, error) {
	s := New()
	if m == nil {
		return s, nil
	}

	for _, n := range m.SortedNodes() {
		if _, exists := s.cache[n.ID]; exists {
			continue
		}
		owned := n.Clone()
		s.nodes[owned.ID] = owned
		s.cache[owned.ID] = owned
	}

	ce := &model.ConstructionError{}
	for _, e := range m.SortedEdges() {
		src := s.lookupLocked(e.Source)
		dst := s.lookupLocked(e.Target)
		if src == nil {
			ce.Add(e.Label(), e.Source)
		}
		if dst == nil {
			ce.Add(e.Label(), e.Target)
		}
		if src == nil || dst == nil {
			continue
		}
		edge := model.Edge{Source: src.ID, Target: dst.ID, Service: e.Service}
		s.edges[edge.Label()] = edge
	}
	if len(ce.Missing) > 0 {
		return nil, ce
	}

	s.updateGauges()
	return s, nil
}

// GetNode returns the node with the given id, matching case-insensitively on
// a cache miss. A match found by scanning is cached under the node's own id.
// A case variant of a known id therefore misses the cache on every call and
// pays a write lock plus a scan of all nodes.
//
// The node is owned by the store; read it through Snapshot when a consistent
// view is needed.
func (s *Store) GetNode(id string) (*model.Node, bool) {
	s.mu.RLock()
	if n, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return n, true
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookupLocked(id)
	return n, n != nil
}

// GetOrCreateTransient resolves id like GetNode. On a miss it returns a new
// node that is neither cached nor part of the network.
func (s *Store) GetOrCreateTransient(id string) *model.Node {
	if n, ok := s.GetNode(id); ok {
		return n
	}
	return model.NewNode(id)
}

// AddNode inserts n into the network and points the cache slot for its id at
// the network's instance, which is returned. When the network already holds a
// node with the same id, that node absorbs n's components and self-edges.
func (s *Store) AddNode(n *model.Node) *model.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := s.attachLocked(n.ID)
	if canonical != n {
		canonical.Absorb(n)
	}
	s.cache[n.ID] = canonical
	s.updateGauges()
	return canonical
}

// AddComponent records a service hosted by the node with the given id,
// attaching the node when it is not in the network yet.
func (s *Store) AddComponent(nodeID, service string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.attachLocked(nodeID)
	n.AddComponent(service)
	s.cache[nodeID] = n
	s.updateGauges()
}

// AddLink records that the service link runs from parent to child. Distinct
// nodes get a labelled edge; a link within one node becomes a self-edge.
//
// AddLink never stops ingestion: a link that cannot be encoded is logged and
// counted, and the returned error is informational.
func (s *Store) AddLink(parentID, childID, link string) error {
	if parentID == childID {
		if parentID == "" {
			return s.reject("empty_node", fmt.Errorf("%w: empty node id", model.ErrMalformedEdge), parentID, childID, link)
		}
		s.mu.Lock()
		n := s.attachLocked(parentID)
		n.AddSelfEdge(link)
		s.cache[parentID] = n
		s.updateGauges()
		s.mu.Unlock()
		return nil
	}

	label, err := model.EncodeEdge(parentID, childID, link)
	if err != nil {
		reason := "malformed_label"
		if parentID == "" || childID == "" {
			reason = "empty_node"
		}
		return s.reject(reason, err, parentID, childID, link)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachLocked(parentID)
	s.attachLocked(childID)
	s.edges[label] = model.Edge{Source: parentID, Target: childID, Service: link}
	s.updateGauges()
	return nil
}

// Snapshot returns a deep copy of the network.
func (s *Store) Snapshot() *model.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := model.NewModel()
	for id, n := range s.nodes {
		m.Nodes[id] = n.Clone()
	}
	for label, e := range s.edges {
		m.Edges[label] = e
	}
	return m
}

// NodeCount returns the number of nodes in the network.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges in the network.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// lookupLocked resolves id through the cache, then by a case-insensitive
// scan of the network. Must be called with s.mu held for writing.
func (s *Store) lookupLocked(id string) *model.Node {
	if n, ok := s.cache[id]; ok {
		return n
	}
	if n, ok := s.nodes[id]; ok {
		s.cache[n.ID] = n
		return n
	}
	for _, n := range s.nodes {
		if strings.EqualFold(n.ID, id) {
			s.cache[n.ID] = n
			return n
		}
	}
	return nil
}

// attachLocked returns the network's node with exactly this id, creating it
// when absent.
func (s *Store) attachLocked(id string) *model.Node {
	if n, ok := s.nodes[id]; ok {
		return n
	}
	n := model.NewNode(id)
	s.nodes[id] = n
	return n
}

func (s *Store) updateGauges() {
	GraphNodes.Set(float64(len(s.nodes)))
	GraphEdges.Set(float64(len(s.edges)))
}

func (s *Store) reject(reason string, err error, parentID, childID, link string) error {
	LinkRejectedTotal.WithLabelValues(reason).Inc()
	slog.Warn("Link rejected", "reason", reason, "parent", parentID, "child", childID, "link", link, "error", err)
	return err
}
