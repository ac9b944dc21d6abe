package model

import (
	"encoding/json"
	"sort"
)

// Model is a set of nodes and edges: the live topology, a persisted snapshot,
// or a merged view. A Model owns its nodes; nodes taken from elsewhere are
// cloned on the way in so that no two models share a *Node.
type Model struct {
	Nodes map[string]*Node
	Edges map[string]Edge
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		Nodes: make(map[string]*Node),
		Edges: make(map[string]Edge),
	}
}

// Build creates a model from the given nodes and edges and validates it.
func Build(nodes []*Node, edges []Edge) (*Model, error) {
	m := NewModel()
	for _, n := range nodes {
		m.AddNode(n)
	}
	for _, e := range edges {
		m.AddEdge(e)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// AddNode inserts a copy of n. When a node with the same id is present, it
// absorbs n's components and self-edges instead.
func (m *Model) AddNode(n *Node) {
	if existing, ok := m.Nodes[n.ID]; ok {
		existing.Absorb(n)
		return
	}
	m.Nodes[n.ID] = n.Clone()
}

// AddEdge inserts e; adding an equal edge twice is a no-op.
func (m *Model) AddEdge(e Edge) {
	m.Edges[e.Label()] = e
}

// Node returns the node with exactly the given id.
func (m *Model) Node(id string) (*Node, bool) {
	n, ok := m.Nodes[id]
	return n, ok
}

// NodeCount returns the number of nodes.
func (m *Model) NodeCount() int {
	return len(m.Nodes)
}

// EdgeCount returns the number of edges.
func (m *Model) EdgeCount() int {
	return len(m.Edges)
}

// IsEmpty reports whether the model has no nodes.
func (m *Model) IsEmpty() bool {
	return len(m.Nodes) == 0
}

// Merge unions other into m. Nodes present in both keep m's instance, which
// absorbs the other node's data; nodes only in other are cloned. connecting,
// when non-nil, is added to the edge set.
func (m *Model) Merge(other *Model, connecting *Edge) {
	if other != nil {
		for _, n := range other.Nodes {
			m.AddNode(n)
		}
		for label, e := range other.Edges {
			m.Edges[label] = e
		}
	}
	if connecting != nil {
		m.AddEdge(*connecting)
	}
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	c := NewModel()
	c.Merge(m, nil)
	return c
}

// Validate checks that every edge's endpoints are nodes of the model.
func (m *Model) Validate() error {
	ce := &ConstructionError{}
	for label, e := range m.Edges {
		if _, ok := m.Nodes[e.Source]; !ok {
			ce.Add(label, e.Source)
		}
		if _, ok := m.Nodes[e.Target]; !ok {
			ce.Add(label, e.Target)
		}
	}
	if len(ce.Missing) > 0 {
		return ce
	}
	return nil
}

// SortedNodes returns the nodes ordered by id.
func (m *Model) SortedNodes() []*Node {
	out := make([]*Node, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedEdges returns the edges ordered by label.
func (m *Model) SortedEdges() []Edge {
	out := make([]Edge, 0, len(m.Edges))
	for _, e := range m.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out
}

// EdgeLabels returns the set of edge labels.
func (m *Model) EdgeLabels() Set {
	s := make(Set, len(m.Edges))
	for label := range m.Edges {
		s[label] = struct{}{}
	}
	return s
}

// MergeModels folds the models into a new one without connecting edges.
// The result does not depend on the order of the input.
func MergeModels(models ...*Model) *Model {
	merged := NewModel()
	for _, m := range models {
		merged.Merge(m, nil)
	}
	return merged
}

type modelJSON struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{Nodes: m.SortedNodes(), Edges: m.SortedEdges()})
}

// UnmarshalJSON decodes a model. Endpoint consistency is not checked here;
// callers that feed the result to resolution or bulk load validate it there.
func (m *Model) UnmarshalJSON(data []byte) error {
	var raw modelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := NewModel()
	for _, n := range raw.Nodes {
		if n == nil {
			continue
		}
		n.ensureSets()
		decoded.AddNode(n)
	}
	for _, e := range raw.Edges {
		decoded.AddEdge(e)
	}
	*m = *decoded
	return nil
}
