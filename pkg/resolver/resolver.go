// Package resolver computes dependency closures over a model.
//
// Every function treats its input as read-only and returns a new model; the
// input may be a live snapshot or a merge of stored snapshots.
package resolver

import (
	"strings"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// FindNode returns the node with the given id, falling back to a
// case-insensitive match.
func FindNode(m *model.Model, id string) *model.Node {
	if n, ok := m.Node(id); ok {
		return n
	}
	for _, n := range m.SortedNodes() {
		if strings.EqualFold(n.ID, id) {
			return n
		}
	}
	return nil
}

// DirectModel returns the one-hop expansion of the node: the node itself,
// every edge leaving it, and the targets of those edges. An unknown node
// yields an empty model.
func DirectModel(m *model.Model, id string) *model.Model {
	return newIndex(m).direct(id)
}

// TransitiveModel returns the closure of direct expansions starting at id.
// Each node is expanded at most once. A node with no outgoing edges only
// contributes when nothing else has been found, so an isolated start node
// yields itself.
func TransitiveModel(m *model.Model, id string) (*model.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	idx := newIndex(m)
	start := FindNode(m, id)
	if start == nil {
		return model.NewModel(), nil
	}

	result := model.NewModel()
	processed := model.NewSet(start.ID)
	queue := []string{start.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		direct := idx.direct(current)
		if direct.NodeCount() <= 1 {
			if result.IsEmpty() {
				result.Merge(direct, nil)
			}
			continue
		}

		result.Merge(direct, nil)
		for _, n := range direct.SortedNodes() {
			if processed.Add(n.ID) {
				queue = append(queue, n.ID)
			}
		}
	}

	return result, nil
}

// MergeModels folds snapshots covering a time range into one model. Nil
// entries are skipped.
func MergeModels(models []*model.Model) *model.Model {
	merged := model.NewModel()
	for _, m := range models {
		if m == nil {
			continue
		}
		merged.Merge(m, nil)
	}
	return merged
}

// index groups a model's edges by lower-cased source id, sorted by label.
type index struct {
	m   *model.Model
	out map[string][]model.Edge
}

func newIndex(m *model.Model) *index {
	idx := &index{m: m, out: make(map[string][]model.Edge)}
	for _, e := range m.SortedEdges() {
		key := strings.ToLower(e.Source)
		idx.out[key] = append(idx.out[key], e)
	}
	return idx
}

func (idx *index) outgoing(id string) []model.Edge {
	return idx.out[strings.ToLower(id)]
}

func (idx *index) direct(id string) *model.Model {
	result := model.NewModel()
	node := FindNode(idx.m, id)
	if node == nil {
		return result
	}

	result.AddNode(node)
	for _, e := range idx.outgoing(node.ID) {
		target := FindNode(idx.m, e.Target)
		if target == nil {
			continue
		}
		result.AddNode(target)
		result.AddEdge(e)
	}
	return result
}
