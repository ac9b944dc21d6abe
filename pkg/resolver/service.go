package resolver

import (
	"strings"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// serviceRef is one service hosted by one node.
type serviceRef struct {
	nodeID  string
	service string
}

func (r serviceRef) qualified() string {
	return model.QualifiedServiceName(r.nodeID, r.service)
}

type visitState int

const (
	unvisited visitState = iota
	onPath
	finished
)

// frame is one entry of the explicit DFS stack.
type frame struct {
	ref  serviceRef
	next []serviceRef
	pos  int
}

// ServiceModel returns the services reachable from service on node id. Each
// reachable service becomes a node named by its qualified name, and each call
// becomes an edge between qualified names with an empty service part.
//
// Calls inside a node come from its self-edges; calls across nodes come from
// edges whose source service matches. A call back into a service that is
// still being expanded closes a cycle and is dropped. A call into a service
// that was already fully expanded is kept.
func ServiceModel(m *model.Model, id, service string) (*model.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	result := model.NewModel()
	start := FindNode(m, id)
	if start == nil {
		return result, nil
	}

	idx := newIndex(m)
	state := make(map[string]visitState)

	root := serviceRef{nodeID: start.ID, service: strings.TrimSpace(service)}
	result.AddNode(model.NewNode(root.qualified()))
	state[root.qualified()] = onPath
	stack := []*frame{{ref: root, next: idx.calls(root)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.pos == len(top.next) {
			state[top.ref.qualified()] = finished
			stack = stack[:len(stack)-1]
			continue
		}

		callee := top.next[top.pos]
		top.pos++

		switch state[callee.qualified()] {
		case onPath:
			continue
		case finished:
			addCall(result, top.ref, callee)
		default:
			addCall(result, top.ref, callee)
			state[callee.qualified()] = onPath
			stack = append(stack, &frame{ref: callee, next: idx.calls(callee)})
		}
	}

	return result, nil
}

func addCall(m *model.Model, from, to serviceRef) {
	m.AddNode(model.NewNode(to.qualified()))
	m.AddEdge(model.Edge{Source: from.qualified(), Target: to.qualified()})
}

// calls lists the services called by ref, in a stable order: self-edge calls
// first, then calls carried by outgoing edges sorted by label.
func (idx *index) calls(ref serviceRef) []serviceRef {
	node := FindNode(idx.m, ref.nodeID)
	if node == nil {
		return nil
	}

	var out []serviceRef
	seen := model.NewSet()
	add := func(r serviceRef) {
		if seen.Add(r.qualified()) {
			out = append(out, r)
		}
	}

	for _, link := range node.SelfLinks() {
		if strings.EqualFold(link.Source, ref.service) && !strings.EqualFold(link.Source, link.Target) {
			add(serviceRef{nodeID: node.ID, service: link.Target})
		}
	}

	for _, e := range idx.outgoing(node.ID) {
		if strings.EqualFold(e.Target, node.ID) {
			continue
		}
		link, err := e.Link()
		if err != nil {
			continue
		}
		if !strings.EqualFold(link.Source, ref.service) || strings.EqualFold(link.Target, ref.service) {
			continue
		}
		target := FindNode(idx.m, e.Target)
		if target == nil {
			continue
		}
		add(serviceRef{nodeID: target.ID, service: link.Target})
	}

	return out
}
