package ingest

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// Observation is one already-resolved call from a service on one node to a
// service on another (or the same) node.
type Observation struct {
	SourceNode    string `json:"source_node"`
	SourceService string `json:"source_service"`
	TargetNode    string `json:"target_node"`
	TargetService string `json:"target_service"`
}

// Validate checks that all four fields are present.
func (o Observation) Validate() error {
	var missing []string
	if strings.TrimSpace(o.SourceNode) == "" {
		missing = append(missing, "source_node")
	}
	if strings.TrimSpace(o.SourceService) == "" {
		missing = append(missing, "source_service")
	}
	if strings.TrimSpace(o.TargetNode) == "" {
		missing = append(missing, "target_node")
	}
	if strings.TrimSpace(o.TargetService) == "" {
		missing = append(missing, "target_service")
	}
	if len(missing) > 0 {
		return fmt.Errorf("observation missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Link returns the service link text of the call.
func (o Observation) Link() string {
	return model.ServiceLink{
		Source: strings.TrimSpace(o.SourceService),
		Target: strings.TrimSpace(o.TargetService),
	}.String()
}

// Graph is the mutation surface of the live graph store.
type Graph interface {
	GetOrCreateTransient(id string) *model.Node
	AddNode(n *model.Node) *model.Node
	AddComponent(nodeID, service string)
	AddLink(parentID, childID, link string) error
}

// Apply records the observation: both nodes are resolved or created, each
// service becomes a component of its node, and the call becomes a link.
// Node ids are resolved case-insensitively against existing nodes.
func Apply(g Graph, obs Observation) error {
	if err := obs.Validate(); err != nil {
		return err
	}

	src := g.AddNode(g.GetOrCreateTransient(strings.TrimSpace(obs.SourceNode)))
	dst := g.AddNode(g.GetOrCreateTransient(strings.TrimSpace(obs.TargetNode)))

	g.AddComponent(src.ID, strings.TrimSpace(obs.SourceService))
	g.AddComponent(dst.ID, strings.TrimSpace(obs.TargetService))

	return g.AddLink(src.ID, dst.ID, obs.Link())
}
