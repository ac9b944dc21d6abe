package model

// Node is one mesh instance (cell or workload) and the services it hosts.
type Node struct {
	ID string `json:"id"`
	// Components are the services hosted by the instance.
	Components Set `json:"components"`
	// SelfEdges are calls between services of the same instance, as service link text.
	SelfEdges Set `json:"edges"`
}

// NewNode creates a node with empty component and self-edge sets.
func NewNode(id string) *Node {
	return &Node{
		ID:         id,
		Components: NewSet(),
		SelfEdges:  NewSet(),
	}
}

// AddComponent records a service hosted by the node.
func (n *Node) AddComponent(service string) bool {
	n.ensureSets()
	return n.Components.Add(service)
}

// AddSelfEdge records an intra-node service call.
func (n *Node) AddSelfEdge(link string) bool {
	n.ensureSets()
	return n.SelfEdges.Add(link)
}

// Absorb unions other's components and self-edges into n.
func (n *Node) Absorb(other *Node) {
	n.ensureSets()
	n.Components.Union(other.Components)
	n.SelfEdges.Union(other.SelfEdges)
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	return &Node{
		ID:         n.ID,
		Components: n.Components.Clone(),
		SelfEdges:  n.SelfEdges.Clone(),
	}
}

// SelfLinks parses the self-edges, skipping entries that are not service links.
func (n *Node) SelfLinks() []ServiceLink {
	var links []ServiceLink
	for _, text := range n.SelfEdges.Sorted() {
		link, err := ParseServiceLink(text)
		if err != nil {
			continue
		}
		links = append(links, link)
	}
	return links
}

func (n *Node) ensureSets() {
	if n.Components == nil {
		n.Components = NewSet()
	}
	if n.SelfEdges == nil {
		n.SelfEdges = NewSet()
	}
}
