package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func nodeWith(id string, components ...string) *Node {
	n := NewNode(id)
	for _, c := range components {
		n.AddComponent(c)
	}
	return n
}

func TestModelMerge_SelfIsIdempotent(t *testing.T) {
	m := NewModel()
	m.AddNode(nodeWith("n1", "a"))
	m.AddNode(nodeWith("n2", "b"))
	m.AddEdge(Edge{Source: "n1", Target: "n2", Service: "a->b"})

	m.Merge(m, nil)

	if m.NodeCount() != 2 || m.EdgeCount() != 1 {
		t.Fatalf("Expected 2 nodes and 1 edge, got %d and %d", m.NodeCount(), m.EdgeCount())
	}
	if m.Nodes["n1"].Components.Len() != 1 {
		t.Errorf("Expected n1 to keep a single component")
	}
}

func TestModelMerge_DoesNotAliasOther(t *testing.T) {
	a := NewModel()
	a.AddNode(nodeWith("n1", "a"))

	b := NewModel()
	b.AddNode(nodeWith("n1", "x"))
	b.AddNode(nodeWith("n2", "b"))

	edge := Edge{Source: "n1", Target: "n2", Service: "a->b"}
	a.Merge(b, &edge)

	if !a.Nodes["n1"].Components.Equal(NewSet("a", "x")) {
		t.Errorf("Expected n1 components {a,x}, got %v", a.Nodes["n1"].Components.Sorted())
	}
	if b.Nodes["n1"].Components.Has("a") {
		t.Errorf("Merge must not modify the other model's nodes")
	}
	if a.Nodes["n2"] == b.Nodes["n2"] {
		t.Errorf("Merge must clone nodes taken from the other model")
	}
	if _, ok := a.Edges[edge.Label()]; !ok {
		t.Errorf("Expected connecting edge to be added")
	}
}

func TestMergeModels_OrderIndependent(t *testing.T) {
	m1 := NewModel()
	m1.AddNode(nodeWith("n1", "a"))
	m1.AddNode(nodeWith("n2", "b"))
	m1.AddEdge(Edge{Source: "n1", Target: "n2", Service: "a->b"})

	m2 := NewModel()
	m2.AddNode(nodeWith("n2", "c"))
	m2.AddNode(nodeWith("n3", "d"))
	m2.AddEdge(Edge{Source: "n2", Target: "n3", Service: "c->d"})

	forward, err := json.Marshal(MergeModels(m1, m2))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	backward, err := json.Marshal(MergeModels(m2, m1))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(forward) != string(backward) {
		t.Errorf("Merge depends on order:\n%s\n%s", forward, backward)
	}

	if MergeModels().NodeCount() != 0 {
		t.Errorf("Expected empty merge of no models")
	}
}

func TestModelValidate(t *testing.T) {
	m := NewModel()
	m.AddNode(nodeWith("n1"))
	m.AddEdge(Edge{Source: "n1", Target: "ghost", Service: "a->b"})

	err := m.Validate()
	if err == nil {
		t.Fatal("Expected construction error")
	}
	if !IsConstructionError(err) {
		t.Fatalf("Expected *ConstructionError, got %T", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Expected error to name the missing node, got %q", err.Error())
	}

	if _, err := Build([]*Node{nodeWith("n1"), nodeWith("ghost")}, []Edge{{Source: "n1", Target: "ghost", Service: "a->b"}}); err != nil {
		t.Errorf("Build failed on a consistent model: %v", err)
	}
}

func TestModelJSON(t *testing.T) {
	m := NewModel()
	n1 := nodeWith("n1", "b", "a")
	n1.AddSelfEdge("a->b")
	m.AddNode(n1)
	m.AddNode(nodeWith("n2", "c"))
	m.AddEdge(Edge{Source: "n1", Target: "n2", Service: "b->c"})

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"nodes":[{"id":"n1","components":["a","b"],"edges":["a->b"]},{"id":"n2","components":["c"],"edges":[]}],` +
		`"edges":[{"label":"n1###n2###b->c","source":"n1","target":"n2","service":"b->c"}]}`
	if string(data) != want {
		t.Errorf("Unexpected JSON:\n got %s\nwant %s", data, want)
	}

	var decoded Model
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.NodeCount() != 2 || decoded.EdgeCount() != 1 {
		t.Errorf("Decoded model has %d nodes and %d edges", decoded.NodeCount(), decoded.EdgeCount())
	}
	if !decoded.Nodes["n1"].SelfEdges.Has("a->b") {
		t.Errorf("Expected self-edge to survive decoding")
	}
}
