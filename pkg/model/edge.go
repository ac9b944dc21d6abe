package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// EdgeSeparator joins the parts of an edge label.
	EdgeSeparator = "###"
	// LinkSeparator joins the source and target service of a service link.
	LinkSeparator = "->"
	// QualifierSeparator joins a node id and a service name.
	QualifierSeparator = "."
)

// Edge is a directed, labelled relationship between two distinct nodes.
// Two edges are equal when their labels are equal.
type Edge struct {
	Source  string
	Target  string
	Service string
}

// EncodeEdge builds the label for an edge from src to dst carrying the given
// service link text. It fails with ErrMalformedEdge when the result could not
// be decoded back into the same parts.
func EncodeEdge(src, dst, service string) (string, error) {
	if src == "" || dst == "" {
		return "", fmt.Errorf("%w: empty node id (source=%q target=%q)", ErrMalformedEdge, src, dst)
	}
	for _, part := range []string{src, dst, service} {
		if strings.Contains(part, EdgeSeparator) {
			return "", fmt.Errorf("%w: %q contains %q", ErrMalformedEdge, part, EdgeSeparator)
		}
	}
	return src + EdgeSeparator + dst + EdgeSeparator + service, nil
}

// DecodeEdge parses a label produced by EncodeEdge.
func DecodeEdge(label string) (Edge, error) {
	parts := strings.Split(label, EdgeSeparator)
	if len(parts) != 3 {
		return Edge{}, fmt.Errorf("%w: %q has %d parts", ErrMalformedEdge, label, len(parts))
	}
	if parts[0] == "" || parts[1] == "" {
		return Edge{}, fmt.Errorf("%w: %q has an empty node id", ErrMalformedEdge, label)
	}
	return Edge{Source: parts[0], Target: parts[1], Service: parts[2]}, nil
}

// NewEdge validates the parts and returns the edge.
func NewEdge(src, dst, service string) (Edge, error) {
	if _, err := EncodeEdge(src, dst, service); err != nil {
		return Edge{}, err
	}
	return Edge{Source: src, Target: dst, Service: service}, nil
}

// Label returns the encoded form of the edge.
func (e Edge) Label() string {
	return e.Source + EdgeSeparator + e.Target + EdgeSeparator + e.Service
}

func (e Edge) String() string {
	return e.Label()
}

// Link parses the service part of the edge as a service link.
func (e Edge) Link() (ServiceLink, error) {
	return ParseServiceLink(e.Service)
}

type edgeJSON struct {
	Label   string `json:"label"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Service string `json:"service,omitempty"`
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeJSON{Label: e.Label(), Source: e.Source, Target: e.Target, Service: e.Service})
}

// UnmarshalJSON decodes the edge from its label; the other fields are derived.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := DecodeEdge(raw.Label)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}

// ServiceLink is a call from one service to another.
type ServiceLink struct {
	Source string
	Target string
}

// ParseServiceLink parses "source->target". Whitespace around each side is ignored.
func ParseServiceLink(text string) (ServiceLink, error) {
	src, dst, ok := strings.Cut(text, LinkSeparator)
	if !ok {
		return ServiceLink{}, fmt.Errorf("%w: service link %q has no %q", ErrMalformedEdge, text, LinkSeparator)
	}
	link := ServiceLink{Source: strings.TrimSpace(src), Target: strings.TrimSpace(dst)}
	if link.Source == "" || link.Target == "" {
		return ServiceLink{}, fmt.Errorf("%w: service link %q has an empty side", ErrMalformedEdge, text)
	}
	if strings.Contains(link.Target, LinkSeparator) {
		return ServiceLink{}, fmt.Errorf("%w: service link %q chains more than two services", ErrMalformedEdge, text)
	}
	return link, nil
}

func (l ServiceLink) String() string {
	return l.Source + LinkSeparator + l.Target
}

// QualifiedServiceName disambiguates a service by the node hosting it.
func QualifiedServiceName(nodeID, service string) string {
	return nodeID + QualifierSeparator + service
}
