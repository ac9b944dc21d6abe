package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEdge is returned when an edge label cannot be built or parsed.
var ErrMalformedEdge = errors.New("malformed edge")

// ConstructionError reports edges whose endpoint nodes are missing from the
// model or graph they were added to. The snapshot holding them is inconsistent.
type ConstructionError struct {
	// Missing maps an edge label to the endpoint ids that could not be found.
	Missing map[string][]string
}

func (e *ConstructionError) Error() string {
	if len(e.Missing) == 0 {
		return "inconsistent model"
	}
	labels := NewSet()
	for label := range e.Missing {
		labels.Add(label)
	}
	var parts []string
	for _, label := range labels.Sorted() {
		parts = append(parts, fmt.Sprintf("%s (missing %s)", label, strings.Join(e.Missing[label], ", ")))
	}
	return "inconsistent model: edges reference absent nodes: " + strings.Join(parts, "; ")
}

// Add records nodeID as a missing endpoint of the edge with the given label.
func (e *ConstructionError) Add(label, nodeID string) {
	if e.Missing == nil {
		e.Missing = make(map[string][]string)
	}
	e.Missing[label] = append(e.Missing[label], nodeID)
}

// IsConstructionError reports whether err carries a *ConstructionError.
func IsConstructionError(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}
