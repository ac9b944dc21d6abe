package reports

import (
	"context"
	"fmt"
	"io"
)

// EdgeRow is one cross-node dependency.
type EdgeRow struct {
	Source        string `json:"source"`
	Target        string `json:"target"`
	SourceService string `json:"source_service"`
	TargetService string `json:"target_service"`
}

func (r EdgeRow) record() []string {
	return []string{r.Source, r.Target, r.SourceService, r.TargetService}
}

// EdgeReport lists every edge of the graph, split into its service link.
type EdgeReport struct {
	store ReportStore
}

// NewEdgeReport creates a new EdgeReport generator.
func NewEdgeReport(s ReportStore) *EdgeReport {
	return &EdgeReport{store: s}
}

func (r *EdgeReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	m, err := r.store.GetGraph(ctx, params.Start, params.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	var rows []EdgeRow
	for _, e := range m.SortedEdges() {
		row := EdgeRow{Source: e.Source, Target: e.Target}
		// Edges whose service part is not a link keep empty service columns.
		if link, err := e.Link(); err == nil {
			row.SourceService = link.Source
			row.TargetService = link.Target
		}
		rows = append(rows, row)
	}

	header := []string{"source", "target", "source_service", "target_service"}
	return render(params.Format, header, rows)
}
