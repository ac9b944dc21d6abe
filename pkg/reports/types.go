package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

type ReportType string

const (
	ReportTypeEdges ReportType = "edges"
	ReportTypeNodes ReportType = "nodes"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

// ContentType returns the MIME type of a rendered report.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// ParseFormat accepts "csv" or "json"; empty means csv.
func ParseFormat(s string) (ReportFormat, bool) {
	switch ReportFormat(s) {
	case "", ReportFormatCSV:
		return ReportFormatCSV, true
	case ReportFormatJSON:
		return ReportFormatJSON, true
	}
	return "", false
}

// ReportParams selects the window the report is computed over. A zero Start
// and End report the live graph.
type ReportParams struct {
	Start  time.Time
	End    time.Time
	Format ReportFormat
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	GetGraph(ctx context.Context, from, to time.Time) (*model.Model, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
