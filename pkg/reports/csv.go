package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// row is one line of a tabular report.
type row interface {
	record() []string
}

// render writes rows as CSV with the given header, or as a JSON array.
func render[R row](format ReportFormat, header []string, rows []R) (io.Reader, error) {
	buf := &bytes.Buffer{}

	if format == ReportFormatJSON {
		if rows == nil {
			rows = []R{}
		}
		if err := json.NewEncoder(buf).Encode(rows); err != nil {
			return nil, fmt.Errorf("failed to encode rows: %w", err)
		}
		return buf, nil
	}

	writer := csv.NewWriter(buf)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(r.record()); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
