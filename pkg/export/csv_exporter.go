package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType implements Renderer.
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Extension implements Renderer.
func (e *CSVExporter) Extension() string { return ".csv" }

// Render produces CSV encoded bytes. Summary fields come first as label/value
// pairs; each table follows after a blank record, introduced by its title.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if !data.hasContent() {
		return nil, fmt.Errorf("csv requires a summary or at least one table header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	if data.Title != "" {
		if err := writer.Write([]string{data.Title}); err != nil {
			return nil, fmt.Errorf("write csv title: %w", err)
		}
	}
	for _, field := range data.Summary {
		if err := writer.Write([]string{field.Label, field.Value}); err != nil {
			return nil, fmt.Errorf("write csv summary: %w", err)
		}
	}

	for _, table := range data.Tables {
		if len(table.Headers) == 0 {
			continue
		}
		if err := writer.Write([]string{""}); err != nil {
			return nil, fmt.Errorf("write csv separator: %w", err)
		}
		if table.Title != "" {
			if err := writer.Write([]string{table.Title}); err != nil {
				return nil, fmt.Errorf("write csv table title: %w", err)
			}
		}
		if err := writer.Write(table.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		for _, row := range table.Rows {
			record := make([]string, len(table.Headers))
			for i, header := range table.Headers {
				record[i] = row[header]
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
