package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CSVReader handles .csv and .tsv files.
type CSVReader struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVReader) CanHandle(path string) bool {
	ext := extOf(path)
	return ext == ".csv" || ext == ".tsv"
}

// Read parses a CSV file into rows.
// First row is treated as headers. Short rows leave the missing columns
// empty; cells past the last header are dropped.
func (c *CSVReader) Read(ctx context.Context, path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))

	// Auto-detect TSV
	if extOf(path) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, readErr(path, err)
	}

	content := &Content{Kind: KindRows}
	if len(records) < 2 {
		// Need at least headers + one row
		return content, nil
	}

	content.Rows = tableRows(records[0], records[1:])
	return content, nil
}

// tableRows maps each body row onto the header names.
func tableRows(headers []string, body [][]string) []Row {
	rows := make([]Row, 0, len(body))
	for _, rec := range body {
		row := orderedmap.New[string, string]()
		for j, h := range headers {
			val := ""
			if j < len(rec) {
				val = rec[j]
			}
			row.Set(h, val)
		}
		rows = append(rows, row)
	}
	return rows
}
