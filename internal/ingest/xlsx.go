package ingest

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXReader handles .xlsx workbooks. Only the first sheet is read.
type XLSXReader struct{}

// CanHandle returns true for .xlsx files.
func (x *XLSXReader) CanHandle(path string) bool {
	return extOf(path) == ".xlsx"
}

// Read treats the first sheet like a CSV file: first row is the header.
func (x *XLSXReader) Read(ctx context.Context, path string) (*Content, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	defer f.Close()

	content := &Content{Kind: KindRows}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return content, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, readErr(path, fmt.Errorf("sheet %q: %w", sheets[0], err))
	}
	if len(records) < 2 {
		return content, nil
	}

	content.Rows = tableRows(records[0], records[1:])
	return content, nil
}
