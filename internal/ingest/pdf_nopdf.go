//go:build nopdf

package ingest

import (
	"context"
	"fmt"
	"path/filepath"
)

// PDFReader stands in for the PDF parser when built with -tags nopdf.
type PDFReader struct{}

// CanHandle returns true for PDF file extensions.
func (p *PDFReader) CanHandle(path string) bool {
	return extOf(path) == ".pdf"
}

// Read always fails with ErrImportUnavailable.
func (p *PDFReader) Read(ctx context.Context, path string) (*Content, error) {
	return nil, fmt.Errorf("%w: %s: PDF support not compiled in (built with -tags nopdf)", ErrImportUnavailable, filepath.Base(path))
}
