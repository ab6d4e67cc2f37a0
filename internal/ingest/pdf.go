//go:build !nopdf

package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader handles .pdf files.
type PDFReader struct{}

// CanHandle returns true for PDF file extensions.
func (p *PDFReader) CanHandle(path string) bool {
	return extOf(path) == ".pdf"
}

// Read extracts the text of every page in document order, one line per
// text row: glyphs sharing a baseline are joined left to right, a visible
// gap between runs becomes a space. A page that fails is skipped; only a
// file that cannot be opened at all is an error.
func (p *PDFReader) Read(ctx context.Context, path string) (content *Content, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			content, err = nil, readErr(path, fmt.Errorf("%v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	defer f.Close()

	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines = append(lines, pageLines(r, i)...)
	}

	return &Content{Kind: KindText, Text: strings.Join(lines, "\n")}, nil
}

// baselineTolerance is how far apart (in points) two glyphs' Y may be and
// still sit on the same line.
const baselineTolerance = 2.0

// pageLines returns the non-blank text rows of page n, top to bottom.
func pageLines(r *pdf.Reader, n int) (lines []string) {
	defer func() {
		if rec := recover(); rec != nil {
			lines = nil
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return nil
	}

	texts := append([]pdf.Text(nil), page.Content().Text...)
	if len(texts) == 0 {
		return nil
	}
	sort.SliceStable(texts, func(i, j int) bool { return texts[i].Y > texts[j].Y })

	var row []pdf.Text
	flush := func() {
		if line := strings.TrimSpace(joinRow(row)); line != "" {
			lines = append(lines, line)
		}
		row = row[:0]
	}
	for _, t := range texts {
		if len(row) > 0 && math.Abs(row[0].Y-t.Y) > baselineTolerance {
			flush()
		}
		row = append(row, t)
	}
	flush()
	return lines
}

// joinRow orders the glyphs of one row by X and concatenates them.
func joinRow(row []pdf.Text) string {
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })

	var b strings.Builder
	for i, t := range row {
		if i > 0 {
			prev := row[i-1]
			gap := t.X - (prev.X + prev.W)
			if gap > t.FontSize*0.25 && prev.S != " " && t.S != " " {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
	}
	return b.String()
}
