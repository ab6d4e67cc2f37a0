// Package ingest reads facility files and turns them into canonical records.
//
// Each supported format (PDF, CSV/TSV, JSON, YAML, XLSX, plain text) has its
// own Reader. A Processor enumerates a directory, keeps the files its Mode
// accepts, and runs read → extract → normalize on each file independently.
// A file that cannot be read becomes an error record; it never stops the
// rest of the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrDirectoryNotFound is reported when the batch directory does not exist.
	ErrDirectoryNotFound = errors.New("directory not found")
	// ErrImportUnavailable is reported when no parser for a format is built in.
	ErrImportUnavailable = errors.New("import unavailable")
	// ErrRead is reported when a file cannot be parsed in its expected format.
	ErrRead = errors.New("read error")
)

// Row is one record of a structured source, keys in source order.
type Row = *orderedmap.OrderedMap[string, string]

// ContentKind tells which field of Content a reader filled.
type ContentKind int

const (
	KindText ContentKind = iota
	KindRows
	KindLines
)

// Content is the raw material read from one file.
type Content struct {
	Kind  ContentKind
	Text  string   // KindText: whole document
	Rows  []Row    // KindRows: one mapping per record
	Lines []string // KindLines: non-empty lines
}

// Reader handles a specific file format.
type Reader interface {
	// CanHandle returns true if this reader supports the given file path.
	CanHandle(path string) bool

	// Read parses the file. Errors wrap ErrRead or ErrImportUnavailable.
	Read(ctx context.Context, path string) (*Content, error)
}

// Mode selects which files of a directory are processed and how.
type Mode string

const (
	ModePDF        Mode = "pdf"
	ModeStructured Mode = "structured"
	ModeText       Mode = "text"
)

// ParseMode converts a user-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return ModePDF, nil
	case "structured", "csv", "json", "tabular":
		return ModeStructured, nil
	case "text", "txt", "lines":
		return ModeText, nil
	}
	return "", fmt.Errorf("unknown mode %q (want pdf, structured or text)", s)
}

// Readers returns the readers used by mode.
func Readers(mode Mode) []Reader {
	switch mode {
	case ModePDF:
		return []Reader{&PDFReader{}}
	case ModeStructured:
		return []Reader{&CSVReader{}, &JSONReader{}, &YAMLReader{}, &XLSXReader{}}
	case ModeText:
		return []Reader{&TextReader{}}
	}
	return nil
}

// DefaultMaxFileSize is 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

var utf8BOM = []byte("\xef\xbb\xbf")

func readErr(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRead, filepath.Base(path), err)
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
