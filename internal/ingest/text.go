package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"unicode/utf8"
)

// TextReader handles .txt, .log and extension-less files, one entry per line.
// Processor.ProcessFile also uses it for any file named explicitly in text mode.
type TextReader struct{}

// CanHandle returns true for plain text extensions.
func (t *TextReader) CanHandle(path string) bool {
	ext := extOf(path)
	return ext == ".txt" || ext == ".log" || ext == ""
}

// Read returns the non-empty lines of a UTF-8 text file.
func (t *TextReader) Read(ctx context.Context, path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	if !utf8.Valid(data) {
		return nil, readErr(path, errors.New("not valid UTF-8"))
	}

	return &Content{Kind: KindLines, Lines: splitLines(string(data))}, nil
}

// splitLines drops blank lines and trailing carriage returns.
func splitLines(content string) []string {
	content = strings.TrimPrefix(content, string(utf8BOM))
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
