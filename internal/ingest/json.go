package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSONReader handles .json files.
type JSONReader struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONReader) CanHandle(path string) bool {
	return extOf(path) == ".json"
}

// Read parses a JSON file into rows.
// - Array: each object element becomes one row, other elements are skipped.
// - Object: the object is the only row.
// - Anything else: no rows.
// Key order is kept as written. Numbers keep their literal text.
func (j *JSONReader) Read(ctx context.Context, path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	// Validate up front; jsonparser is lenient about trailing garbage.
	var probe json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, readErr(path, err)
	}

	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, readErr(path, err)
	}

	content := &Content{Kind: KindRows}
	switch dataType {
	case jsonparser.Array:
		var rowErr error
		_, err = jsonparser.ArrayEach(value, func(elem []byte, dt jsonparser.ValueType, _ int, _ error) {
			if dt != jsonparser.Object || rowErr != nil {
				return
			}
			row, err := objectRow(elem)
			if err != nil {
				rowErr = err
				return
			}
			content.Rows = append(content.Rows, row)
		})
		if err = errors.Join(err, rowErr); err != nil {
			return nil, readErr(path, err)
		}

	case jsonparser.Object:
		row, err := objectRow(value)
		if err != nil {
			return nil, readErr(path, err)
		}
		content.Rows = []Row{row}
	}

	return content, nil
}

// objectRow flattens one JSON object into a row. Nulls are dropped, nested
// values are kept as raw JSON.
func objectRow(obj []byte) (Row, error) {
	row := orderedmap.New[string, string]()
	err := jsonparser.ObjectEach(obj, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		switch dt {
		case jsonparser.Null:
			return nil
		case jsonparser.String:
			v, err := jsonparser.ParseString(value)
			if err != nil {
				return err
			}
			row.Set(k, v)
		default:
			row.Set(k, string(value))
		}
		return nil
	})
	return row, err
}
