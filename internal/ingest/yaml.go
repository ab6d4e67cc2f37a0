package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// YAMLReader handles .yaml and .yml files.
type YAMLReader struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLReader) CanHandle(path string) bool {
	ext := extOf(path)
	return ext == ".yaml" || ext == ".yml"
}

// Read parses a YAML file into rows, with the same shape rules as JSON.
// Multi-document YAML (separated by ---) contributes rows from every document.
func (y *YAMLReader) Read(ctx context.Context, path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readErr(path, err)
	}

	content := &Content{Kind: KindRows}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readErr(path, err)
		}

		root := &doc
		if root.Kind == yaml.DocumentNode {
			if len(root.Content) == 0 {
				continue
			}
			root = root.Content[0]
		}

		switch root.Kind {
		case yaml.SequenceNode:
			for _, item := range root.Content {
				if item.Kind == yaml.MappingNode {
					content.Rows = append(content.Rows, mappingRow(item))
				}
			}
		case yaml.MappingNode:
			content.Rows = append(content.Rows, mappingRow(root))
		}
	}
	return content, nil
}

// mappingRow flattens a mapping node. Scalars keep their source text, nulls
// are dropped and nested nodes are re-encoded as YAML.
func mappingRow(n *yaml.Node) Row {
	row := orderedmap.New[string, string]()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if val.Kind == yaml.AliasNode && val.Alias != nil {
			val = val.Alias
		}
		switch {
		case val.Kind == yaml.ScalarNode && val.ShortTag() == "!!null":
			continue
		case val.Kind == yaml.ScalarNode:
			row.Set(key.Value, val.Value)
		default:
			out, err := yaml.Marshal(val)
			if err != nil {
				continue
			}
			row.Set(key.Value, strings.TrimSpace(string(out)))
		}
	}
	return row
}
