package content

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is a cell matrix decoded from its YAML text encoding:
//
//	- [Name, Price]
//	- [Coffee, Small]
//
// Cells are kept as yaml nodes so that a translated matrix re-serializes with
// the scalar styles of the source.
type Table struct {
	doc             *yaml.Node
	trailingNewline bool
	// Cells holds one entry per row; an entry is nil for cells that are not
	// scalars.
	Cells [][]*yaml.Node
}

// ParseTable decodes a YAML-encoded table. Every row must be a list.
func ParseTable(src string) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("parsing table: %w", err)
	}

	t := &Table{
		doc:             &doc,
		trailingNewline: strings.HasSuffix(src, "\n"),
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return t, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("table root must be a list, got kind %d", root.Kind)
	}

	for i, row := range root.Content {
		if row.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("table row %d is not a list", i)
		}
		cells := make([]*yaml.Node, len(row.Content))
		for j, cell := range row.Content {
			if cell.Kind == yaml.ScalarNode {
				cells[j] = cell
			}
		}
		t.Cells = append(t.Cells, cells)
	}
	return t, nil
}

// IsTextCell reports whether a cell holds a non-blank string.
func IsTextCell(cell *yaml.Node) bool {
	if cell == nil || cell.Kind != yaml.ScalarNode {
		return false
	}
	switch cell.ShortTag() {
	case "!!bool", "!!int", "!!float", "!!null":
		return false
	}
	return strings.TrimSpace(cell.Value) != ""
}

// Encode re-serializes the table: two-space indentation, one row per line.
func (t *Table) Encode() (string, error) {
	if t.doc == nil || len(t.doc.Content) == 0 {
		return "", nil
	}
	root := t.doc.Content[0]
	for _, row := range root.Content {
		row.Style = yaml.FlowStyle
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encoding table: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding table: %w", err)
	}

	out := buf.String()
	if !t.trailingNewline {
		out = strings.TrimSuffix(out, "\n")
	}
	return out, nil
}
