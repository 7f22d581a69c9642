// Package content models the documents the translation engine walks and the
// predicates used to decide whether a raw value is worth translating.
//
// A Document is the decoded form of a stored content file: a mapping from
// field keys to strings, lists, nested mappings, or serialized (YAML/JSON)
// strings. Documents are mutated in place by the engine, so call sites that
// must keep the persisted version intact pass a Clone.
package content

import (
	"regexp"
	"strings"
)

// Document is a decoded content document.
type Document = map[string]any

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

var (
	numericLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	pureURL        = regexp.MustCompile(`^https?://\S+$`)
)

// ShouldSkip reports whether a string cannot meaningfully change under
// translation: empty or whitespace-only text, numeric literals and bare
// http(s) URLs.
func ShouldSkip(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	return numericLiteral.MatchString(v) || pureURL.MatchString(v)
}

// IsPlainObject reports whether v is a key-value mapping (as opposed to a
// list, a scalar or nil).
func IsPlainObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// IsBlank reports whether a raw field value is absent: nil or the empty
// string.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// Block is the typed view of one entry of a blocks or layout field.
type Block struct {
	ID       string
	Type     string
	IsHidden bool
	Content  map[string]any
}

// DecodeBlock extracts the typed view of a raw block. ok is false when raw
// is not a mapping.
func DecodeBlock(raw any) (Block, bool) {
	m, isMap := raw.(map[string]any)
	if !isMap {
		return Block{}, false
	}
	b := Block{}
	b.ID, _ = m["id"].(string)
	b.Type, _ = m["type"].(string)
	b.IsHidden, _ = m["isHidden"].(bool)
	b.Content, _ = m["content"].(map[string]any)
	return b, true
}

// IsBlockTranslatable reports whether a raw block has a mapping as content,
// a non-empty id, and is not hidden.
func IsBlockTranslatable(raw any) bool {
	m, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	if !IsPlainObject(m["content"]) {
		return false
	}
	id, _ := m["id"].(string)
	if id == "" {
		return false
	}
	if hidden, _ := m["isHidden"].(bool); hidden {
		return false
	}
	return true
}

// LayoutBlocks returns the raw block lists of every column of every layout
// entry, in document order.
func LayoutBlocks(layouts []any) [][]any {
	var out [][]any
	for _, l := range layouts {
		layout, ok := l.(map[string]any)
		if !ok {
			continue
		}
		columns, _ := layout["columns"].([]any)
		for _, c := range columns {
			column, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if blocks, ok := column["blocks"].([]any); ok {
				out = append(out, blocks)
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Cloning
// ---------------------------------------------------------------------------

// Clone returns a deep copy of a document.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(map[string]any)
}

// CloneValue returns a deep copy of any decoded content value.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case [][]string:
		out := make([][]string, len(t))
		for i, row := range t {
			out[i] = append([]string(nil), row...)
		}
		return out
	default:
		return v
	}
}
