package collect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// textList is a list field stored as a string. The collector and the sync
// filter work on the decoded list; encode writes their changes back into
// the source node tree so that key order, scalar styles and comments of
// untouched parts survive the round trip.
type textList struct {
	root            *yaml.Node
	list            []any
	codec           listCodec
	trailingNewline bool
}

type listCodec interface {
	// parse returns the node tree of s, or nil when s holds no value.
	parse(s string) (*yaml.Node, error)
	format(root *yaml.Node) (string, error)
}

func decodeTextList(s string, codec listCodec) (*textList, error) {
	root, err := codec.parse(s)
	if err != nil {
		return nil, err
	}
	tl := &textList{root: root, codec: codec, trailingNewline: strings.HasSuffix(s, "\n")}
	if root != nil {
		if err := root.Decode(&tl.list); err != nil {
			return nil, fmt.Errorf("decoding list: %w", err)
		}
	}
	return tl, nil
}

func (tl *textList) encode() (string, error) {
	if tl.root == nil {
		return "", nil
	}
	if err := reconcile(tl.root, tl.list); err != nil {
		return "", err
	}
	out, err := tl.codec.format(tl.root)
	if err != nil {
		return "", err
	}
	out = strings.TrimSuffix(out, "\n")
	if tl.trailingNewline {
		out += "\n"
	}
	return out, nil
}

// reconcile makes n represent v. Mapping entries keep their position,
// entries missing from v are dropped and new ones are appended in key
// order. Values whose shape differs from the node are left as they are;
// nothing that rewrites a list ever changes a container into a scalar or
// back.
func reconcile(n *yaml.Node, v any) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 1 {
			return reconcile(n.Content[0], v)
		}
	case yaml.MappingNode:
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		seen := make(map[string]struct{}, len(m))
		kept := n.Content[:0]
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			nv, ok := m[key.Value]
			if !ok {
				continue
			}
			if err := reconcile(val, nv); err != nil {
				return err
			}
			seen[key.Value] = struct{}{}
			kept = append(kept, key, val)
		}
		n.Content = kept

		var added []string
		for k := range m {
			if _, ok := seen[k]; !ok {
				added = append(added, k)
			}
		}
		sort.Strings(added)
		for _, k := range added {
			val, err := valueNode(m[k])
			if err != nil {
				return err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
		}
	case yaml.SequenceNode:
		s, ok := v.([]any)
		if !ok {
			return nil
		}
		if len(s) < len(n.Content) {
			n.Content = n.Content[:len(s)]
		}
		for i, item := range s {
			if i < len(n.Content) {
				if err := reconcile(n.Content[i], item); err != nil {
					return err
				}
				continue
			}
			val, err := valueNode(item)
			if err != nil {
				return err
			}
			n.Content = append(n.Content, val)
		}
	case yaml.ScalarNode:
		if s, ok := v.(string); ok && n.ShortTag() == "!!str" {
			n.Value = s
		}
	}
	return nil
}

func valueNode(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding list item: %w", err)
	}
	return &n, nil
}

// ---------------------------------------------------------------------------
// YAML
// ---------------------------------------------------------------------------

// yamlCodec handles structure fields stored as YAML.
type yamlCodec struct{}

func (yamlCodec) parse(s string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("decoding YAML list: %w", err)
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, errors.New("decoding YAML list: value is not a list")
	}
	return &doc, nil
}

func (yamlCodec) format(root *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encoding YAML list: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding YAML list: %w", err)
	}
	return buf.String(), nil
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// jsonCodec handles blocks and layout fields stored as JSON. Objects are
// read token by token into yaml nodes, which keep member order.
type jsonCodec struct{}

func (jsonCodec) parse(s string) (*yaml.Node, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	root, err := jsonNode(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding JSON list: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decoding JSON list: trailing data")
	}
	if root.Kind != yaml.SequenceNode {
		return nil, errors.New("decoding JSON list: value is not a list")
	}
	return root, nil
}

func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if t == '{' {
			n = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		} else if t != '[' {
			return nil, fmt.Errorf("unexpected %q", t)
		}
		for dec.More() {
			if n.Kind == yaml.MappingNode {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				name, _ := key.(string)
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name})
			}
			child, err := jsonNode(dec)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return n, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t, Style: yaml.DoubleQuotedStyle}, nil
	case json.Number:
		tag := "!!float"
		if _, err := t.Int64(); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}, nil
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
}

func (jsonCodec) format(root *yaml.Node) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, root); err != nil {
		return "", fmt.Errorf("encoding JSON list: %w", err)
	}
	return buf.String(), nil
}

// writeJSON writes n as compact JSON.
func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, n.Content[i].Value); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int", "!!float", "!!bool":
			buf.WriteString(n.Value)
		case "!!null":
			buf.WriteString("null")
		default:
			return writeJSONString(buf, n.Value)
		}
	default:
		return fmt.Errorf("unsupported node kind %d", n.Kind)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}
