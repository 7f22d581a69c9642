package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML decoding
// ---------------------------------------------------------------------------

// UnmarshalYAML decodes a field definition. A missing translate key means
// the field is translatable.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Type      string    `yaml:"type"`
		Translate *bool     `yaml:"translate"`
		Fields    Fields    `yaml:"fields"`
		Fieldsets yaml.Node `yaml:"fieldsets"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	f.Type = ParseKind(raw.Type)
	f.NoTranslate = raw.Translate != nil && !*raw.Translate
	f.Fields = raw.Fields

	switch raw.Fieldsets.Kind {
	case 0:
	case yaml.MappingNode:
		f.Fieldsets = make(map[string]Fieldset, len(raw.Fieldsets.Content)/2)
		for i := 0; i+1 < len(raw.Fieldsets.Content); i += 2 {
			name := raw.Fieldsets.Content[i].Value
			var fs Fieldset
			if err := raw.Fieldsets.Content[i+1].Decode(&fs); err != nil {
				return fmt.Errorf("fieldset %q: %w", name, err)
			}
			if fs.Name == "" {
				fs.Name = name
			}
			f.Fieldsets[name] = fs
		}
	case yaml.SequenceNode:
		// A bare list of block types without resolved schemas.
		f.Fieldsets = make(map[string]Fieldset, len(raw.Fieldsets.Content))
		for _, item := range raw.Fieldsets.Content {
			f.Fieldsets[item.Value] = Fieldset{Name: item.Value}
		}
	default:
		return fmt.Errorf("line %d: fieldsets must be a mapping or a list", raw.Fieldsets.Line)
	}
	return nil
}

// UnmarshalYAML decodes a field map, keeping declaration order.
func (fs *Fields) UnmarshalYAML(node *yaml.Node) error {
	*fs = Fields{}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var f Field
		if err := node.Content[i+1].Decode(&f); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		fs.Set(key, f)
	}
	return nil
}

// UnmarshalYAML decodes a fieldset, keeping tabs in document order. A
// fieldset without tabs but with a top-level fields map is treated as a
// single tab named "content".
func (fs *Fieldset) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name   string    `yaml:"name"`
		Tabs   yaml.Node `yaml:"tabs"`
		Fields Fields    `yaml:"fields"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	fs.Name = raw.Name
	fs.Tabs = nil

	if raw.Tabs.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(raw.Tabs.Content); i += 2 {
			var tab struct {
				Fields Fields `yaml:"fields"`
			}
			name := raw.Tabs.Content[i].Value
			if err := raw.Tabs.Content[i+1].Decode(&tab); err != nil {
				return fmt.Errorf("tab %q: %w", name, err)
			}
			fs.Tabs = append(fs.Tabs, Tab{Name: name, Fields: tab.Fields})
		}
	}
	if raw.Fields.Len() > 0 {
		fs.Tabs = append(fs.Tabs, Tab{Name: "content", Fields: raw.Fields})
	}
	return nil
}

// ---------------------------------------------------------------------------
// Blueprint files
// ---------------------------------------------------------------------------

// Blueprint is the top-level structure of a blueprint file.
type Blueprint struct {
	Title  string `yaml:"title,omitempty"`
	Fields Fields `yaml:"fields"`
}

// ParseBlueprint parses blueprint YAML (or JSON) data.
func ParseBlueprint(data []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("parsing blueprint: %w", err)
	}
	return &bp, nil
}

// LoadBlueprint reads and parses a blueprint file.
func LoadBlueprint(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	bp, err := ParseBlueprint(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bp, nil
}

// ---------------------------------------------------------------------------
// Resolvers
// ---------------------------------------------------------------------------

// Resolver returns the field definitions for a document template.
type Resolver interface {
	Resolve(ctx context.Context, template string) (Fields, error)
}

// DirResolver resolves templates to <Dir>/<template>.yml blueprint files.
// Parsed blueprints are cached for the lifetime of the resolver.
type DirResolver struct {
	Dir string

	mu    sync.Mutex
	cache map[string]Fields
}

// NewDirResolver creates a resolver reading blueprints from dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{Dir: dir, cache: make(map[string]Fields)}
}

// Resolve implements Resolver.
func (r *DirResolver) Resolve(ctx context.Context, template string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return Fields{}, err
	}

	clean := filepath.Clean(filepath.FromSlash(template))
	if template == "" || clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return Fields{}, fmt.Errorf("invalid template name %q", template)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fields, ok := r.cache[template]; ok {
		return fields, nil
	}

	var lastErr error
	for _, ext := range []string{".yml", ".yaml"} {
		bp, err := LoadBlueprint(filepath.Join(r.Dir, clean+ext))
		if err != nil {
			lastErr = err
			continue
		}
		if r.cache == nil {
			r.cache = make(map[string]Fields)
		}
		r.cache[template] = bp.Fields
		return bp.Fields, nil
	}
	return Fields{}, fmt.Errorf("no blueprint for template %q: %w", template, lastErr)
}
