package collect

import (
	"fmt"
	"strings"

	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/schema"
	"github.com/rs/zerolog"
)

// Options controls which fields a traversal selects.
type Options struct {
	// Fields is the schema of the top level of the document.
	Fields schema.Fields
	// FieldTypes is the allow-list of field kinds. Fields of other kinds
	// are left untouched at every depth.
	FieldTypes schema.KindSet
	// IncludeFields, when non-empty, restricts traversal to these keys at
	// every depth.
	IncludeFields []string
	// ExcludeFields removes these keys at every depth.
	ExcludeFields []string
	// Logger receives warnings about malformed nested values.
	Logger *zerolog.Logger
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// ---------------------------------------------------------------------------
// Field policy
// ---------------------------------------------------------------------------

// policy is the per-key selection rule shared by Collect and FilterSyncable.
type policy struct {
	types   schema.KindSet
	include map[string]struct{}
	exclude map[string]struct{}
}

func newPolicy(opts Options) policy {
	return policy{
		types:   opts.FieldTypes,
		include: keySet(opts.IncludeFields),
		exclude: keySet(opts.ExcludeFields),
	}
}

func keySet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// admit reports whether key of values is selected and returns its
// definition and raw value.
func (p policy) admit(values map[string]any, fields schema.Fields, key string) (schema.Field, any, bool) {
	value, present := values[key]
	if !present || content.IsBlank(value) {
		return schema.Field{}, nil, false
	}
	def, known := fields.Get(key)
	if !known {
		return schema.Field{}, nil, false
	}
	if !def.Translatable() {
		return schema.Field{}, nil, false
	}
	if !p.types.Has(def.Type) {
		return schema.Field{}, nil, false
	}
	if p.include != nil {
		if _, ok := p.include[key]; !ok {
			return schema.Field{}, nil, false
		}
	}
	if p.exclude != nil {
		if _, ok := p.exclude[key]; ok {
			return schema.Field{}, nil, false
		}
	}
	return def, value, true
}

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

type collector struct {
	policy policy
	log    *zerolog.Logger
	result *Result
}

// Collect walks doc against opts.Fields and returns the translation units
// found, in schema declaration order, depth first. The document is only
// read; writes happen later through the returned slots and finalizers.
func Collect(doc content.Document, opts Options) *Result {
	c := &collector{
		policy: newPolicy(opts),
		log:    opts.logger(),
		result: &Result{},
	}
	if doc != nil {
		c.walk(doc, opts.Fields)
	}
	return c.result
}

func (c *collector) add(u Unit, slot Slot) {
	c.result.Translations = append(c.result.Translations, Translation{Unit: u, Slot: slot})
}

func (c *collector) finalize(f Finalizer) {
	c.result.Finalizers = append(c.result.Finalizers, f)
}

func (c *collector) walk(values map[string]any, fields schema.Fields) {
	for _, key := range fields.Keys() {
		def, value, ok := c.policy.admit(values, fields, key)
		if !ok {
			continue
		}
		c.field(values, key, def, value)
	}
}

// field dispatches one admitted field to the handler of its kind.
func (c *collector) field(values map[string]any, key string, def schema.Field, value any) {
	switch def.Type {
	case schema.KindText, schema.KindWriter, schema.KindList:
		c.scalar(values, key, def, value, ModeBatch)
	case schema.KindTextarea, schema.KindMarkdown:
		c.scalar(values, key, def, value, ModeKirbytext)
	case schema.KindTags:
		c.tags(values, key, def, value)
	case schema.KindTable:
		c.table(values, key, def, value)
	case schema.KindStructure:
		c.serializedList(values, key, value, yamlCodec{}, func(items []any) {
			c.structure(items, def)
		})
	case schema.KindObject:
		if obj, ok := value.(map[string]any); ok {
			c.walk(obj, def.Fields)
		}
	case schema.KindLayout:
		c.serializedList(values, key, value, jsonCodec{}, func(layouts []any) {
			for _, blocks := range content.LayoutBlocks(layouts) {
				c.blockList(blocks, def)
			}
		})
	case schema.KindBlocks:
		c.serializedList(values, key, value, jsonCodec{}, func(blocks []any) {
			c.blockList(blocks, def)
		})
	case schema.KindUnknown:
	}
}

func (c *collector) scalar(values map[string]any, key string, def schema.Field, value any, mode Mode) {
	s, ok := value.(string)
	if !ok || content.ShouldSkip(s) {
		return
	}
	c.add(Unit{Text: s, Mode: mode, FieldKey: key, FieldType: def.Type}, mapSlot{m: values, key: key})
}

func (c *collector) tags(values map[string]any, key string, def schema.Field, value any) {
	var (
		tags  []string
		shape tagsShape
	)
	switch t := value.(type) {
	case []any:
		for _, v := range t {
			if v == nil {
				continue
			}
			tags = append(tags, fmt.Sprint(v))
		}
		shape = tagsAnyList
	case []string:
		tags = t
		shape = tagsStringList
	case string:
		for _, part := range strings.Split(t, ",") {
			tags = append(tags, strings.TrimSpace(part))
		}
		shape = tagsCommaString
	default:
		return
	}
	if len(tags) == 0 || strings.TrimSpace(strings.Join(tags, "")) == "" {
		return
	}
	c.add(Unit{
		Text:      strings.Join(tags, tagSeparator),
		Mode:      ModeBatch,
		FieldKey:  key,
		FieldType: def.Type,
	}, tagsSlot{m: values, key: key, shape: shape})
}

func (c *collector) table(values map[string]any, key string, def schema.Field, value any) {
	cell := func(text string, slot Slot) {
		if strings.TrimSpace(text) == "" {
			return
		}
		c.add(Unit{Text: text, Mode: ModeSingle, FieldKey: key, FieldType: def.Type}, slot)
	}

	switch t := value.(type) {
	case string:
		table, err := content.ParseTable(t)
		if err != nil {
			c.log.Warn().Err(err).Str("field", key).Msg("skipping malformed table")
			return
		}
		before := c.result.Len()
		for _, row := range table.Cells {
			for _, n := range row {
				if content.IsTextCell(n) {
					cell(n.Value, nodeSlot{node: n})
				}
			}
		}
		if c.result.Len() > before {
			c.finalize(func() error {
				out, err := table.Encode()
				if err != nil {
					return fmt.Errorf("field %s: %w", key, err)
				}
				values[key] = out
				return nil
			})
		}
	case []any:
		for _, r := range t {
			switch row := r.(type) {
			case []any:
				for j, v := range row {
					if s, ok := v.(string); ok {
						cell(s, sliceSlot{s: row, i: j})
					}
				}
			case []string:
				for j, s := range row {
					cell(s, stringsSlot{s: row, i: j})
				}
			}
		}
	case [][]string:
		for _, row := range t {
			for j, s := range row {
				cell(s, stringsSlot{s: row, i: j})
			}
		}
	}
}

func (c *collector) structure(items []any, def schema.Field) {
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			c.walk(obj, def.Fields)
		}
	}
}

// blockList recurses into every translatable block whose type has a
// fieldset, using the fieldset's flattened field map.
func (c *collector) blockList(blocks []any, def schema.Field) {
	for _, raw := range blocks {
		if !content.IsBlockTranslatable(raw) {
			continue
		}
		b, _ := content.DecodeBlock(raw)
		fs, ok := def.Fieldset(b.Type)
		if !ok {
			continue
		}
		c.walk(b.Content, fs.Flatten())
	}
}

// serializedList visits a list value that is either already decoded or
// stored as a serialized string. Serialized lists that yield units are
// re-encoded by a finalizer.
func (c *collector) serializedList(values map[string]any, key string, value any, codec listCodec, visit func([]any)) {
	switch t := value.(type) {
	case []any:
		visit(t)
	case string:
		tl, err := decodeTextList(t, codec)
		if err != nil {
			c.log.Warn().Err(err).Str("field", key).Msg("skipping malformed serialized value")
			return
		}
		before := c.result.Len()
		visit(tl.list)
		if c.result.Len() > before {
			c.finalize(func() error {
				out, err := tl.encode()
				if err != nil {
					return fmt.Errorf("field %s: %w", key, err)
				}
				values[key] = out
				return nil
			})
		}
	}
}
