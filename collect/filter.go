package collect

import (
	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/schema"
)

// FilterSyncable projects doc onto the top-level fields that may be copied
// into another language without translation. Block and layout fields are
// copied with every opted-out sub-field removed from their blocks. The
// input is never mutated.
func FilterSyncable(doc content.Document, opts Options) content.Document {
	p := newPolicy(opts)
	log := opts.logger()
	out := make(content.Document)

	for _, key := range opts.Fields.Keys() {
		def, value, ok := p.admit(doc, opts.Fields, key)
		if !ok {
			continue
		}
		switch def.Type {
		case schema.KindBlocks:
			v, err := mapSerializedList(value, func(blocks []any) {
				syncBlocks(blocks, def)
			})
			if err != nil {
				log.Warn().Err(err).Str("field", key).Msg("skipping malformed blocks")
				continue
			}
			out[key] = v
		case schema.KindLayout:
			v, err := mapSerializedList(value, func(layouts []any) {
				for _, blocks := range content.LayoutBlocks(layouts) {
					syncBlocks(blocks, def)
				}
			})
			if err != nil {
				log.Warn().Err(err).Str("field", key).Msg("skipping malformed layout")
				continue
			}
			out[key] = v
		default:
			out[key] = content.CloneValue(value)
		}
	}
	return out
}

// SelectedKeys returns the top-level keys of doc that Collect and
// FilterSyncable select, in schema order.
func SelectedKeys(doc content.Document, opts Options) []string {
	p := newPolicy(opts)
	var keys []string
	for _, key := range opts.Fields.Keys() {
		if _, _, ok := p.admit(doc, opts.Fields, key); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// mapSerializedList clones a list value (decoded or JSON string), lets fn
// rewrite the clone in place, and returns it in the input's encoding.
func mapSerializedList(value any, fn func([]any)) (any, error) {
	switch t := value.(type) {
	case []any:
		list := content.CloneValue(t).([]any)
		fn(list)
		return list, nil
	case string:
		tl, err := decodeTextList(t, jsonCodec{})
		if err != nil {
			return nil, err
		}
		fn(tl.list)
		return tl.encode()
	default:
		return content.CloneValue(value), nil
	}
}

// syncBlocks removes opted-out fields from the content of every block with
// a known fieldset.
func syncBlocks(blocks []any, def schema.Field) {
	for _, raw := range blocks {
		b, ok := content.DecodeBlock(raw)
		if !ok || b.Content == nil {
			continue
		}
		fs, ok := def.Fieldset(b.Type)
		if !ok {
			continue
		}
		flat := fs.Flatten()
		for k := range b.Content {
			if f, ok := flat.Get(k); ok && !f.Translatable() {
				delete(b.Content, k)
			}
		}
	}
}
