// Package schema describes the field definitions a content document is
// traversed against.
//
// A document's schema is a map of field keys to definitions. Definitions of
// object and structure fields carry nested field maps; definitions of block
// based fields (blocks, layout) carry typed fieldsets whose tabs each hold a
// field map:
//
//	title:    {type: text}
//	gallery:  {type: structure, fields: {caption: {type: text}}}
//	body:
//	  type: blocks
//	  fieldsets:
//	    heading: {fields: {text: {type: text}}}
//
// Definitions are immutable for the duration of one traversal.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Field kinds
// ---------------------------------------------------------------------------

// Kind is the closed set of field shapes the collector knows how to handle.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindWriter
	KindList
	KindTextarea
	KindMarkdown
	KindTags
	KindTable
	KindStructure
	KindObject
	KindLayout
	KindBlocks
)

var kindNames = map[Kind]string{
	KindText:      "text",
	KindWriter:    "writer",
	KindList:      "list",
	KindTextarea:  "textarea",
	KindMarkdown:  "markdown",
	KindTags:      "tags",
	KindTable:     "table",
	KindStructure: "structure",
	KindObject:    "object",
	KindLayout:    "layout",
	KindBlocks:    "blocks",
}

// ParseKind maps a field type name to its Kind. Unrecognized names yield
// KindUnknown; such fields are passed through untouched.
func ParseKind(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// KindSet is an allow-list of field kinds.
type KindSet map[Kind]struct{}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// AllKinds returns a set containing every known kind.
func AllKinds() KindSet {
	return NewKindSet(Kinds()...)
}

// ParseKindSet parses type names into a set. Unknown names are an error so
// that a typo in configuration does not silently disable a field type.
func ParseKindSet(names []string) (KindSet, error) {
	s := make(KindSet, len(names))
	for _, name := range names {
		k := ParseKind(name)
		if k == KindUnknown {
			return nil, fmt.Errorf("unknown field type %q", name)
		}
		s[k] = struct{}{}
	}
	return s, nil
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// ---------------------------------------------------------------------------
// Field definitions
// ---------------------------------------------------------------------------

// Field is a single field definition. The zero value of NoTranslate keeps a
// field translatable.
type Field struct {
	// Type is the field shape.
	Type Kind
	// NoTranslate is set when the field declares translate: false.
	NoTranslate bool
	// Fields is the nested schema of object and structure fields.
	Fields Fields
	// Fieldsets maps block types to their schema (blocks and layout fields).
	Fieldsets map[string]Fieldset
}

// Translatable reports whether the field takes part in translation.
func (f Field) Translatable() bool {
	return !f.NoTranslate
}

// Fieldset returns the fieldset registered for a block type.
func (f Field) Fieldset(blockType string) (Fieldset, bool) {
	if f.Fieldsets == nil {
		return Fieldset{}, false
	}
	fs, ok := f.Fieldsets[blockType]
	return fs, ok
}

// Entry is one keyed definition, used to build Fields.
type Entry struct {
	Key   string
	Field Field
}

// Fields is an ordered mapping of field keys to definitions. Traversal
// follows declaration order, which makes the order of collected units
// deterministic.
type Fields struct {
	keys []string
	defs map[string]Field
}

// NewFields builds a field map from entries in order.
func NewFields(entries ...Entry) Fields {
	var fs Fields
	for _, e := range entries {
		fs.Set(e.Key, e.Field)
	}
	return fs
}

// Set adds or replaces a definition. A replaced key keeps its position.
func (fs *Fields) Set(key string, f Field) {
	if fs.defs == nil {
		fs.defs = make(map[string]Field)
	}
	if _, exists := fs.defs[key]; !exists {
		fs.keys = append(fs.keys, key)
	}
	fs.defs[key] = f
}

// Get returns the definition for key.
func (fs Fields) Get(key string) (Field, bool) {
	f, ok := fs.defs[key]
	return f, ok
}

// Keys returns the field keys in declaration order.
func (fs Fields) Keys() []string {
	return fs.keys
}

// Len returns the number of definitions.
func (fs Fields) Len() int {
	return len(fs.keys)
}

// Fieldset is the typed schema of one block variant.
type Fieldset struct {
	Name string
	// Tabs are kept in declaration order; see Flatten.
	Tabs []Tab
}

// Tab groups the fields of a fieldset.
type Tab struct {
	Name   string
	Fields Fields
}

// Flatten merges all tab field maps into one. Later tabs override earlier
// tabs on identical keys.
func (fs Fieldset) Flatten() Fields {
	var out Fields
	for _, tab := range fs.Tabs {
		for _, key := range tab.Fields.Keys() {
			def, _ := tab.Fields.Get(key)
			out.Set(key, def)
		}
	}
	return out
}
