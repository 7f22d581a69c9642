// Package collect walks content documents against their field schema and
// extracts translation units.
//
// Collect produces an ordered list of units, each paired with the slot it
// was read from, plus finalizers that re-serialize containers (tables,
// serialized structures and blocks) once every unit has been written back.
// FilterSyncable applies the same field policy to project a document onto
// the fields that may be copied across languages.
package collect

import (
	"strings"

	"github.com/minios-linux/contentkit/schema"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Units
// ---------------------------------------------------------------------------

// Mode is the dispatch class of a unit.
type Mode int

const (
	// ModeBatch units are sent together in one request.
	ModeBatch Mode = iota
	// ModeKirbytext units carry markup with inline tags and are sent one
	// request per unit.
	ModeKirbytext
	// ModeSingle units are plain strings sent one request per unit.
	ModeSingle
)

func (m Mode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeKirbytext:
		return "kirbytext"
	case ModeSingle:
		return "single"
	}
	return "unknown"
}

// Unit is one piece of text targeted for translation.
type Unit struct {
	Text string
	Mode Mode
	// FieldKey names the field the text came from (diagnostics, hooks).
	FieldKey string
	// FieldType is the kind of that field.
	FieldType schema.Kind
}

// Translation pairs a unit with the slot its result is written to.
type Translation struct {
	Unit Unit
	Slot Slot
}

// Apply writes a translated text into the unit's slot.
func (t Translation) Apply(text string) {
	t.Slot.Set(text)
}

// Finalizer is a post-processing step run after all translations of a
// document have been applied.
type Finalizer func() error

// Result is the outcome of one traversal.
type Result struct {
	Translations []Translation
	Finalizers   []Finalizer
}

// Units returns the collected units in collection order.
func (r *Result) Units() []Unit {
	units := make([]Unit, len(r.Translations))
	for i, t := range r.Translations {
		units[i] = t.Unit
	}
	return units
}

// Len returns the number of collected units.
func (r *Result) Len() int {
	return len(r.Translations)
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

// Slot is the container position a unit was extracted from. Only the slot
// owning a position writes to it.
type Slot interface {
	Set(text string)
}

// mapSlot is a key of a mapping.
type mapSlot struct {
	m   map[string]any
	key string
}

func (s mapSlot) Set(text string) { s.m[s.key] = text }

// sliceSlot is an index of a decoded list.
type sliceSlot struct {
	s []any
	i int
}

func (s sliceSlot) Set(text string) { s.s[s.i] = text }

// stringsSlot is an index of a string slice.
type stringsSlot struct {
	s []string
	i int
}

func (s stringsSlot) Set(text string) { s.s[s.i] = text }

// nodeSlot is a scalar of a parsed YAML table.
type nodeSlot struct {
	node *yaml.Node
}

func (s nodeSlot) Set(text string) { s.node.Value = text }

// tagsShape records how a tags value was stored so it can be written back
// in the same shape.
type tagsShape int

const (
	tagsAnyList tagsShape = iota
	tagsStringList
	tagsCommaString
)

// tagsSlot splits a translated " | "-joined string back into tags.
type tagsSlot struct {
	m     map[string]any
	key   string
	shape tagsShape
}

func (s tagsSlot) Set(text string) {
	parts := strings.Split(text, "|")
	tags := make([]string, len(parts))
	for i, p := range parts {
		tags[i] = strings.TrimSpace(p)
	}

	switch s.shape {
	case tagsStringList:
		s.m[s.key] = tags
	case tagsCommaString:
		s.m[s.key] = strings.Join(tags, ", ")
	default:
		out := make([]any, len(tags))
		for i, t := range tags {
			out[i] = t
		}
		s.m[s.key] = out
	}
}

// tagSeparator joins tags into one unit.
const tagSeparator = " | "
