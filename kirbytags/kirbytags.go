// Package kirbytags finds inline tags of the form (name: value attr: value)
// in markup and shields them from machine translation.
//
// Tags are wrapped in <kt>...</kt> markers before a text is sent to a
// translator and unwrapped afterwards. Tags whose name is listed in a Config
// have the configured attributes translated separately and written back into
// the otherwise verbatim tag.
package kirbytags

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Marker elements wrapped around protected tags.
const (
	OpenMarker  = "<kt>"
	CloseMarker = "</kt>"
	// IgnoreTag is the element name to pass to translators that support
	// XML tag skipping.
	IgnoreTag = "kt"
	// ValueAttr names the main value of a tag in a Config.
	ValueAttr = "value"
)

var (
	tagStart  = regexp.MustCompile(`^\(([a-zA-Z][\w-]*):`)
	attrStart = regexp.MustCompile(`\s([a-zA-Z][\w-]*):(?:\s|$)`)
	protected = regexp.MustCompile(`(?s)<kt>(.*?)</kt>`)
)

// Attr is a named attribute of a tag. Start and End locate the value in the
// tag's raw text.
type Attr struct {
	Name  string
	Value string
	Start int
	End   int
}

// Tag is one parsed inline tag.
type Tag struct {
	Name string
	// Raw is the full tag text including the parentheses.
	Raw string
	// Start and End are byte offsets of Raw in the parsed text.
	Start int
	End   int
	// Value is the main value, stored as the attribute named after the tag.
	Value Attr
	Attrs []Attr
}

// Parse returns the tags of text in order of appearance. Nested parentheses
// inside a tag are allowed; an unbalanced opening parenthesis is ignored.
func Parse(text string) []Tag {
	var tags []Tag
	for i := 0; i < len(text); i++ {
		if text[i] != '(' {
			continue
		}
		m := tagStart.FindStringSubmatch(text[i:])
		if m == nil {
			continue
		}
		end := matchParen(text, i)
		if end < 0 {
			continue
		}
		tags = append(tags, parseTag(text[i:end+1], m[1], i))
		i = end
	}
	return tags
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1.
func matchParen(text string, open int) int {
	depth := 0
	for j := open; j < len(text); j++ {
		switch text[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func parseTag(raw, name string, offset int) Tag {
	t := Tag{Name: strings.ToLower(name), Raw: raw, Start: offset, End: offset + len(raw)}

	bodyStart := len(name) + 2 // "(" + name + ":"
	bodyEnd := len(raw) - 1
	body := raw[bodyStart:bodyEnd]

	bounds := attrStart.FindAllStringSubmatchIndex(body, -1)
	segEnd := len(body)
	if len(bounds) > 0 {
		segEnd = bounds[0][0]
	}
	t.Value = span(raw, t.Name, bodyStart, bodyStart+segEnd)

	for k, b := range bounds {
		valStart := b[3] + 1 // after the colon
		valEnd := len(body)
		if k+1 < len(bounds) {
			valEnd = bounds[k+1][0]
		}
		if valStart > valEnd {
			valStart = valEnd
		}
		t.Attrs = append(t.Attrs, span(raw, strings.ToLower(body[b[2]:b[3]]), bodyStart+valStart, bodyStart+valEnd))
	}
	return t
}

// span builds an attribute over raw[start:end] with surrounding
// whitespace excluded from the value bounds.
func span(raw, name string, start, end int) Attr {
	for start < end && isSpace(raw[start]) {
		start++
	}
	for end > start && isSpace(raw[end-1]) {
		end--
	}
	return Attr{Name: name, Value: raw[start:end], Start: start, End: end}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Config lists, per tag name, the attributes whose values are translated.
// ValueAttr selects the main value.
type Config map[string][]string

// Attributes returns the configured attribute names of a tag.
func (c Config) Attributes(tag string) []string {
	if c == nil {
		return nil
	}
	return c[strings.ToLower(tag)]
}

// Describe renders the configuration as prompt text, one tag per line in
// name order.
func (c Config) Describe() string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- (%s: ...): translate %s\n", name, strings.Join(c[name], ", "))
	}
	return b.String()
}

// Protect wraps every tag of text in markers.
func Protect(text string) string {
	tags := Parse(text)
	if len(tags) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, t := range tags {
		b.WriteString(text[last:t.Start])
		b.WriteString(OpenMarker)
		b.WriteString(t.Raw)
		b.WriteString(CloseMarker)
		last = t.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Unprotect removes markers, keeping their content.
func Unprotect(text string) string {
	return protected.ReplaceAllString(text, "$1")
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// Job carries one text through translation. Text is the protected text to
// send; Pending holds configured attribute values to translate separately.
type Job struct {
	Text    string
	Pending []string

	refs []attrRef
	tags []Tag
}

type attrRef struct {
	tag  int
	attr Attr
}

// Prepare protects the tags of text and extracts the configured attribute
// values of each tag.
func Prepare(text string, cfg Config) *Job {
	j := &Job{Text: Protect(text), tags: Parse(text)}
	for i, t := range j.tags {
		want := cfg.Attributes(t.Name)
		if len(want) == 0 {
			continue
		}
		for _, a := range append([]Attr{t.Value}, t.Attrs...) {
			if a.Value == "" || !contains(want, attrName(t, a)) {
				continue
			}
			j.refs = append(j.refs, attrRef{tag: i, attr: a})
			j.Pending = append(j.Pending, a.Value)
		}
	}
	return j
}

func attrName(t Tag, a Attr) string {
	if a.Start == t.Value.Start && a.Name == t.Name {
		return ValueAttr
	}
	return a.Name
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Finish unwraps the translated text and writes the translated attribute
// values back into their tags. pending must align with j.Pending.
func (j *Job) Finish(translated string, pending []string) (string, error) {
	if len(pending) != len(j.Pending) {
		return "", fmt.Errorf("kirbytags: expected %d attribute translations, got %d", len(j.Pending), len(pending))
	}

	rebuilt := make(map[string]string, len(j.tags))
	for i, t := range j.tags {
		var edits []edit
		for k, ref := range j.refs {
			if ref.tag == i {
				edits = append(edits, edit{start: ref.attr.Start, end: ref.attr.End, text: pending[k]})
			}
		}
		if len(edits) > 0 {
			rebuilt[t.Raw] = applyEdits(t.Raw, edits)
		}
	}

	return protected.ReplaceAllStringFunc(translated, func(m string) string {
		raw := m[len(OpenMarker) : len(m)-len(CloseMarker)]
		if r, ok := rebuilt[raw]; ok {
			return r
		}
		return raw
	}), nil
}

type edit struct {
	start, end int
	text       string
}

// applyEdits replaces non-overlapping byte ranges of s; edits are in
// ascending order.
func applyEdits(s string, edits []edit) string {
	var b strings.Builder
	last := 0
	for _, e := range edits {
		b.WriteString(s[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(s[last:])
	return b.String()
}
