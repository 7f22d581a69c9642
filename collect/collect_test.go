package collect

import (
	"encoding/json"
	"testing"

	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlueprint = `
fields:
  title: {type: text}
  subtitle: {type: text}
  slug: {type: text, translate: false}
  text: {type: textarea}
  tags: {type: tags}
  table: {type: table}
  price: {type: number}
  items:
    type: structure
    fields:
      title: {type: text}
      code: {type: text, translate: false}
  seo:
    type: object
    fields:
      description: {type: text}
  blocks:
    type: blocks
    fieldsets:
      heading:
        fields:
          text: {type: text}
      card:
        tabs:
          content:
            fields:
              title: {type: text}
              note: {type: text}
          settings:
            fields:
              note: {type: text, translate: false}
  layout:
    type: layout
    fieldsets:
      heading:
        fields:
          text: {type: text}
`

func testFields(t *testing.T) schema.Fields {
	t.Helper()
	bp, err := schema.ParseBlueprint([]byte(testBlueprint))
	require.NoError(t, err)
	return bp.Fields
}

func testOptions(t *testing.T) Options {
	return Options{Fields: testFields(t), FieldTypes: schema.AllKinds()}
}

func texts(r *Result) []string {
	out := make([]string, 0, r.Len())
	for _, u := range r.Units() {
		out = append(out, u.Text)
	}
	return out
}

// applyAll writes fn(text) into every slot and runs the finalizers.
func applyAll(t *testing.T, r *Result, fn func(string) string) {
	t.Helper()
	for _, tr := range r.Translations {
		tr.Apply(fn(tr.Unit.Text))
	}
	for _, f := range r.Finalizers {
		require.NoError(t, f())
	}
}

func TestCollectFlatFieldsInSchemaOrder(t *testing.T) {
	doc := content.Document{"subtitle": "World", "title": "Hello", "extra": "untouched"}

	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Hello", "World"}, texts(r))
	for _, u := range r.Units() {
		assert.Equal(t, ModeBatch, u.Mode)
		assert.Equal(t, schema.KindText, u.FieldType)
	}
	assert.Empty(t, r.Finalizers)

	dict := map[string]string{"Hello": "Hallo", "World": "Welt"}
	applyAll(t, r, func(s string) string { return dict[s] })
	assert.Equal(t, content.Document{"title": "Hallo", "subtitle": "Welt", "extra": "untouched"}, doc)
}

func TestCollectSkipsUntranslatableValues(t *testing.T) {
	doc := content.Document{
		"title":    "42",
		"subtitle": "https://example.com",
		"slug":     "my-page",
		"text":     "   ",
		"price":    "10 EUR",
		"unknown":  "Hello",
		"seo":      "not an object",
	}
	r := Collect(doc, testOptions(t))
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Finalizers)
}

func TestCollectModes(t *testing.T) {
	doc := content.Document{"title": "Hi", "text": "Some (link: a.html text: here)"}
	r := Collect(doc, testOptions(t))
	require.Equal(t, 2, r.Len())
	assert.Equal(t, ModeBatch, r.Translations[0].Unit.Mode)
	assert.Equal(t, ModeKirbytext, r.Translations[1].Unit.Mode)
	assert.Equal(t, "text", r.Translations[1].Unit.FieldKey)
}

func TestCollectNestedBlock(t *testing.T) {
	doc := content.Document{
		"blocks": []any{
			map[string]any{"id": "1", "type": "heading", "isHidden": false, "content": map[string]any{"text": "Heading"}},
		},
	}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Heading"}, texts(r))

	applyAll(t, r, func(string) string { return "Überschrift" })
	block := doc["blocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "Überschrift", block["content"].(map[string]any)["text"])
	assert.Equal(t, "1", block["id"])
}

func TestCollectHiddenBlockExcluded(t *testing.T) {
	doc := content.Document{
		"blocks": []any{
			map[string]any{"id": "1", "type": "heading", "isHidden": true, "content": map[string]any{"text": "Hidden"}},
			map[string]any{"id": "2", "type": "heading", "isHidden": false, "content": map[string]any{"text": "Shown"}},
			map[string]any{"type": "heading", "content": map[string]any{"text": "No id"}},
			map[string]any{"id": "4", "type": "video", "content": map[string]any{"text": "No fieldset"}},
		},
	}
	r := Collect(doc, testOptions(t))
	assert.Equal(t, []string{"Shown"}, texts(r))
}

func TestCollectOptOutAtEveryDepth(t *testing.T) {
	doc := content.Document{
		"slug": "top",
		"items": []any{
			map[string]any{"title": "Item", "code": "SKU-1"},
			"not an object",
		},
		"blocks": []any{
			map[string]any{"id": "1", "type": "card", "content": map[string]any{"title": "Card", "note": "internal"}},
		},
	}
	r := Collect(doc, testOptions(t))
	assert.Equal(t, []string{"Item", "Card"}, texts(r))
}

func TestCollectLayout(t *testing.T) {
	doc := content.Document{
		"layout": []any{
			map[string]any{"columns": []any{
				map[string]any{"blocks": []any{
					map[string]any{"id": "a", "type": "heading", "content": map[string]any{"text": "Left"}},
				}},
				map[string]any{"blocks": []any{
					map[string]any{"id": "b", "type": "heading", "content": map[string]any{"text": "Right"}},
				}},
			}},
		},
	}
	r := Collect(doc, testOptions(t))
	assert.Equal(t, []string{"Left", "Right"}, texts(r))
}

func TestCollectObject(t *testing.T) {
	doc := content.Document{"seo": map[string]any{"description": "About us", "keywords": "x"}}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"About us"}, texts(r))
	applyAll(t, r, func(string) string { return "Über uns" })
	assert.Equal(t, "Über uns", doc["seo"].(map[string]any)["description"])
	assert.Equal(t, "x", doc["seo"].(map[string]any)["keywords"])
}

func TestCollectTagsRoundTrip(t *testing.T) {
	doc := content.Document{"tags": []any{"Red", "Green", "Blue"}}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Red | Green | Blue"}, texts(r))

	r.Translations[0].Apply("Rot |Grün|  Blau ")
	assert.Equal(t, []any{"Rot", "Grün", "Blau"}, doc["tags"])
}

func TestCollectTagsKeepShape(t *testing.T) {
	doc := content.Document{"tags": "red, green"}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"red | green"}, texts(r))
	r.Translations[0].Apply("rot | grün")
	assert.Equal(t, "rot, grün", doc["tags"])

	doc = content.Document{"tags": []string{"a", "b"}}
	r = Collect(doc, testOptions(t))
	require.Equal(t, 1, r.Len())
	r.Translations[0].Apply("x | y")
	assert.Equal(t, []string{"x", "y"}, doc["tags"])

	doc = content.Document{"tags": []any{}}
	assert.Zero(t, Collect(doc, testOptions(t)).Len())
}

func TestCollectTableYAMLRoundTrip(t *testing.T) {
	doc := content.Document{"table": "- [Hello, World]\n- [Good, Morning]\n"}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Hello", "World", "Good", "Morning"}, texts(r))
	for _, u := range r.Units() {
		assert.Equal(t, ModeSingle, u.Mode)
	}
	require.Len(t, r.Finalizers, 1)

	dict := map[string]string{"Hello": "Hallo", "World": "Welt", "Good": "Guten", "Morning": "Morgen"}
	applyAll(t, r, func(s string) string { return dict[s] })
	assert.Equal(t, "- [Hallo, Welt]\n- [Guten, Morgen]\n", doc["table"])
}

func TestCollectTableMatrix(t *testing.T) {
	doc := content.Document{"table": []any{[]any{"A", " ", 3}, []string{"B", ""}}}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"A", "B"}, texts(r))
	assert.Empty(t, r.Finalizers)

	applyAll(t, r, func(s string) string { return s + "!" })
	assert.Equal(t, []any{[]any{"A!", " ", 3}, []string{"B!", ""}}, doc["table"])
}

func TestCollectMalformedTableIsSkipped(t *testing.T) {
	doc := content.Document{"table": "- [unclosed\n", "title": "Still here"}
	r := Collect(doc, testOptions(t))
	assert.Equal(t, []string{"Still here"}, texts(r))
	assert.Empty(t, r.Finalizers)
}

func TestCollectSerializedBlocks(t *testing.T) {
	raw := `[{"id":"1","type":"heading","isHidden":false,"content":{"text":"Heading","level":2}}]`
	doc := content.Document{"blocks": raw}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Heading"}, texts(r))
	require.Len(t, r.Finalizers, 1)

	applyAll(t, r, func(string) string { return "Titel" })
	s, ok := doc["blocks"].(string)
	require.True(t, ok, "blocks must stay serialized")

	var blocks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, "Titel", blocks[0]["content"].(map[string]any)["text"])
	assert.EqualValues(t, 2, blocks[0]["content"].(map[string]any)["level"])
}

func TestCollectSerializedValueWithoutUnitsIsLeftAlone(t *testing.T) {
	raw := `[{"id":"1","type":"heading","isHidden":true,"content":{"text":"Heading"}}]`
	doc := content.Document{"blocks": raw, "items": "- title: \"\"\n"}
	r := Collect(doc, testOptions(t))
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Finalizers)
	assert.Equal(t, raw, doc["blocks"])
}

func TestCollectSerializedStructure(t *testing.T) {
	doc := content.Document{"items": "- title: Item\n  code: SKU-1\n"}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Item"}, texts(r))
	applyAll(t, r, func(string) string { return "Artikel" })
	assert.Equal(t, "- title: Artikel\n  code: SKU-1\n", doc["items"])
}

func TestCollectSerializedStructureKeepsLayout(t *testing.T) {
	src := "- title: 'Item'\n  code: SKU-1\n  price: 10\n- title: Other\n  code: SKU-2\n"
	doc := content.Document{"items": src}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Item", "Other"}, texts(r))

	applyAll(t, r, func(s string) string { return s + " DE" })
	assert.Equal(t,
		"- title: 'Item DE'\n  code: SKU-1\n  price: 10\n- title: Other DE\n  code: SKU-2\n",
		doc["items"])
}

func TestCollectSerializedBlocksKeepMemberOrder(t *testing.T) {
	raw := `[{"type":"heading","id":"1","isHidden":false,"content":{"level":2,"text":"Heading <b>x</b>","size":1.50}}]`
	doc := content.Document{"blocks": raw}
	r := Collect(doc, testOptions(t))
	require.Equal(t, []string{"Heading <b>x</b>"}, texts(r))

	applyAll(t, r, func(string) string { return "Titel <b>x</b>" })
	assert.Equal(t,
		`[{"type":"heading","id":"1","isHidden":false,"content":{"level":2,"text":"Titel <b>x</b>","size":1.50}}]`,
		doc["blocks"])
}

func TestCollectBlankSerializedBlocks(t *testing.T) {
	doc := content.Document{"blocks": "  \n"}
	r := Collect(doc, testOptions(t))
	assert.Zero(t, r.Len())
	assert.Equal(t, "  \n", doc["blocks"])
}

func TestCollectIncludeExcludeApplyAtEveryDepth(t *testing.T) {
	doc := content.Document{
		"title":    "Top",
		"subtitle": "Sub",
		"items":    []any{map[string]any{"title": "Nested"}},
	}

	opts := testOptions(t)
	opts.IncludeFields = []string{"title", "items"}
	assert.Equal(t, []string{"Top", "Nested"}, texts(Collect(doc, opts)))

	opts = testOptions(t)
	opts.ExcludeFields = []string{"title"}
	assert.Equal(t, []string{"Sub"}, texts(Collect(doc, opts)))
}

func TestCollectFieldTypesAllowList(t *testing.T) {
	doc := content.Document{
		"title":  "Top",
		"text":   "Body",
		"blocks": []any{map[string]any{"id": "1", "type": "heading", "content": map[string]any{"text": "H"}}},
	}
	opts := testOptions(t)
	opts.FieldTypes = schema.NewKindSet(schema.KindTextarea, schema.KindBlocks)
	assert.Equal(t, []string{"Body"}, texts(Collect(doc, opts)), "text kind is not allowed inside blocks either")

	opts.FieldTypes = schema.NewKindSet(schema.KindText)
	assert.Equal(t, []string{"Top"}, texts(Collect(doc, opts)))
}

func TestCollectDoesNotMutate(t *testing.T) {
	doc := content.Document{"title": "Hello", "tags": []any{"a"}, "table": "- [x]\n"}
	before := content.Clone(doc)
	Collect(doc, testOptions(t))
	assert.Equal(t, before, doc)
}

func TestFilterSyncable(t *testing.T) {
	doc := content.Document{
		"title":   "Hello",
		"slug":    "hello",
		"unknown": "x",
		"price":   "10",
		"blocks": []any{
			map[string]any{"id": "1", "type": "card", "content": map[string]any{"title": "Card", "note": "internal"}},
			map[string]any{"id": "2", "type": "video", "content": map[string]any{"note": "kept"}},
		},
	}
	before := content.Clone(doc)

	out := FilterSyncable(doc, testOptions(t))
	assert.Equal(t, before, doc, "input must not be mutated")

	assert.Equal(t, "Hello", out["title"])
	assert.NotContains(t, out, "price", "kinds outside the allow-list are not synced")
	assert.NotContains(t, out, "slug")
	assert.NotContains(t, out, "unknown")

	blocks := out["blocks"].([]any)
	card := blocks[0].(map[string]any)["content"].(map[string]any)
	assert.Equal(t, map[string]any{"title": "Card"}, card)
	video := blocks[1].(map[string]any)["content"].(map[string]any)
	assert.Equal(t, "kept", video["note"])
}

func TestFilterSyncableTopLevelOnly(t *testing.T) {
	doc := content.Document{
		"items": []any{map[string]any{"title": "Item", "code": "SKU-1"}},
	}
	out := FilterSyncable(doc, testOptions(t))
	assert.Equal(t, doc["items"], out["items"], "structures are copied whole")
}

func TestFilterSyncableSerializedLayout(t *testing.T) {
	fields := schema.NewFields(schema.Entry{Key: "layout", Field: schema.Field{
		Type: schema.KindLayout,
		Fieldsets: map[string]schema.Fieldset{
			"text": {Name: "text", Tabs: []schema.Tab{{Name: "content", Fields: schema.NewFields(
				schema.Entry{Key: "body", Field: schema.Field{Type: schema.KindText}},
				schema.Entry{Key: "anchor", Field: schema.Field{Type: schema.KindText, NoTranslate: true}},
			)}}},
		},
	}})
	raw := `[{"columns":[{"blocks":[{"id":"1","type":"text","content":{"body":"Hi","anchor":"top"}}]}]}]`
	out := FilterSyncable(content.Document{"layout": raw}, Options{Fields: fields, FieldTypes: schema.AllKinds()})

	s, ok := out["layout"].(string)
	require.True(t, ok)
	assert.Equal(t, `[{"columns":[{"blocks":[{"id":"1","type":"text","content":{"body":"Hi"}}]}]}]`, s)

	out = FilterSyncable(content.Document{"layout": "{broken"}, Options{Fields: fields, FieldTypes: schema.AllKinds()})
	assert.NotContains(t, out, "layout")
}
