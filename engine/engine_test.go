package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minios-linux/contentkit/collect"
	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/strategy"
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
  blocks:
    type: blocks
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

var german = map[string]string{
	"Hello":   "Hallo",
	"World":   "Welt",
	"Heading": "Überschrift",
	"Hi":      "Servus",
}

// recordingBackend answers from german and records batch calls.
type recordingBackend struct {
	mu      sync.Mutex
	batches [][]string
	singles []string
	calls   atomic.Int32
	err     error
	// failLang fails every request into this language.
	failLang string
}

func (b *recordingBackend) fail(opts strategy.Options) error {
	if b.err != nil {
		return b.err
	}
	if b.failLang != "" && opts.TargetLanguage == b.failLang {
		return errors.New("unsupported target " + b.failLang)
	}
	return nil
}

func (b *recordingBackend) lookup(s string) string {
	if t, ok := german[s]; ok {
		return t
	}
	return s
}

func (b *recordingBackend) TranslateBatch(_ context.Context, texts []strategy.Text, opts strategy.Options) ([]string, error) {
	b.calls.Add(1)
	if err := b.fail(opts); err != nil {
		return nil, err
	}
	in := make([]string, len(texts))
	out := make([]string, len(texts))
	for i, t := range texts {
		in[i] = t.Value
		out[i] = b.lookup(t.Value)
	}
	b.mu.Lock()
	b.batches = append(b.batches, in)
	b.mu.Unlock()
	return out, nil
}

func (b *recordingBackend) TranslateKirbytext(ctx context.Context, text strategy.Text, opts strategy.Options) (string, error) {
	return b.TranslateText(ctx, text, opts)
}

func (b *recordingBackend) TranslateText(_ context.Context, text strategy.Text, opts strategy.Options) (string, error) {
	b.calls.Add(1)
	if err := b.fail(opts); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.singles = append(b.singles, text.Value)
	b.mu.Unlock()
	return b.lookup(text.Value), nil
}

func bulkOptions(t *testing.T, backend strategy.Backend) Options {
	return Options{
		Strategy:       strategy.NewBulk(backend, strategy.BulkConfig{}),
		SourceLanguage: "en",
		TargetLanguage: "de",
		Fields:         testFields(t),
		FieldTypes:     schema.AllKinds(),
	}
}

func TestTranslateContentFlat(t *testing.T) {
	backend := &recordingBackend{}
	doc := content.Document{"title": "Hello", "subtitle": "World"}

	got, err := TranslateContent(context.Background(), doc, bulkOptions(t, backend))
	require.NoError(t, err)
	assert.Equal(t, content.Document{"title": "Hallo", "subtitle": "Welt"}, got)
	assert.Equal(t, [][]string{{"Hello", "World"}}, backend.batches)
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestTranslateContentNestedBlock(t *testing.T) {
	backend := &recordingBackend{}
	doc := content.Document{"blocks": []any{
		map[string]any{"id": "1", "type": "heading", "isHidden": false, "content": map[string]any{"text": "Heading"}},
	}}

	got, err := TranslateContent(context.Background(), doc, bulkOptions(t, backend))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Heading"}}, backend.batches)
	block := got["blocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "Überschrift", block["content"].(map[string]any)["text"])
}

func TestTranslateContentSerializedBlocks(t *testing.T) {
	backend := &recordingBackend{}
	doc := content.Document{
		"blocks": `[{"id":"1","type":"heading","isHidden":false,"content":{"text":"Heading"}}]`,
	}

	got, err := TranslateContent(context.Background(), doc, bulkOptions(t, backend))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","type":"heading","isHidden":false,"content":{"text":"Überschrift"}}]`, got["blocks"].(string))
}

func TestTranslateContentWithoutTextMakesNoCalls(t *testing.T) {
	backend := &recordingBackend{}
	doc := content.Document{
		"title":    "   ",
		"subtitle": "https://example.com",
		"text":     "42",
		"slug":     "hello",
		"tags":     []any{},
		"unknown":  "Hello",
		"blocks": []any{
			map[string]any{"id": "1", "type": "heading", "isHidden": true, "content": map[string]any{"text": "Heading"}},
		},
	}
	before := content.Clone(doc)

	got, err := TranslateContent(context.Background(), doc, bulkOptions(t, backend))
	require.NoError(t, err)
	assert.Equal(t, before, got)
	assert.Zero(t, backend.calls.Load())
}

func TestTranslateContentFailureLeavesDocument(t *testing.T) {
	backend := &recordingBackend{err: errors.New("quota exceeded")}
	doc := content.Document{"title": "Hello", "text": "World"}
	before := content.Clone(doc)

	_, err := TranslateContent(context.Background(), doc, bulkOptions(t, backend))
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, before, doc)
}

type strategyFunc func(ctx context.Context, units []collect.Unit, opts strategy.Options) ([]string, error)

func (f strategyFunc) Execute(ctx context.Context, units []collect.Unit, opts strategy.Options) ([]string, error) {
	return f(ctx, units, opts)
}

func TestTranslateContentRejectsMisalignedResult(t *testing.T) {
	opts := bulkOptions(t, nil)
	opts.Strategy = strategyFunc(func(context.Context, []collect.Unit, strategy.Options) ([]string, error) {
		return []string{"only one"}, nil
	})
	doc := content.Document{"title": "Hello", "subtitle": "World"}

	_, err := TranslateContent(context.Background(), doc, opts)
	assert.ErrorContains(t, err, "returned 1 texts for 2 units")
	assert.Equal(t, "Hello", doc["title"])
}

func TestTranslateContentSingleExecuteAcrossFields(t *testing.T) {
	var calls int
	var seen strategy.Options
	opts := bulkOptions(t, nil)
	opts.Strategy = strategyFunc(func(_ context.Context, units []collect.Unit, o strategy.Options) ([]string, error) {
		calls++
		seen = o
		out := make([]string, len(units))
		for i, u := range units {
			out[i] = strings.ToUpper(u.Text)
		}
		return out, nil
	})
	doc := content.Document{"title": "a", "text": "b", "tags": "c, d"}

	got, err := TranslateContent(context.Background(), doc, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "de", seen.TargetLanguage)
	assert.Equal(t, "en", seen.SourceLanguage)
	assert.Equal(t, "A", got["title"])
	assert.Equal(t, "B", got["text"])
	assert.Equal(t, "C, D", got["tags"])
}

func TestTranslateContentValidatesOptions(t *testing.T) {
	_, err := TranslateContent(context.Background(), content.Document{}, Options{TargetLanguage: "de"})
	assert.ErrorContains(t, err, "no translation strategy")

	_, err = TranslateContent(context.Background(), content.Document{}, Options{Strategy: strategy.NewBulk(&recordingBackend{}, strategy.BulkConfig{})})
	assert.ErrorContains(t, err, "no target language")
}

func TestTranslateContentDefaultsToAllKinds(t *testing.T) {
	backend := &recordingBackend{}
	opts := bulkOptions(t, backend)
	opts.FieldTypes = nil

	got, err := TranslateContent(context.Background(), content.Document{"title": "Hello"}, opts)
	require.NoError(t, err)
	assert.Equal(t, "Hallo", got["title"])
}

func TestSyncContent(t *testing.T) {
	doc := content.Document{"title": "Hello", "slug": "hello", "extra": "x"}
	got := SyncContent(doc, Options{Fields: testFields(t)})
	assert.Equal(t, content.Document{"title": "Hello"}, got)
	assert.Equal(t, "hello", doc["slug"])
}

// ---------------------------------------------------------------------------
// TranslateAll
// ---------------------------------------------------------------------------

func TestTranslateAll(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	opts := bulkOptions(t, nil)
	opts.LanguageConcurrency = 2
	opts.Strategy = strategyFunc(func(_ context.Context, units []collect.Unit, o strategy.Options) ([]string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if o.TargetLanguage == "fr" {
			return nil, errors.New("backend down")
		}
		out := make([]string, len(units))
		for i, u := range units {
			out[i] = o.TargetLanguage + ":" + u.Text
		}
		return out, nil
	})
	doc := content.Document{"title": "Hello"}

	got, err := TranslateAll(context.Background(), doc, []string{"de", "fr", "es", "it"}, opts)

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []string{"fr"}, batch.Languages())
	assert.NotEmpty(t, batch.RunID)
	assert.EqualError(t, err, "1 language(s) failed: fr")
	assert.ErrorContains(t, batch.Failed["fr"], "backend down")

	assert.Len(t, got, 3)
	assert.Equal(t, "de:Hello", got["de"]["title"])
	assert.Equal(t, "it:Hello", got["it"]["title"])
	assert.Equal(t, "Hello", doc["title"], "source document is not modified")
	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestTranslateAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := bulkOptions(t, &recordingBackend{})

	_, err := TranslateAll(ctx, content.Document{"title": "Hello"}, []string{"de", "fr"}, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchErrorUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := &BatchError{Failed: map[string]error{"de": sentinel, "fr": errors.New("other")}}
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "2 language(s) failed: de, fr", err.Error())
}
