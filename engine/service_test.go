package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minios-linux/contentkit/config"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/store"
	"github.com/minios-linux/contentkit/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceDocument = `title: Hello
template: article
content:
  title: Hello
  subtitle: World
  slug: hello-world
  blocks:
    - id: "1"
      type: heading
      isHidden: false
      content:
        text: Heading
`

type fixture struct {
	root    string
	docs    *store.FileStore
	backend *recordingBackend
	cache   *store.Cache
	svc     *Service
}

func newFixture(t *testing.T, translateTitle bool) *fixture {
	t.Helper()
	root := t.TempDir()
	contentDir := filepath.Join(root, "content")
	blueprintDir := filepath.Join(root, "blueprints")
	require.NoError(t, os.MkdirAll(filepath.Join(contentDir, "blog", "hello"), 0755))
	require.NoError(t, os.MkdirAll(blueprintDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "blog", "hello", "en.yml"), []byte(sourceDocument), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(blueprintDir, "article.yml"), []byte(testBlueprint), 0644))

	f := &fixture{
		root:    root,
		docs:    store.NewFileStore(contentDir, "en"),
		backend: &recordingBackend{},
		cache:   store.NewCache(),
	}
	f.svc = NewService(f.docs, schema.NewDirResolver(blueprintDir), f.cache,
		strategy.NewBulk(f.backend, strategy.BulkConfig{}),
		ServiceConfig{SourceLanguage: "en", FieldTypes: schema.AllKinds(), TranslateTitle: translateTitle})
	return f
}

func TestServiceTranslateDocument(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.svc.TranslateDocument(ctx, "blog/hello", "de"))

	got, err := f.docs.Get(ctx, "blog/hello", "de")
	require.NoError(t, err)
	assert.Equal(t, "Hallo", got.Title)
	assert.Equal(t, "article", got.Template)
	assert.Equal(t, "Hallo", got.Content["title"])
	assert.Equal(t, "Welt", got.Content["subtitle"])
	assert.Equal(t, "hello-world", got.Content["slug"])
	block := got.Content["blocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "Überschrift", block["content"].(map[string]any)["text"])

	src, err := f.docs.Get(ctx, "blog/hello", "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello", src.Content["title"], "source file is untouched")

	assert.Equal(t, [][]string{{"Hello", "World", "Heading"}}, f.backend.batches)
	assert.Equal(t, []string{"Hello"}, f.backend.singles, "title goes out as its own request")
}

func TestServiceTranslateDocumentWithoutTitle(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.svc.TranslateDocument(context.Background(), "blog/hello", "de"))
	got, err := f.docs.Get(context.Background(), "blog/hello", "de")
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	assert.Empty(t, f.backend.singles)
}

func TestServiceTranslateDocumentErrors(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.TranslateDocument(ctx, "blog/missing", "de"), store.ErrNotFound)
	assert.ErrorContains(t, f.svc.TranslateDocument(ctx, "blog/hello", "en"), "is the source language")

	f.backend.err = errors.New("quota exceeded")
	assert.ErrorContains(t, f.svc.TranslateDocument(ctx, "blog/hello", "de"), "quota exceeded")
	assert.False(t, f.docs.Exists("blog/hello", "de"), "nothing is written on failure")
}

func TestServiceSyncDocument(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	writeTarget(t, f, "fr", "content:\n  slug: bonjour-monde\n  subtitle: Monde\n")

	require.NoError(t, f.svc.SyncDocument(ctx, "blog/hello", "fr"))

	got, err := f.docs.Get(ctx, "blog/hello", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Content["title"])
	assert.Equal(t, "World", got.Content["subtitle"])
	assert.Equal(t, "bonjour-monde", got.Content["slug"], "opted-out target fields are kept")
	assert.Contains(t, got.Content, "blocks")
	assert.Zero(t, f.backend.calls.Load())
}

// writeTarget writes an existing translation of blog/hello.
func writeTarget(t *testing.T, f *fixture, lang, body string) {
	t.Helper()
	name := filepath.Join(f.root, "content", "blog", "hello", lang+".yml")
	require.NoError(t, os.WriteFile(name, []byte("template: article\n"+body), 0644))
}

func TestServiceTranslateDocumentKeepsTargetOptOutFields(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	writeTarget(t, f, "de", "content:\n  slug: hallo-welt\n  note: lokal\n")

	require.NoError(t, f.svc.TranslateDocument(ctx, "blog/hello", "de"))

	got, err := f.docs.Get(ctx, "blog/hello", "de")
	require.NoError(t, err)
	assert.Equal(t, "Hallo", got.Content["title"])
	assert.Equal(t, "Welt", got.Content["subtitle"])
	assert.Equal(t, "hallo-welt", got.Content["slug"])
	assert.Equal(t, "lokal", got.Content["note"])
}

func TestServiceTranslateLanguagesUsesCache(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.svc.TranslateLanguages(ctx, "blog/hello", []string{"de", "fr", "es"}))
	for _, lang := range []string{"de", "fr", "es"} {
		assert.True(t, f.docs.Exists("blog/hello", lang), lang)
	}
	hits, misses := f.cache.Stats()
	assert.Equal(t, 3, hits+misses, "one source read per language")
}

func TestServiceTranslateLanguagesReportsFailures(t *testing.T) {
	f := newFixture(t, false)
	f.backend.failLang = "xx"
	err := f.svc.TranslateLanguages(context.Background(), "blog/hello", []string{"de", "xx"})

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []string{"xx"}, batch.Languages())
	assert.True(t, f.docs.Exists("blog/hello", "de"))
}

func TestNewServiceConfig(t *testing.T) {
	f, err := config.Parse([]byte("languages: [de]\nexclude_fields: [slug]\ntranslate_title: false\n"))
	require.NoError(t, err)
	cfg := NewServiceConfig(f, nil)
	assert.Equal(t, "en", cfg.SourceLanguage)
	assert.False(t, cfg.TranslateTitle)
	assert.Equal(t, []string{"slug"}, cfg.ExcludeFields)
	assert.Equal(t, config.DefaultLanguageWorkers, cfg.LanguageConcurrency)
	assert.Equal(t, schema.AllKinds(), cfg.FieldTypes)
}

func TestNewStrategy(t *testing.T) {
	deeplFile, err := config.Parse([]byte("languages: [de]\n"))
	require.NoError(t, err)

	_, err = NewStrategy(StrategyConfig{File: deeplFile})
	assert.ErrorContains(t, err, "requires an API key")

	s, err := NewStrategy(StrategyConfig{File: deeplFile, APIKey: "k:fx"})
	require.NoError(t, err)
	assert.IsType(t, &strategy.Bulk{}, s)

	llmFile, err := config.Parse([]byte("languages: [de]\nprovider: ollama\nmodel: llama3\n"))
	require.NoError(t, err)
	s, err = NewStrategy(StrategyConfig{File: llmFile})
	require.NoError(t, err)
	assert.IsType(t, &strategy.Generative{}, s)

	googleFile, err := config.Parse([]byte("languages: [de]\nprovider: google\n"))
	require.NoError(t, err)
	_, err = NewStrategy(StrategyConfig{File: googleFile})
	assert.ErrorContains(t, err, "requires an API key")

	_, err = NewStrategy(StrategyConfig{})
	assert.ErrorContains(t, err, "no project configuration")
}

func TestServiceSkipsBlankTitle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	blank := " "
	require.NoError(t, f.docs.Patch(ctx, "blog/hello", "en", store.Patch{Title: &blank}))

	require.NoError(t, f.svc.TranslateDocument(ctx, "blog/hello", "de"))
	assert.Empty(t, f.backend.singles)
}
