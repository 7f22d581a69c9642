package strategy

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minios-linux/contentkit/collect"
	"github.com/minios-linux/contentkit/langmeta"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Generative defaults.
const (
	DefaultChunkUnits            = 40
	DefaultChunkChars            = 8000
	DefaultGenerativeConcurrency = 2
)

//go:embed translations.schema.json
var translationsSchemaJSON string

const translationsSchemaName = "translations"

// GenerativeConfig tunes a Generative strategy.
type GenerativeConfig struct {
	// MaxUnits and MaxChars bound a chunk by unit count and by the summed
	// length of its texts.
	MaxUnits int
	MaxChars int
	// Concurrency is the number of chunks in flight.
	Concurrency int
	// Instructions are appended to the system prompt.
	Instructions string
	Hooks        Hooks
	Logger       *zerolog.Logger
}

func (c GenerativeConfig) effectiveMaxUnits() int {
	if c.MaxUnits > 0 {
		return c.MaxUnits
	}
	return DefaultChunkUnits
}

func (c GenerativeConfig) effectiveMaxChars() int {
	if c.MaxChars > 0 {
		return c.MaxChars
	}
	return DefaultChunkChars
}

func (c GenerativeConfig) effectiveConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultGenerativeConcurrency
}

// Generative translates units with a generative model.
type Generative struct {
	gen Generator
	cfg GenerativeConfig
	log *zerolog.Logger
}

// NewGenerative returns a generative strategy over gen.
func NewGenerative(gen Generator, cfg GenerativeConfig) *Generative {
	log := cfg.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Generative{gen: gen, cfg: cfg, log: log}
}

// chunk is a run of consecutive unit positions.
type chunk struct {
	n       int
	indices []int
}

// splitUnits groups unit positions into chunks of at most maxUnits units
// and maxChars characters. A unit longer than maxChars gets a chunk of its
// own.
func splitUnits(units []collect.Unit, maxUnits, maxChars int) []chunk {
	var (
		chunks []chunk
		cur    []int
		chars  int
	)
	for i, u := range units {
		size := len([]rune(u.Text))
		if len(cur) > 0 && (len(cur) >= maxUnits || chars+size > maxChars) {
			chunks = append(chunks, chunk{n: len(chunks), indices: cur})
			cur, chars = nil, 0
		}
		cur = append(cur, i)
		chars += size
	}
	if len(cur) > 0 {
		chunks = append(chunks, chunk{n: len(chunks), indices: cur})
	}
	return chunks
}

// Execute translates units chunk by chunk. A chunk whose request or
// response fails keeps the source texts of its units.
func (g *Generative) Execute(ctx context.Context, units []collect.Unit, opts Options) ([]string, error) {
	results := make([]string, len(units))
	for i, u := range units {
		results[i] = u.Text
	}
	if len(units) == 0 {
		return results, nil
	}

	if err := langmeta.Validate(opts.TargetLanguage); err != nil {
		return nil, err
	}
	if opts.SourceLanguage != "" {
		if err := langmeta.Validate(opts.SourceLanguage); err != nil {
			return nil, err
		}
	}
	validator, err := loadSchema()
	if err != nil {
		return nil, err
	}

	chunks := splitUnits(units, g.cfg.effectiveMaxUnits(), g.cfg.effectiveMaxChars())
	system := g.systemPrompt(opts)

	ForEach(ctx, chunks, g.cfg.effectiveConcurrency(), func(ctx context.Context, c chunk) {
		out, err := g.translateChunk(ctx, validator, system, units, c, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.log.Warn().Err(err).
				Int("chunk", c.n+1).
				Int("chunks", len(chunks)).
				Int("units", len(c.indices)).
				Msg("generative chunk failed, keeping source texts")
			return
		}
		for k, i := range c.indices {
			if text, ok := out[k]; ok {
				results[i] = text
			}
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type promptText struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type translationsResponse struct {
	Translations []promptText `json:"translations"`
}

// translateChunk returns the translated texts of one chunk keyed by their
// position in the chunk.
func (g *Generative) translateChunk(ctx context.Context, validator *jsonschema.Schema, system string, units []collect.Unit, c chunk, opts Options) (map[int]string, error) {
	items := make([]promptText, len(c.indices))
	for k, i := range c.indices {
		u := units[i]
		items[k] = promptText{Index: k, Text: g.cfg.Hooks.ApplyBefore(u.Text, opts.Context(u.FieldType))}
	}
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding prompt: %w", err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Translate the \"text\" of each of these %d items:\n\n", len(items))
	prompt.Write(payload)
	prompt.WriteString("\n\nReturn every item with its index and translated text.")

	raw, err := g.gen.Generate(ctx, GenerateRequest{
		System:     system,
		Prompt:     prompt.String(),
		SchemaName: translationsSchemaName,
		Schema:     json.RawMessage(translationsSchemaJSON),
	})
	if err != nil {
		return nil, err
	}

	resp, err := decodeTranslations(validator, raw)
	if err != nil {
		return nil, err
	}

	out := make(map[int]string, len(resp.Translations))
	for _, t := range resp.Translations {
		if t.Index < 0 || t.Index >= len(c.indices) {
			continue
		}
		u := units[c.indices[t.Index]]
		out[t.Index] = g.cfg.Hooks.ApplyAfter(t.Text, opts.Context(u.FieldType))
	}
	if missing := len(c.indices) - len(out); missing > 0 {
		g.log.Warn().Int("chunk", c.n+1).Int("missing", missing).Msg("generative response is incomplete, keeping source texts")
	}
	return out, nil
}

func (g *Generative) systemPrompt(opts Options) string {
	source := "the source language"
	if opts.SourceLanguage != "" {
		source = fmt.Sprintf("%s (%s)", langmeta.Resolve(opts.SourceLanguage).Name, langmeta.Canonical(opts.SourceLanguage))
	}
	target := fmt.Sprintf("%s (%s)", langmeta.Resolve(opts.TargetLanguage).Name, langmeta.Canonical(opts.TargetLanguage))

	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional translator of website content. Translate every text from %s into %s.\n\n", source, target)
	b.WriteString("Rules:\n")
	b.WriteString("- Keep HTML elements, Markdown syntax, line breaks and placeholders exactly as they are.\n")
	b.WriteString("- Keep inline tags written as (name: value attribute: value) verbatim, including their parentheses.\n")
	b.WriteString("- Keep anything inside <kt>...</kt> unchanged.\n")
	b.WriteString("- Texts joined with \" | \" are lists: translate each part and keep the separators.\n")
	b.WriteString("- Never merge, split or reorder items.\n")
	if len(opts.KirbyTags) > 0 {
		b.WriteString("\nInside inline tags, translate only these values and keep everything else verbatim:\n")
		b.WriteString(opts.KirbyTags.Describe())
	}
	if s := strings.TrimSpace(g.cfg.Instructions); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Response validation
// ---------------------------------------------------------------------------

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("translations.schema.json", strings.NewReader(translationsSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("translations.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})
	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	return compiledSchema, nil
}

func decodeTranslations(validator *jsonschema.Schema, raw json.RawMessage) (*translationsResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("response contains trailing content")
	}
	if err := validator.Validate(value); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}

	var resp translationsResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}
