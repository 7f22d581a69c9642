// Package strategy dispatches collected translation units to a translation
// backend and maps the results back to unit positions.
//
// Two strategies are provided. Bulk sends batch units in one request and
// every other unit in its own request; any failure fails the whole call.
// Generative chunks all units into structured-output prompts; a failing
// chunk keeps its source texts and the call continues.
package strategy

import (
	"context"
	"encoding/json"

	"github.com/minios-linux/contentkit/collect"
	"github.com/minios-linux/contentkit/kirbytags"
	"github.com/minios-linux/contentkit/schema"
)

// Options are the per-call language settings.
type Options struct {
	// SourceLanguage may be empty to let the backend detect it.
	SourceLanguage string
	TargetLanguage string
	// KirbyTags selects tag attributes that are translated instead of
	// protected.
	KirbyTags kirbytags.Config
}

// Strategy translates units. The result is positionally aligned with units.
type Strategy interface {
	Execute(ctx context.Context, units []collect.Unit, opts Options) ([]string, error)
}

// Text is one text handed to a backend.
type Text struct {
	Value     string
	FieldType schema.Kind
}

// Backend is the bulk translation service used by Bulk.
type Backend interface {
	// TranslateBatch translates texts in one remote call. The result must
	// have the same length and order as texts.
	TranslateBatch(ctx context.Context, texts []Text, opts Options) ([]string, error)
	// TranslateKirbytext translates markup containing inline tags.
	TranslateKirbytext(ctx context.Context, text Text, opts Options) (string, error)
	// TranslateText translates one plain string.
	TranslateText(ctx context.Context, text Text, opts Options) (string, error)
}

// GenerateRequest is one structured-output prompt.
type GenerateRequest struct {
	System string
	Prompt string
	// SchemaName and Schema describe the expected JSON response.
	SchemaName string
	Schema     json.RawMessage
}

// Generator is the generative model used by Generative. It returns the raw
// JSON object produced by the model.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error)
}

// HookContext describes the text a hook is invoked for.
type HookContext struct {
	TargetLanguage string
	SourceLanguage string
	FieldType      schema.Kind
}

// Hooks are optional per-text transforms run around each translation.
type Hooks struct {
	Before func(text string, hc HookContext) string
	After  func(text string, hc HookContext) string
}

// ApplyBefore runs the Before hook, if any.
func (h Hooks) ApplyBefore(text string, hc HookContext) string {
	if h.Before == nil {
		return text
	}
	return h.Before(text, hc)
}

// ApplyAfter runs the After hook, if any.
func (h Hooks) ApplyAfter(text string, hc HookContext) string {
	if h.After == nil {
		return text
	}
	return h.After(text, hc)
}

// Context builds the hook context of a text under opts.
func (o Options) Context(kind schema.Kind) HookContext {
	return HookContext{
		TargetLanguage: o.TargetLanguage,
		SourceLanguage: o.SourceLanguage,
		FieldType:      kind,
	}
}
