// Package engine translates content documents: it collects the
// translatable texts of a document, hands them to a strategy in one call
// and writes the results back.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/minios-linux/contentkit/collect"
	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/kirbytags"
	"github.com/minios-linux/contentkit/logging"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/strategy"
	"github.com/rs/zerolog"
)

// DefaultLanguageConcurrency is the number of languages TranslateAll
// translates at once.
const DefaultLanguageConcurrency = 3

// Options configures a translation.
type Options struct {
	Strategy strategy.Strategy
	// SourceLanguage may be empty to let the backend detect it.
	SourceLanguage string
	TargetLanguage string

	// Fields is the schema of the document's top level.
	Fields schema.Fields
	// FieldTypes is the allow-list of field kinds (nil means all kinds).
	FieldTypes    schema.KindSet
	IncludeFields []string
	ExcludeFields []string
	KirbyTags     kirbytags.Config

	// LanguageConcurrency bounds TranslateAll.
	LanguageConcurrency int
	Logger              *zerolog.Logger
}

func (o Options) collectOptions() collect.Options {
	types := o.FieldTypes
	if types == nil {
		types = schema.AllKinds()
	}
	return collect.Options{
		Fields:        o.Fields,
		FieldTypes:    types,
		IncludeFields: o.IncludeFields,
		ExcludeFields: o.ExcludeFields,
		Logger:        o.Logger,
	}
}

func (o Options) strategyOptions() strategy.Options {
	return strategy.Options{
		SourceLanguage: o.SourceLanguage,
		TargetLanguage: o.TargetLanguage,
		KirbyTags:      o.KirbyTags,
	}
}

func (o Options) effectiveLanguageConcurrency() int {
	if o.LanguageConcurrency > 0 {
		return o.LanguageConcurrency
	}
	return DefaultLanguageConcurrency
}

// TranslateContent translates doc in place and returns it.
//
// All units of the document go to the strategy in a single Execute call.
// Results are applied only after the call succeeded, so on a strategy
// error doc is left as it was. A document without translatable text is
// returned without calling the strategy.
func TranslateContent(ctx context.Context, doc content.Document, opts Options) (content.Document, error) {
	if opts.Strategy == nil {
		return nil, errors.New("no translation strategy configured")
	}
	if opts.TargetLanguage == "" {
		return nil, errors.New("no target language")
	}
	log := logging.OrNop(opts.Logger)

	res := collect.Collect(doc, opts.collectOptions())
	if res.Len() == 0 {
		log.Debug().Str("lang", opts.TargetLanguage).Msg("nothing to translate")
		return doc, nil
	}

	units := res.Units()
	log.Debug().Str("lang", opts.TargetLanguage).Int("units", len(units)).Msg("translating content")

	texts, err := opts.Strategy.Execute(ctx, units, opts.strategyOptions())
	if err != nil {
		return nil, fmt.Errorf("translating into %s: %w", opts.TargetLanguage, err)
	}
	if len(texts) != len(units) {
		return nil, fmt.Errorf("translating into %s: strategy returned %d texts for %d units",
			opts.TargetLanguage, len(texts), len(units))
	}

	for i, t := range res.Translations {
		t.Apply(texts[i])
	}
	for i, finalize := range res.Finalizers {
		if err := finalize(); err != nil {
			return nil, fmt.Errorf("finalizing translated content (step %d): %w", i+1, err)
		}
	}
	return doc, nil
}

// SyncContent returns the part of doc that is copied verbatim into other
// languages: translatable fields selected by opts, with opted-out block
// fields removed. doc is not modified.
func SyncContent(doc content.Document, opts Options) content.Document {
	return collect.FilterSyncable(doc, opts.collectOptions())
}
