package engine

import (
	"context"
	"fmt"

	"github.com/minios-linux/contentkit/collect"
	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/kirbytags"
	"github.com/minios-linux/contentkit/logging"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/store"
	"github.com/minios-linux/contentkit/strategy"
	"github.com/rs/zerolog"
)

// ServiceConfig holds the settings shared by every document a Service
// handles.
type ServiceConfig struct {
	SourceLanguage string
	FieldTypes     schema.KindSet
	IncludeFields  []string
	ExcludeFields  []string
	KirbyTags      kirbytags.Config
	// TranslateTitle also translates the document title.
	TranslateTitle      bool
	LanguageConcurrency int
	Logger              *zerolog.Logger
}

// Service translates and syncs persisted documents.
type Service struct {
	docs     store.Accessor
	fields   schema.Resolver
	strategy strategy.Strategy
	cfg      ServiceConfig
	log      *zerolog.Logger
}

// NewService returns a service over docs. When cache is non-nil, reads go
// through it and writes invalidate it.
func NewService(docs store.Accessor, fields schema.Resolver, cache *store.Cache, strat strategy.Strategy, cfg ServiceConfig) *Service {
	if cache != nil {
		docs = store.NewCachedAccessor(docs, cache)
	}
	return &Service{
		docs:     docs,
		fields:   fields,
		strategy: strat,
		cfg:      cfg,
		log:      logging.OrNop(cfg.Logger),
	}
}

func (s *Service) options(fields schema.Fields, target string, log *zerolog.Logger) Options {
	return Options{
		Strategy:            s.strategy,
		SourceLanguage:      s.cfg.SourceLanguage,
		TargetLanguage:      target,
		Fields:              fields,
		FieldTypes:          s.cfg.FieldTypes,
		IncludeFields:       s.cfg.IncludeFields,
		ExcludeFields:       s.cfg.ExcludeFields,
		KirbyTags:           s.cfg.KirbyTags,
		LanguageConcurrency: s.cfg.LanguageConcurrency,
		Logger:              log,
	}
}

// source loads the default-language document and its field schema.
func (s *Service) source(ctx context.Context, path string) (*store.Document, schema.Fields, error) {
	doc, err := s.docs.Get(ctx, path, s.cfg.SourceLanguage)
	if err != nil {
		return nil, schema.Fields{}, err
	}
	fields, err := s.fields.Resolve(ctx, doc.Template)
	if err != nil {
		return nil, schema.Fields{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, fields, nil
}

// TranslateDocument translates the default-language version of path into
// target and stores the result.
func (s *Service) TranslateDocument(ctx context.Context, path, target string) error {
	return s.translateDocument(ctx, path, target, s.log)
}

func (s *Service) translateDocument(ctx context.Context, path, target string, log *zerolog.Logger) error {
	if target == s.cfg.SourceLanguage {
		return fmt.Errorf("%s: target language %s is the source language", path, target)
	}
	src, fields, err := s.source(ctx, path)
	if err != nil {
		return err
	}

	docLog := log.With().Str("path", path).Str("lang", target).Logger()
	opts := s.options(fields, target, &docLog)

	translated, err := TranslateContent(ctx, content.Clone(src.Content), opts)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// Only selected fields are written; the target keeps its own values
	// for the rest, opted-out fields included.
	patch := store.Patch{Content: content.Document{}}
	for _, key := range collect.SelectedKeys(src.Content, opts.collectOptions()) {
		patch.Content[key] = translated[key]
	}
	if s.cfg.TranslateTitle && !content.ShouldSkip(src.Title) {
		title, err := s.translateTitle(ctx, src.Title, opts)
		if err != nil {
			return fmt.Errorf("%s: title: %w", path, err)
		}
		patch.Title = &title
	}

	if err := s.docs.Patch(ctx, path, target, patch); err != nil {
		return fmt.Errorf("%s: saving %s: %w", path, target, err)
	}
	docLog.Info().Msg("document translated")
	return nil
}

func (s *Service) translateTitle(ctx context.Context, title string, opts Options) (string, error) {
	unit := collect.Unit{Text: title, Mode: collect.ModeSingle, FieldKey: "title", FieldType: schema.KindText}
	out, err := opts.Strategy.Execute(ctx, []collect.Unit{unit}, opts.strategyOptions())
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", fmt.Errorf("strategy returned %d texts for 1 unit", len(out))
	}
	return out[0], nil
}

// TranslateLanguages translates path into every language under the
// language pool. Failed languages are reported in a *BatchError.
func (s *Service) TranslateLanguages(ctx context.Context, path string, languages []string) error {
	limit := s.cfg.LanguageConcurrency
	if limit <= 0 {
		limit = DefaultLanguageConcurrency
	}
	return forEachLanguage(ctx, languages, limit, s.log, func(ctx context.Context, lang string, log *zerolog.Logger) error {
		return s.translateDocument(ctx, path, lang, log)
	})
}

// SyncDocument copies the syncable content of the default-language
// version of path into target without translating it.
func (s *Service) SyncDocument(ctx context.Context, path, target string) error {
	if target == s.cfg.SourceLanguage {
		return fmt.Errorf("%s: target language %s is the source language", path, target)
	}
	src, fields, err := s.source(ctx, path)
	if err != nil {
		return err
	}

	synced := SyncContent(src.Content, s.options(fields, target, s.log))
	if err := s.docs.Patch(ctx, path, target, store.Patch{Content: synced}); err != nil {
		return fmt.Errorf("%s: saving %s: %w", path, target, err)
	}
	s.log.Info().Str("path", path).Str("lang", target).Int("fields", len(synced)).Msg("document synced")
	return nil
}
