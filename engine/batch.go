package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minios-linux/contentkit/content"
	"github.com/minios-linux/contentkit/logging"
	"github.com/minios-linux/contentkit/strategy"
	"github.com/rs/zerolog"
)

// BatchError reports the languages that failed in a multi-language run.
type BatchError struct {
	RunID  string
	Failed map[string]error
}

func (e *BatchError) Error() string {
	langs := e.Languages()
	return fmt.Sprintf("%d language(s) failed: %s", len(langs), strings.Join(langs, ", "))
}

// Languages returns the failed language codes, sorted.
func (e *BatchError) Languages() []string {
	langs := make([]string, 0, len(e.Failed))
	for l := range e.Failed {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Unwrap exposes the per-language errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, l := range e.Languages() {
		errs = append(errs, e.Failed[l])
	}
	return errs
}

// forEachLanguage runs fn for every language with at most limit languages
// in flight. Failures are collected per language; the run stops starting
// new languages once ctx is done.
func forEachLanguage(ctx context.Context, languages []string, limit int, log *zerolog.Logger,
	fn func(ctx context.Context, lang string, log *zerolog.Logger) error) error {
	runID := uuid.NewString()
	runLog := log.With().Str("run", runID).Logger()
	runLog.Info().Strs("languages", languages).Int("concurrency", limit).Msg("starting language run")

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	strategy.ForEach(ctx, languages, limit, func(ctx context.Context, lang string) {
		langLog := runLog.With().Str("lang", lang).Logger()
		if err := fn(ctx, lang, &langLog); err != nil {
			langLog.Error().Err(err).Msg("language failed")
			mu.Lock()
			failed[lang] = err
			mu.Unlock()
		}
	})

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return &BatchError{RunID: runID, Failed: failed}
	}
	runLog.Info().Msg("language run finished")
	return nil
}

// TranslateAll translates doc into every language. Each language works on
// its own copy of doc; doc itself is never modified. Successful
// translations are returned even when other languages fail, in which case
// the error is a *BatchError.
func TranslateAll(ctx context.Context, doc content.Document, languages []string, opts Options) (map[string]content.Document, error) {
	log := logging.OrNop(opts.Logger)
	var mu sync.Mutex
	out := make(map[string]content.Document, len(languages))

	err := forEachLanguage(ctx, languages, opts.effectiveLanguageConcurrency(), log,
		func(ctx context.Context, lang string, langLog *zerolog.Logger) error {
			langOpts := opts
			langOpts.TargetLanguage = lang
			langOpts.Logger = langLog
			translated, err := TranslateContent(ctx, content.Clone(doc), langOpts)
			if err != nil {
				return err
			}
			mu.Lock()
			out[lang] = translated
			mu.Unlock()
			return nil
		})
	return out, err
}
