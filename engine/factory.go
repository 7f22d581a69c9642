package engine

import (
	"fmt"
	"time"

	"github.com/minios-linux/contentkit/config"
	"github.com/minios-linux/contentkit/deepl"
	"github.com/minios-linux/contentkit/llm"
	"github.com/minios-linux/contentkit/strategy"
	"github.com/rs/zerolog"
)

// StrategyConfig selects and configures the translation strategy.
type StrategyConfig struct {
	File   *config.File
	APIKey string
	// Hooks run around every translated text.
	Hooks strategy.Hooks
	// Timeout overrides the provider's request timeout.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// NewStrategy builds the strategy of the configured provider: the bulk
// strategy over DeepL, or the generative strategy over a model API.
func NewStrategy(cfg StrategyConfig) (strategy.Strategy, error) {
	f := cfg.File
	if f == nil {
		return nil, fmt.Errorf("no project configuration")
	}

	if !f.IsGenerative() {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s requires an API key", f.Provider)
		}
		client := deepl.NewClient(deepl.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   f.BaseURL,
			Timeout:   cfg.Timeout,
			Formality: f.Formality,
			Logger:    cfg.Logger,
		})
		return strategy.NewBulk(deepl.NewBackend(client, cfg.Hooks), strategy.BulkConfig{
			Concurrency: f.Concurrency.Requests,
			Logger:      cfg.Logger,
		}), nil
	}

	prov, err := llm.ResolveProvider(f.Provider, llm.Provider{
		BaseURL: f.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   f.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(llm.Config{Provider: prov, Logger: cfg.Logger})
	return strategy.NewGenerative(client, strategy.GenerativeConfig{
		MaxUnits:     f.Chunk.MaxUnits,
		MaxChars:     f.Chunk.MaxChars,
		Concurrency:  f.Concurrency.Requests,
		Instructions: f.Instructions,
		Hooks:        cfg.Hooks,
		Logger:       cfg.Logger,
	}), nil
}

// NewServiceConfig derives the service settings from a project file.
func NewServiceConfig(f *config.File, log *zerolog.Logger) ServiceConfig {
	return ServiceConfig{
		SourceLanguage:      f.SourceLanguage,
		FieldTypes:          f.FieldKinds(),
		IncludeFields:       f.IncludeFields,
		ExcludeFields:       f.ExcludeFields,
		KirbyTags:           f.KirbyTags,
		TranslateTitle:      f.TranslateTitle == nil || *f.TranslateTitle,
		LanguageConcurrency: f.Concurrency.Languages,
		Logger:              log,
	}
}
