// Package config loads the .contentkit.yaml project file and the
// environment overrides applied on top of it.
//
// The project file is the single source of truth for languages, field
// policy and the translation provider. Secrets never live in it; they come
// from the environment or the credentials store.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minios-linux/contentkit/langmeta"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/strategy"
	"gopkg.in/yaml.v3"
)

// FileName is the project file name.
const FileName = ".contentkit.yaml"

// Provider names.
const (
	ProviderDeepL        = "deepl"
	ProviderOpenAI       = "openai"
	ProviderGoogle       = "google"
	ProviderGroq         = "groq"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
)

var providers = []string{
	ProviderDeepL, ProviderOpenAI, ProviderGoogle, ProviderGroq, ProviderOllama, ProviderCustomOpenAI,
}

// Defaults.
const (
	DefaultSourceLanguage       = "en"
	DefaultContentDir           = "content"
	DefaultBlueprintDir         = "blueprints"
	DefaultChunkUnits           = strategy.DefaultChunkUnits
	DefaultChunkChars           = strategy.DefaultChunkChars
	DefaultGenerativeWorkers    = strategy.DefaultGenerativeConcurrency
	DefaultBulkWorkers          = strategy.DefaultBulkConcurrency
	DefaultLanguageWorkers      = 3
	minLanguageWorkers          = 2
	maxLanguageWorkers          = 4
	defaultGenerativeModelLabel = "provider default"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .contentkit.yaml structure.
type File struct {
	// SourceLanguage is the default content language (default "en").
	SourceLanguage string `yaml:"source_language,omitempty"`
	// Languages are the target languages.
	Languages []string `yaml:"languages"`

	// ContentDir holds <path>/<lang>.yml documents, relative to the file.
	ContentDir string `yaml:"content_dir,omitempty"`
	// BlueprintDir holds <template>.yml blueprints, relative to the file.
	BlueprintDir string `yaml:"blueprint_dir,omitempty"`

	// FieldTypes restricts translation to these field types (default all).
	FieldTypes    []string `yaml:"field_types,omitempty"`
	IncludeFields []string `yaml:"include_fields,omitempty"`
	ExcludeFields []string `yaml:"exclude_fields,omitempty"`
	// TranslateTitle also translates the document title (default true).
	TranslateTitle *bool `yaml:"translate_title,omitempty"`

	// Provider selects the backend: deepl or a generative provider.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	// Formality is passed to DeepL.
	Formality string `yaml:"formality,omitempty"`
	// Instructions are appended to the generative system prompt.
	Instructions string `yaml:"instructions,omitempty"`

	// KirbyTags lists, per tag name, the attributes to translate.
	KirbyTags map[string][]string `yaml:"kirbytags,omitempty"`

	Chunk       Chunk       `yaml:"chunk,omitempty"`
	Concurrency Concurrency `yaml:"concurrency,omitempty"`

	// Dir is the directory the file was loaded from.
	Dir string `yaml:"-"`
}

// Chunk bounds generative prompts.
type Chunk struct {
	MaxUnits int `yaml:"max_units,omitempty"`
	MaxChars int `yaml:"max_chars,omitempty"`
}

// Concurrency bounds the worker pools.
type Concurrency struct {
	// Requests is the in-flight request limit of one translation call.
	Requests int `yaml:"requests,omitempty"`
	// Languages is the number of languages translated at once (2-4).
	Languages int `yaml:"languages,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load loads and validates .contentkit.yaml from dir.
// Returns nil if no file exists.
func Load(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Dir = dir
	return f, nil
}

// Parse decodes a project file, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("unsupported key: %w", err)
		}
		return nil, fmt.Errorf("parsing: %w", err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.SourceLanguage == "" {
		f.SourceLanguage = DefaultSourceLanguage
	}
	if f.ContentDir == "" {
		f.ContentDir = DefaultContentDir
	}
	if f.BlueprintDir == "" {
		f.BlueprintDir = DefaultBlueprintDir
	}
	if f.Provider == "" {
		f.Provider = ProviderDeepL
	}
	f.Provider = strings.ToLower(strings.TrimSpace(f.Provider))
	if f.TranslateTitle == nil {
		yes := true
		f.TranslateTitle = &yes
	}
	if f.Chunk.MaxUnits <= 0 {
		f.Chunk.MaxUnits = DefaultChunkUnits
	}
	if f.Chunk.MaxChars <= 0 {
		f.Chunk.MaxChars = DefaultChunkChars
	}
	if f.Concurrency.Requests <= 0 {
		if f.IsGenerative() {
			f.Concurrency.Requests = DefaultGenerativeWorkers
		} else {
			f.Concurrency.Requests = DefaultBulkWorkers
		}
	}
	switch {
	case f.Concurrency.Languages <= 0:
		f.Concurrency.Languages = DefaultLanguageWorkers
	case f.Concurrency.Languages < minLanguageWorkers:
		f.Concurrency.Languages = minLanguageWorkers
	case f.Concurrency.Languages > maxLanguageWorkers:
		f.Concurrency.Languages = maxLanguageWorkers
	}
}

// Validate checks languages, field types and the provider.
func (f *File) Validate() error {
	if len(f.Languages) == 0 {
		return fmt.Errorf("no target languages configured")
	}
	if err := f.validateProvider(); err != nil {
		return err
	}
	if err := langmeta.Validate(f.SourceLanguage); err != nil {
		return fmt.Errorf("source_language: %w", err)
	}
	seen := make(map[string]bool, len(f.Languages))
	for _, lang := range f.Languages {
		if lang == f.SourceLanguage {
			return fmt.Errorf("languages: %q is the source language", lang)
		}
		if seen[lang] {
			return fmt.Errorf("languages: %q listed twice", lang)
		}
		seen[lang] = true
		check := langmeta.Validate
		if f.Provider == ProviderDeepL {
			check = func(lang string) error {
				_, err := langmeta.DeepLTarget(lang)
				return err
			}
		}
		if err := check(lang); err != nil {
			return fmt.Errorf("languages: %w", err)
		}
	}
	if _, err := schema.ParseKindSet(f.FieldTypes); err != nil {
		return fmt.Errorf("field_types: %w", err)
	}
	return nil
}

func (f *File) validateProvider() error {
	for _, p := range providers {
		if f.Provider == p {
			if f.Provider == ProviderCustomOpenAI && f.BaseURL == "" {
				return fmt.Errorf("provider %s requires base_url", p)
			}
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q (valid: %s)", f.Provider, strings.Join(providers, ", "))
}

// IsGenerative reports whether the provider is a generative model.
func (f *File) IsGenerative() bool {
	return f.Provider != ProviderDeepL
}

// FieldKinds returns the allowed field types; all kinds when unset.
func (f *File) FieldKinds() schema.KindSet {
	if len(f.FieldTypes) == 0 {
		return schema.AllKinds()
	}
	set, err := schema.ParseKindSet(f.FieldTypes)
	if err != nil {
		return schema.AllKinds()
	}
	return set
}

// ModelLabel describes the configured model for status output.
func (f *File) ModelLabel() string {
	if f.Provider == ProviderDeepL {
		return "-"
	}
	if f.Model == "" {
		return defaultGenerativeModelLabel
	}
	return f.Model
}

// AbsContentDir returns the content directory resolved against Dir.
func (f *File) AbsContentDir() string {
	return f.abs(f.ContentDir)
}

// AbsBlueprintDir returns the blueprint directory resolved against Dir.
func (f *File) AbsBlueprintDir() string {
	return f.abs(f.BlueprintDir)
}

func (f *File) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.Dir, p)
}

// HasLanguage reports whether lang is a configured target.
func (f *File) HasLanguage(lang string) bool {
	for _, l := range f.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
