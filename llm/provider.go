// Package llm talks to generative model APIs that can answer with
// schema-constrained JSON: OpenAI-compatible chat completions (OpenAI,
// Groq, Ollama, custom endpoints) and Google Gemini.
package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderOpenAI       = "openai"
	ProviderGoogle       = "google"
	ProviderGroq         = "groq"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
)

// Provider holds the configuration of a generative service.
type Provider struct {
	// ID is the provider identifier (openai, google, groq, ...).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderOpenAI: {
			ID:      ProviderOpenAI,
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 120 * time.Second,
		},
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.0-flash",
			Timeout: 120 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Timeout: 60 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 300 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
	}
}

// ProviderIDs returns the known provider IDs in name order.
func ProviderIDs() []string {
	ids := make([]string, 0, len(DefaultProviders()))
	for id := range DefaultProviders() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveProvider merges overrides into the default definition of id.
// Empty override fields keep the defaults.
func ResolveProvider(id string, overrides Provider) (Provider, error) {
	p, ok := DefaultProviders()[id]
	if !ok {
		return Provider{}, fmt.Errorf("unknown generative provider %q (known: %s)", id, strings.Join(ProviderIDs(), ", "))
	}
	if overrides.BaseURL != "" {
		p.BaseURL = overrides.BaseURL
	}
	if overrides.APIKey != "" {
		p.APIKey = overrides.APIKey
	}
	if overrides.Model != "" {
		p.Model = overrides.Model
	}
	if overrides.Timeout > 0 {
		p.Timeout = overrides.Timeout
	}
	if p.BaseURL == "" {
		return Provider{}, fmt.Errorf("provider %s requires a base URL", id)
	}
	if p.Model == "" {
		return Provider{}, fmt.Errorf("provider %s requires a model", id)
	}
	if p.APIKey == "" && id != ProviderOllama && id != ProviderCustomOpenAI {
		return Provider{}, fmt.Errorf("provider %s requires an API key", id)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// API format types
// ---------------------------------------------------------------------------

type apiFormat int

const (
	formatOpenAIChat   apiFormat = iota // OpenAI chat/completions
	formatGeminiNative                  // Google Gemini generateContent
)

func (p Provider) format() apiFormat {
	if p.ID == ProviderGoogle {
		return formatGeminiNative
	}
	return formatOpenAIChat
}
