package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CONTENTKIT"

// Env holds the settings read from the environment.
type Env struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DeepLAPIKey string `envconfig:"DEEPL_API_KEY"`
	LLMAPIKey   string `envconfig:"LLM_API_KEY"`

	// Overrides of the project file.
	Provider string `envconfig:"PROVIDER"`
	Model    string `envconfig:"MODEL"`
	BaseURL  string `envconfig:"BASE_URL"`
}

// LoadEnv loads envFile, if it exists, and reads the CONTENTKIT_*
// variables. Variables already set in the process win over the file.
func LoadEnv(envFile string) (*Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("environment validation failed: %w", err)
	}
	return &env, nil
}

// Validate checks the environment values.
func (e *Env) Validate() error {
	if strings.TrimSpace(e.LogLevel) == "" {
		return fmt.Errorf("%s_LOG_LEVEL is required", EnvPrefix)
	}
	if strings.TrimSpace(e.Environment) == "" {
		return fmt.Errorf("%s_ENVIRONMENT is required", EnvPrefix)
	}
	return nil
}

// Apply overrides project file settings with environment values.
func (e *Env) Apply(f *File) error {
	if e == nil || f == nil {
		return nil
	}
	changed := false
	if e.Provider != "" {
		f.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
		changed = true
	}
	if e.Model != "" {
		f.Model = e.Model
	}
	if e.BaseURL != "" {
		f.BaseURL = e.BaseURL
		changed = true
	}
	if changed {
		return f.Validate()
	}
	return nil
}

// APIKey returns the environment key for provider, if any.
func (e *Env) APIKey(provider string) string {
	if e == nil {
		return ""
	}
	if provider == ProviderDeepL {
		return e.DeepLAPIKey
	}
	return e.LLMAPIKey
}
