// Package deepl is a client for the DeepL translation REST API and the bulk
// backend built on it.
package deepl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minios-linux/contentkit/langmeta"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// API endpoints. Keys of free accounts end in ":fx".
const (
	FreeAPIURL = "https://api-free.deepl.com"
	ProAPIURL  = "https://api.deepl.com"
)

var (
	// ErrQuotaExceeded is returned when the account's character quota is
	// used up (HTTP 456).
	ErrQuotaExceeded = errors.New("deepl: quota exceeded")
	// ErrAuth is returned for rejected API keys (HTTP 401/403).
	ErrAuth = errors.New("deepl: authentication failed")
)

// StatusError is a non-successful API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepl: API returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps well-known status codes to sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case 456:
		return ErrQuotaExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	}
	return nil
}

// Config configures a Client.
type Config struct {
	APIKey string
	// BaseURL overrides the endpoint chosen from the key type.
	BaseURL string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// MaxRetries on rate limiting, server errors and network errors
	// (default 3).
	MaxRetries int
	// RetryDelay is the first backoff step, doubled per attempt
	// (default 1s).
	RetryDelay time.Duration
	// RateLimit is the number of requests per second (default 5).
	RateLimit float64
	// RateBurst is the limiter burst (default 5).
	RateBurst int
	// Formality is passed through when set (more, less, prefer_more,
	// prefer_less).
	Formality  string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

func (c Config) effectiveBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	if strings.HasSuffix(c.APIKey, ":fx") {
		return FreeAPIURL
	}
	return ProAPIURL
}

func (c Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

func (c Config) effectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c Config) effectiveRetryDelay() time.Duration {
	if c.RetryDelay > 0 {
		return c.RetryDelay
	}
	return time.Second
}

// Client calls the translate endpoint with rate limiting and retries.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zerolog.Logger
}

// NewClient builds a client.
func NewClient(cfg Config) *Client {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.effectiveTimeout()}
	}
	log := cfg.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Client{
		cfg:     cfg,
		baseURL: cfg.effectiveBaseURL(),
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		log:     log,
	}
}

// TranslateOptions are the per-request parameters.
type TranslateOptions struct {
	// SourceLanguage may be empty for auto detection.
	SourceLanguage string
	TargetLanguage string
	// TagHandling is "xml" or "html" to make the API parse markup.
	TagHandling string
	IgnoreTags  []string
}

type translateRequest struct {
	Text        []string `json:"text"`
	TargetLang  string   `json:"target_lang"`
	SourceLang  string   `json:"source_lang,omitempty"`
	TagHandling string   `json:"tag_handling,omitempty"`
	IgnoreTags  []string `json:"ignore_tags,omitempty"`
	Formality   string   `json:"formality,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate translates texts in one request and returns the results in
// input order. Language codes are mapped before any request is made.
func (c *Client) Translate(ctx context.Context, texts []string, opts TranslateOptions) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	target, err := langmeta.DeepLTarget(opts.TargetLanguage)
	if err != nil {
		return nil, err
	}
	source, err := langmeta.DeepLSource(opts.SourceLanguage)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(translateRequest{
		Text:        texts,
		TargetLang:  target,
		SourceLang:  source,
		TagHandling: opts.TagHandling,
		IgnoreTags:  opts.IgnoreTags,
		Formality:   c.cfg.Formality,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	respBody, err := c.post(ctx, "/v2/translate", body)
	if err != nil {
		return nil, err
	}

	var resp translateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("deepl: invalid response: %w", err)
	}
	if len(resp.Translations) != len(texts) {
		return nil, fmt.Errorf("deepl: got %d translations, expected %d", len(resp.Translations), len(texts))
	}
	out := make([]string, len(texts))
	for i, t := range resp.Translations {
		out[i] = t.Text
	}
	return out, nil
}

// post sends a JSON body, retrying 429, 5xx and network failures with
// exponential backoff.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	endpoint := c.baseURL + path
	maxRetries := c.cfg.effectiveMaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "DeepL-Auth-Key "+c.cfg.APIKey)

		c.log.Debug().Int("attempt", attempt+1).Str("url", endpoint).Msg("deepl request")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxRetries {
				if err := c.sleep(ctx, c.backoff(attempt, "")); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("deepl: request failed: %w", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("deepl: reading response: %w", readErr)
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < maxRetries {
			wait := c.backoff(attempt, resp.Header.Get("Retry-After"))
			c.log.Warn().Int("status", resp.StatusCode).Dur("wait", wait).
				Int("attempt", attempt+1).Int("max_retries", maxRetries).
				Msg("deepl request throttled, retrying")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	return nil, fmt.Errorf("deepl: exhausted all %d retries", maxRetries)
}

// backoff returns the wait before the next attempt, preferring a
// Retry-After header given in seconds.
func (c *Client) backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return c.cfg.effectiveRetryDelay() * time.Duration(1<<uint(attempt))
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
