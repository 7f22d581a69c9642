package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minios-linux/contentkit/strategy"
	"github.com/rs/zerolog"
)

// Config configures a Client.
type Config struct {
	Provider Provider
	// MaxRetries on rate limiting, server and network errors (default 3).
	MaxRetries int
	// RetryDelay is the first backoff step for server and network errors,
	// doubled per attempt (default 1s).
	RetryDelay time.Duration
	// RateLimitDelay is the pause after a 429 without retry information
	// (default 65s).
	RateLimitDelay time.Duration
	Temperature    float64
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
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

func (c Config) effectiveRateLimitDelay() time.Duration {
	if c.RateLimitDelay > 0 {
		return c.RateLimitDelay
	}
	return 65 * time.Second
}

// Client sends structured-output prompts to one provider. Concurrent calls
// share a rate limit pause: a 429 seen by one call holds back the others.
type Client struct {
	cfg  Config
	http *http.Client
	rl   *rateLimitState
	log  *zerolog.Logger
}

// NewClient builds a client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Provider.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyFromEnvironment
		hc = &http.Client{Transport: transport, Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Client{cfg: cfg, http: hc, rl: &rateLimitState{}, log: log}
}

// Generate sends the prompt and returns the JSON object of the answer.
func (c *Client) Generate(ctx context.Context, req strategy.GenerateRequest) (json.RawMessage, error) {
	endpoint, headers, body, err := c.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	respBody, err := c.post(ctx, endpoint, headers, body)
	if err != nil {
		return nil, err
	}
	text, err := extractResponseText(respBody)
	if err != nil {
		return nil, err
	}
	return extractJSONObject(text)
}

var _ strategy.Generator = (*Client)(nil)

// ---------------------------------------------------------------------------
// Rate limit state (shared pause for concurrent calls)
// ---------------------------------------------------------------------------

type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseEnd = time.Now().Add(duration)
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(remaining, 100*time.Millisecond)):
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Request builders
// ---------------------------------------------------------------------------

func (c *Client) buildRequest(req strategy.GenerateRequest) (string, map[string]string, []byte, error) {
	prov := c.cfg.Provider
	headers := map[string]string{"Content-Type": "application/json"}

	switch prov.format() {
	case formatGeminiNative:
		schema, err := geminiSchema(req.Schema)
		if err != nil {
			return "", nil, nil, err
		}
		body, err := buildGeminiRequest(req.System, req.Prompt, schema, c.cfg.Temperature)
		if err != nil {
			return "", nil, nil, err
		}
		endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
			strings.TrimSuffix(prov.BaseURL, "/"), url.PathEscape(prov.Model))
		headers["x-goog-api-key"] = prov.APIKey
		return endpoint, headers, body, nil
	default:
		body, err := buildOpenAIChatRequest(prov.Model, req, c.cfg.Temperature)
		if err != nil {
			return "", nil, nil, err
		}
		if prov.APIKey != "" {
			headers["Authorization"] = "Bearer " + prov.APIKey
		}
		return strings.TrimSuffix(prov.BaseURL, "/") + "/chat/completions", headers, body, nil
	}
}

func buildOpenAIChatRequest(model string, req strategy.GenerateRequest, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type jsonSchema struct {
		Name   string          `json:"name"`
		Strict bool            `json:"strict"`
		Schema json.RawMessage `json:"schema"`
	}
	type responseFormat struct {
		Type       string     `json:"type"`
		JSONSchema jsonSchema `json:"json_schema"`
	}
	body := struct {
		Model          string         `json:"model"`
		Messages       []msg          `json:"messages"`
		Temperature    float64        `json:"temperature"`
		Stream         bool           `json:"stream"`
		ResponseFormat responseFormat `json:"response_format"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: temperature,
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: req.SchemaName, Strict: true, Schema: openAISchema(req.Schema)},
		},
	}
	return json.Marshal(body)
}

func buildGeminiRequest(systemPrompt, userPrompt string, schema any, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
		ResponseSchema   any     `json:"responseSchema"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{
			Temperature:      temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// openAISchema drops the meta keywords strict mode rejects.
func openAISchema(raw json.RawMessage) json.RawMessage {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	delete(m, "$schema")
	delete(m, "$id")
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

// geminiSchema converts a JSON Schema into the OpenAPI subset accepted as
// responseSchema.
func geminiSchema(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding response schema: %w", err)
	}
	return stripSchemaKeys(v), nil
}

var unsupportedGeminiKeys = map[string]bool{
	"$schema":              true,
	"$id":                  true,
	"additionalProperties": true,
}

func stripSchemaKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if unsupportedGeminiKeys[k] {
				continue
			}
			out[k] = stripSchemaKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripSchemaKeys(val)
		}
		return out
	default:
		return v
	}
}

// ---------------------------------------------------------------------------
// HTTP call with retries
// ---------------------------------------------------------------------------

func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, body []byte) ([]byte, error) {
	prov := c.cfg.Provider
	maxRetries := c.cfg.effectiveMaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Wait if another call hit the rate limit
		if err := c.rl.waitIfPaused(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		c.log.Debug().Str("provider", prov.Name).Int("attempt", attempt+1).Msg("generative request")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxRetries {
				if err := sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("API request failed: %w", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryDelay := parseRetryDelay(respBody, c.cfg.effectiveRateLimitDelay())
			c.log.Warn().Dur("wait", retryDelay).Int("attempt", attempt+1).Int("max_retries", maxRetries).
				Msg("rate limited, pausing requests")
			c.rl.pause(retryDelay)
			if attempt < maxRetries {
				if err := sleep(ctx, retryDelay); err != nil {
					return nil, err
				}
				c.rl.unpause()
				continue
			}
			return nil, fmt.Errorf("rate limited after %d retries: %s", maxRetries, truncate(string(respBody), 500))
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				if err := sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("exhausted all %d retries", maxRetries)
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.effectiveRetryDelay() * time.Duration(1<<uint(attempt))
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// parseRetryDelay extracts the retry delay from a 429 response body
// (Google RetryInfo detail), falling back to def.
func parseRetryDelay(body []byte, def time.Duration) time.Duration {
	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return def
	}
	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}
	return def
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// extractResponseText returns the model text of an OpenAI chat or Gemini
// response.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// OpenAI chat format: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if refusal, ok := message["refusal"].(string); ok && refusal != "" {
					return "", fmt.Errorf("model refused: %s", truncate(refusal, 200))
				}
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// Gemini format: candidates[0].content.parts[0].text
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// fencedAnswer matches an answer that is wrapped as a whole in one code
// fence. Fences inside the JSON strings are left alone.
var fencedAnswer = regexp.MustCompile("(?s)\\A```[A-Za-z]*\\s*(.*?)\\s*```\\s*\\z")

// extractJSONObject cuts the JSON object out of a model answer, tolerating
// a code fence around it and surrounding prose.
func extractJSONObject(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") && json.Valid([]byte(content)) {
		return json.RawMessage(content), nil
	}
	if m := fencedAnswer.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(content, 300))
	}
	content = content[start : end+1]
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("invalid JSON object in response: %s", truncate(content, 300))
	}
	return json.RawMessage(content), nil
}

// truncate truncates a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
