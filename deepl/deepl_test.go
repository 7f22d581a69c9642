package deepl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minios-linux/contentkit/kirbytags"
	"github.com/minios-linux/contentkit/langmeta"
	"github.com/minios-linux/contentkit/schema"
	"github.com/minios-linux/contentkit/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var german = strings.NewReplacer("Hello", "Hallo", "World", "Welt", "Read", "Lies", "the docs", "die Doku")

// fakeAPI records requests and answers them with german.
type fakeAPI struct {
	mu       sync.Mutex
	requests []translateRequest
	calls    atomic.Int32
	status   func(call int32) int
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		assert.Equal(t, "/v2/translate", r.URL.Path)
		assert.Equal(t, "DeepL-Auth-Key test-key", r.Header.Get("Authorization"))

		if f.status != nil {
			if code := f.status(n); code != http.StatusOK {
				http.Error(w, `{"message":"nope"}`, code)
				return
			}
		}

		var req translateRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		var resp translateResponse
		for _, text := range req.Text {
			resp.Translations = append(resp.Translations, struct {
				DetectedSourceLanguage string `json:"detected_source_language"`
				Text                   string `json:"text"`
			}{DetectedSourceLanguage: "EN", Text: translateOutsideMarkers(text)})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// translateOutsideMarkers leaves <kt> elements alone like the real API does
// with ignore_tags.
func translateOutsideMarkers(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "<kt>")
		if i < 0 {
			b.WriteString(german.Replace(s))
			return b.String()
		}
		b.WriteString(german.Replace(s[:i]))
		j := strings.Index(s[i:], "</kt>")
		if j < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		end := i + j + len("</kt>")
		b.WriteString(s[i:end])
		s = s[end:]
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		RetryDelay: time.Millisecond,
		RateLimit:  1000,
	})
}

func TestTranslate(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	got, err := c.Translate(context.Background(), []string{"Hello", "World"}, TranslateOptions{
		SourceLanguage: "en",
		TargetLanguage: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Welt"}, got)

	require.Len(t, api.requests, 1)
	assert.Equal(t, "DE", api.requests[0].TargetLang)
	assert.Equal(t, "EN", api.requests[0].SourceLang)
	assert.Empty(t, api.requests[0].TagHandling)
}

func TestTranslateRetriesRateLimit(t *testing.T) {
	api := &fakeAPI{status: func(n int32) int {
		if n <= 2 {
			return http.StatusTooManyRequests
		}
		return http.StatusOK
	}}
	c := newTestClient(t, api)

	got, err := c.Translate(context.Background(), []string{"Hello"}, TranslateOptions{TargetLanguage: "de"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo"}, got)
	assert.EqualValues(t, 3, api.calls.Load())
}

func TestTranslateServerErrorExhaustsRetries(t *testing.T) {
	api := &fakeAPI{status: func(int32) int { return http.StatusBadGateway }}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, RetryDelay: time.Millisecond, MaxRetries: 2, RateLimit: 1000})

	_, err := c.Translate(context.Background(), []string{"Hello"}, TranslateOptions{TargetLanguage: "de"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.EqualValues(t, 3, api.calls.Load())
}

func TestTranslateStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{456, ErrQuotaExceeded},
		{http.StatusForbidden, ErrAuth},
		{http.StatusUnauthorized, ErrAuth},
	}
	for _, tc := range cases {
		api := &fakeAPI{status: func(int32) int { return tc.status }}
		c := newTestClient(t, api)
		_, err := c.Translate(context.Background(), []string{"Hello"}, TranslateOptions{TargetLanguage: "de"})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.EqualValues(t, 1, api.calls.Load(), "status %d must not be retried", tc.status)
	}
}

func TestTranslateUnsupportedLanguageMakesNoRequest(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	_, err := c.Translate(context.Background(), []string{"Hello"}, TranslateOptions{TargetLanguage: "hi"})
	assert.ErrorIs(t, err, langmeta.ErrUnsupportedLanguage)
	_, err = c.Translate(context.Background(), []string{"Hello"}, TranslateOptions{TargetLanguage: "de", SourceLanguage: "qq"})
	assert.ErrorIs(t, err, langmeta.ErrUnsupportedLanguage)
	assert.Zero(t, api.calls.Load())
}

func TestBaseURLFromKey(t *testing.T) {
	assert.Equal(t, FreeAPIURL, Config{APIKey: "abc:fx"}.effectiveBaseURL())
	assert.Equal(t, ProAPIURL, Config{APIKey: "abc"}.effectiveBaseURL())
	assert.Equal(t, "http://local", Config{APIKey: "abc:fx", BaseURL: "http://local/"}.effectiveBaseURL())
}

func TestBackendBatchAppliesHooks(t *testing.T) {
	api := &fakeAPI{}
	var seen []schema.Kind
	b := NewBackend(newTestClient(t, api), strategy.Hooks{
		Before: func(text string, hc strategy.HookContext) string {
			seen = append(seen, hc.FieldType)
			return strings.TrimSpace(text)
		},
		After: func(text string, hc strategy.HookContext) string { return text + "." },
	})

	got, err := b.TranslateBatch(context.Background(), []strategy.Text{
		{Value: " Hello ", FieldType: schema.KindText},
		{Value: "World", FieldType: schema.KindTags},
	}, strategy.Options{TargetLanguage: "de"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo.", "Welt."}, got)
	assert.Equal(t, []schema.Kind{schema.KindText, schema.KindTags}, seen)
	assert.Equal(t, []string{"Hello", "World"}, api.requests[0].Text)
}

func TestBackendKirbytext(t *testing.T) {
	api := &fakeAPI{}
	b := NewBackend(newTestClient(t, api), strategy.Hooks{})

	got, err := b.TranslateKirbytext(context.Background(), strategy.Text{
		Value:     "Read (link: /docs text: the docs) now",
		FieldType: schema.KindTextarea,
	}, strategy.Options{TargetLanguage: "de", KirbyTags: kirbytags.Config{"link": {"text"}}})
	require.NoError(t, err)
	assert.Equal(t, "Lies (link: /docs text: die Doku) now", got)

	require.Len(t, api.requests, 2)
	main := api.requests[0]
	assert.Equal(t, "xml", main.TagHandling)
	assert.Equal(t, []string{"kt"}, main.IgnoreTags)
	assert.Equal(t, []string{"Read <kt>(link: /docs text: the docs)</kt> now"}, main.Text)
	assert.Equal(t, []string{"the docs"}, api.requests[1].Text)
}

func TestBackendKirbytextWithoutConfigIsOneRequest(t *testing.T) {
	api := &fakeAPI{}
	b := NewBackend(newTestClient(t, api), strategy.Hooks{})

	got, err := b.TranslateKirbytext(context.Background(), strategy.Text{Value: "Hello (image: a.jpg)"},
		strategy.Options{TargetLanguage: "de"})
	require.NoError(t, err)
	assert.Equal(t, "Hallo (image: a.jpg)", got)
	assert.EqualValues(t, 1, api.calls.Load())
}

func TestBackendErrorsPropagate(t *testing.T) {
	api := &fakeAPI{status: func(int32) int { return 456 }}
	b := NewBackend(newTestClient(t, api), strategy.Hooks{})
	_, err := b.TranslateText(context.Background(), strategy.Text{Value: "Hello"}, strategy.Options{TargetLanguage: "de"})
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
}
