package deepl

import (
	"context"
	"fmt"

	"github.com/minios-linux/contentkit/kirbytags"
	"github.com/minios-linux/contentkit/strategy"
)

// Backend adapts a Client to strategy.Backend. Hooks run on every text
// before and after translation.
type Backend struct {
	client *Client
	hooks  strategy.Hooks
}

// NewBackend returns a bulk backend over client.
func NewBackend(client *Client, hooks strategy.Hooks) *Backend {
	return &Backend{client: client, hooks: hooks}
}

func requestOptions(opts strategy.Options) TranslateOptions {
	return TranslateOptions{
		SourceLanguage: opts.SourceLanguage,
		TargetLanguage: opts.TargetLanguage,
	}
}

// TranslateBatch translates all texts in one request.
func (b *Backend) TranslateBatch(ctx context.Context, texts []strategy.Text, opts strategy.Options) ([]string, error) {
	in := make([]string, len(texts))
	for i, t := range texts {
		in[i] = b.hooks.ApplyBefore(t.Value, opts.Context(t.FieldType))
	}
	out, err := b.client.Translate(ctx, in, requestOptions(opts))
	if err != nil {
		return nil, err
	}
	for i, t := range texts {
		out[i] = b.hooks.ApplyAfter(out[i], opts.Context(t.FieldType))
	}
	return out, nil
}

// TranslateKirbytext translates markup with its inline tags protected.
// Configured tag attributes are translated in a second request.
func (b *Backend) TranslateKirbytext(ctx context.Context, text strategy.Text, opts strategy.Options) (string, error) {
	hc := opts.Context(text.FieldType)
	job := kirbytags.Prepare(b.hooks.ApplyBefore(text.Value, hc), opts.KirbyTags)

	reqOpts := requestOptions(opts)
	reqOpts.TagHandling = "xml"
	reqOpts.IgnoreTags = []string{kirbytags.IgnoreTag}
	main, err := b.client.Translate(ctx, []string{job.Text}, reqOpts)
	if err != nil {
		return "", err
	}

	var pending []string
	if len(job.Pending) > 0 {
		pending, err = b.client.Translate(ctx, job.Pending, requestOptions(opts))
		if err != nil {
			return "", fmt.Errorf("translating tag attributes: %w", err)
		}
	}

	out, err := job.Finish(main[0], pending)
	if err != nil {
		return "", err
	}
	return b.hooks.ApplyAfter(out, hc), nil
}

// TranslateText translates one plain string.
func (b *Backend) TranslateText(ctx context.Context, text strategy.Text, opts strategy.Options) (string, error) {
	hc := opts.Context(text.FieldType)
	out, err := b.client.Translate(ctx, []string{b.hooks.ApplyBefore(text.Value, hc)}, requestOptions(opts))
	if err != nil {
		return "", err
	}
	return b.hooks.ApplyAfter(out[0], hc), nil
}

var _ strategy.Backend = (*Backend)(nil)
