package strategy

import (
	"context"
	"fmt"

	"github.com/minios-linux/contentkit/collect"
	"github.com/rs/zerolog"
)

// DefaultBulkConcurrency bounds the per-unit requests of one partition.
const DefaultBulkConcurrency = 5

// BulkConfig tunes a Bulk strategy.
type BulkConfig struct {
	// Concurrency is the number of per-unit requests in flight
	// (default DefaultBulkConcurrency).
	Concurrency int
	Logger      *zerolog.Logger
}

func (c BulkConfig) effectiveConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultBulkConcurrency
}

// Bulk dispatches units to a Backend grouped by mode.
type Bulk struct {
	backend Backend
	cfg     BulkConfig
	log     *zerolog.Logger
}

// NewBulk returns a bulk strategy over backend.
func NewBulk(backend Backend, cfg BulkConfig) *Bulk {
	log := cfg.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Bulk{backend: backend, cfg: cfg, log: log}
}

// Execute translates batch units in one request, then kirbytext and single
// units one request each under the concurrency bound. Any failure aborts
// the call and no partial result is returned.
func (b *Bulk) Execute(ctx context.Context, units []collect.Unit, opts Options) ([]string, error) {
	results := make([]string, len(units))
	if len(units) == 0 {
		return results, nil
	}

	var partitions [3][]int
	for i, u := range units {
		partitions[u.Mode] = append(partitions[u.Mode], i)
	}

	if idx := partitions[collect.ModeBatch]; len(idx) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		texts := make([]Text, len(idx))
		for k, i := range idx {
			texts[k] = Text{Value: units[i].Text, FieldType: units[i].FieldType}
		}
		b.log.Debug().Int("texts", len(texts)).Str("target", opts.TargetLanguage).Msg("bulk batch request")
		out, err := b.backend.TranslateBatch(ctx, texts, opts)
		if err != nil {
			return nil, fmt.Errorf("translating batch: %w", err)
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("translating batch: got %d texts, expected %d", len(out), len(texts))
		}
		for k, i := range idx {
			results[i] = out[k]
		}
	}

	for _, mode := range []collect.Mode{collect.ModeKirbytext, collect.ModeSingle} {
		if err := b.dispatchEach(ctx, units, partitions[mode], opts, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// dispatchEach sends one request per unit of a partition. The first failure
// stops further dispatch.
func (b *Bulk) dispatchEach(ctx context.Context, units []collect.Unit, idx []int, opts Options, results []string) error {
	if len(idx) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := RunParallel(runCtx, idx, b.cfg.effectiveConcurrency(), func(ctx context.Context, i int) error {
		u := units[i]
		text := Text{Value: u.Text, FieldType: u.FieldType}

		var (
			out string
			err error
		)
		if u.Mode == collect.ModeKirbytext {
			out, err = b.backend.TranslateKirbytext(ctx, text, opts)
		} else {
			out, err = b.backend.TranslateText(ctx, text, opts)
		}
		if err != nil {
			cancel()
			return fmt.Errorf("translating %s field %q: %w", u.Mode, u.FieldKey, err)
		}
		results[i] = out
		return nil
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}
