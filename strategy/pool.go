package strategy

import (
	"context"
	"sync"
)

// ForEach calls fn for every task with at most limit calls in flight.
// No new task starts once ctx is done. ForEach returns after every started
// call has finished; tasks report their own outcome.
func ForEach[T any](ctx context.Context, tasks []T, limit int, fn func(context.Context, T)) {
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for _, task := range tasks {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(t T) {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(ctx, t)
		}(task)
	}

	wg.Wait()
}

// RunParallel is ForEach for tasks that can fail. The first error is
// returned after all started tasks have finished.
func RunParallel[T any](ctx context.Context, tasks []T, limit int, fn func(context.Context, T) error) error {
	var (
		firstErr error
		errOnce  sync.Once
	)
	ForEach(ctx, tasks, limit, func(ctx context.Context, t T) {
		if err := fn(ctx, t); err != nil {
			errOnce.Do(func() {
				firstErr = err
			})
		}
	})
	return firstErr
}
