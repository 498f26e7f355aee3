// Package concurrent holds the bounded-parallelism helpers the session loop
// uses to run tool calls.
package concurrent

import (
	"context"
	"sync"
)

const defaultConcurrency = 4

// Result pairs one input's output with its error, at the input's index.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over items with at most maxConcurrency in flight and returns
// the results in input order. Every item runs; per-item failures land in the
// corresponding Result rather than aborting the batch, so callers can report
// each failure against the right item.
func Map[T, R any](ctx context.Context, items []T, maxConcurrency int, fn func(context.Context, T) (R, error)) []Result[R] {
	if len(items) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}

	results := make([]Result[R], len(items))
	sem := make(chan struct{}, maxConcurrency)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				results[idx].Err = ctx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[idx].Value, results[idx].Err = fn(ctx, val)
			}
		}(i, item)
	}
	wg.Wait()
	return results
}
