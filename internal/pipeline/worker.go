package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// worker pulls ranges off jobs, fetches them and forwards the results.
// The first fetch error stops the worker and, through the errgroup, the
// whole run.
type worker[T any] struct {
	id    int
	fetch FetchFunc[T]
}

func (w *worker[T]) run(ctx context.Context, jobs <-chan Range, results chan<- Result[T]) error {
	for r := range jobs {
		start := time.Now()

		value, err := w.fetch(ctx, r)
		if err != nil {
			slog.Warn("Worker: Failed to fetch range",
				"worker_id", w.id,
				"range_from", r.From,
				"range_to", r.To,
				"error", err,
			)
			return fmt.Errorf("failed to fetch versions [%d, %d]: %w", r.From, r.To, err)
		}

		result := Result[T]{
			Range:          r,
			Value:          value,
			WorkerID:       w.id,
			ProcessingTime: time.Since(start),
		}

		slog.Debug("Worker completed range",
			"worker_id", w.id,
			"range_from", r.From,
			"range_to", r.To,
			"duration_ms", result.ProcessingTime.Milliseconds(),
		)

		select {
		case results <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
