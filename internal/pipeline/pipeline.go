package pipeline

import (
	"context"
	"log/slog"

	"stealthpay/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Run fetches ranges with up to cfg.Workers concurrent fetches and applies
// the results in range order from the calling goroutine. It returns the
// number of ranges applied. On any fetch or apply error the remaining
// fetches are cancelled and nothing after the failed range is applied.
func Run[T any](ctx context.Context, cfg Config, ranges []Range, fetch FetchFunc[T], apply ApplyFunc[T]) (int, error) {
	if len(ranges) == 0 {
		return 0, nil
	}

	workerCount := cfg.Workers
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(ranges) {
		workerCount = len(ranges)
	}
	metrics.PipelineWorkerCount.Set(float64(workerCount))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	jobs := make(chan Range)

	// Buffered for every range so workers never block on a busy orderer.
	results := make(chan Result[T], len(ranges))

	g.Go(func() error {
		defer close(jobs)
		for _, r := range ranges {
			select {
			case jobs <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workerCount; i++ {
		w := &worker[T]{id: i, fetch: fetch}
		g.Go(func() error {
			return w.run(gctx, jobs, results)
		})
	}

	var fetchErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		fetchErr = g.Wait()
		close(results)
	}()

	o := newOrderer(apply)
	var applyErr error
	for result := range results {
		if applyErr != nil {
			continue
		}
		if err := o.processResult(ctx, result); err != nil {
			applyErr = err
			cancel()
		}
	}
	<-done

	metrics.PipelineQueueDepth.Set(0)

	if applyErr != nil {
		return o.applied(), applyErr
	}
	if fetchErr != nil {
		return o.applied(), fetchErr
	}

	slog.Debug("Pipeline run complete",
		"ranges", len(ranges),
		"workers", workerCount,
	)
	return o.applied(), nil
}
