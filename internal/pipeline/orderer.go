package pipeline

import (
	"context"
	"log/slog"

	"stealthpay/internal/metrics"
)

// orderer receives fetched results in any order and applies them strictly
// in range order. Workers finish out of order, but the store must see
// versions sequentially so a restart resumes from the right place.
type orderer[T any] struct {
	apply ApplyFunc[T]

	// State tracking
	nextExpected int               // Next range index to apply
	pending      map[int]Result[T] // Buffered out-of-order results
}

func newOrderer[T any](apply ApplyFunc[T]) *orderer[T] {
	return &orderer[T]{
		apply:   apply,
		pending: make(map[int]Result[T]),
	}
}

// processResult buffers result and applies every result that is now in
// sequence
func (o *orderer[T]) processResult(ctx context.Context, result Result[T]) error {
	o.pending[result.Range.Index] = result

	slog.Debug("Orderer received result",
		"range_from", result.Range.From,
		"range_to", result.Range.To,
		"worker_id", result.WorkerID,
		"pending_count", len(o.pending),
		"next_expected", o.nextExpected,
	)

	for {
		data, exists := o.pending[o.nextExpected]
		if !exists {
			break
		}

		if err := o.apply(ctx, data); err != nil {
			slog.Error("Orderer: Failed to apply range in order",
				"range_from", data.Range.From,
				"range_to", data.Range.To,
				"error", err,
			)
			return err
		}

		delete(o.pending, o.nextExpected)
		o.nextExpected++
	}

	metrics.PipelineQueueDepth.Set(float64(len(o.pending)))
	return nil
}

// applied returns how many ranges have been applied
func (o *orderer[T]) applied() int {
	return o.nextExpected
}
