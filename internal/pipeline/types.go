package pipeline

import (
	"context"
	"time"
)

// Range is an inclusive span of ledger versions. Index is its position in
// the run; results are applied in Index order.
type Range struct {
	Index int
	From  uint64
	To    uint64
}

// Len returns the number of versions in r
func (r Range) Len() uint32 {
	return uint32(r.To - r.From + 1)
}

// Result is the fetched and decoded form of one Range
type Result[T any] struct {
	Range Range
	Value T

	// Processing metrics
	WorkerID       int
	ProcessingTime time.Duration
}

// FetchFunc fetches and decodes one range. It may run concurrently with
// other FetchFuncs.
type FetchFunc[T any] func(ctx context.Context, r Range) (T, error)

// ApplyFunc applies one result. It is called from a single goroutine, in
// range order.
type ApplyFunc[T any] func(ctx context.Context, result Result[T]) error

// Config contains configuration for a pipeline run
type Config struct {
	// Workers is the maximum number of concurrent fetches
	Workers int
}

// SplitRanges splits [from, to] into consecutive ranges of at most size
// versions
func SplitRanges(from, to uint64, size uint32) []Range {
	if size == 0 || from > to {
		return nil
	}

	var ranges []Range
	for start := from; ; {
		end := to
		if to-start >= uint64(size) {
			end = start + uint64(size) - 1
		}
		ranges = append(ranges, Range{Index: len(ranges), From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return ranges
}
