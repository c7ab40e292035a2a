package retry

import (
	"context"
	"fmt"
)

// NoRetryStrategy executes each ledger call once. A failed call then fails
// the whole poll step, which the indexer retries on its next tick.
type NoRetryStrategy struct{}

// NewNoRetryStrategy creates a new NoRetryStrategy
func NewNoRetryStrategy() *NoRetryStrategy {
	return &NoRetryStrategy{}
}

// Execute runs the operation once
func (s *NoRetryStrategy) Execute(ctx context.Context, name string, operation Operation) error {
	if err := operation(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Name returns the strategy name
func (s *NoRetryStrategy) Name() string {
	return "NoRetry"
}
