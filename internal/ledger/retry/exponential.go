package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stealthpay/internal/metrics"
)

// ExponentialBackoffStrategy retries recoverable ledger RPC failures with
// exponential backoff. The poll step's deadline bounds the total time.
type ExponentialBackoffStrategy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewExponentialBackoffStrategy creates a new ExponentialBackoffStrategy
func NewExponentialBackoffStrategy(maxRetries int, initialDelay, maxDelay time.Duration) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

// Execute runs the named ledger call, retrying recoverable failures
func (s *ExponentialBackoffStrategy) Execute(ctx context.Context, name string, operation Operation) error {
	attempts := s.maxRetries + 1
	delay := s.initialDelay

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 {
				slog.Info("Ledger call recovered",
					"operation", name,
					"attempt", attempt,
				)
			}
			return nil
		}

		if !isRecoverableError(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if attempt >= attempts {
			metrics.RPCGiveUps.WithLabelValues(name).Inc()
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
		}

		metrics.RPCRetries.WithLabelValues(name).Inc()
		slog.Warn("Ledger call failed, backing off",
			"operation", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"retry_in", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s abandoned after %d attempts: %w", name, attempt, ctx.Err())
		case <-timer.C:
		}
		delay = nextDelay(delay, s.maxDelay)
	}
}

// Name returns the strategy name
func (s *ExponentialBackoffStrategy) Name() string {
	return "ExponentialBackoff"
}

func nextDelay(delay, maxDelay time.Duration) time.Duration {
	delay *= 2
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

// recoverablePatterns are transport failures and RPC throttling answers
// worth another attempt within the same poll step
var recoverablePatterns = []string{
	"connection reset by peer",
	"connection refused",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"eof",
	"no such host",
	"dial tcp",
	"too many requests",
	"status code 429",
	"status code 502",
	"status code 503",
	"status code 504",
}

func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	// The poll step's own deadline or a shutdown ends the attempt.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
