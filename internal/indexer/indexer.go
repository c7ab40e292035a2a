// Package indexer keeps the event store in step with the ledger. A single
// loop goroutine polls the ledger tip on a fixed interval, fetches the new
// versions in parallel and commits them in order.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stealthpay/internal/extraction"
	"stealthpay/internal/ledger"
	"stealthpay/internal/metrics"
	"stealthpay/internal/models"
	"stealthpay/internal/pipeline"
	"stealthpay/internal/storage"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// State is the lifecycle state of the indexer
type State string

const (
	StateStopped State = "stopped"
	StatePolling State = "polling"
)

// Config controls polling cadence and batching
type Config struct {
	PollInterval   time.Duration
	PollTimeout    time.Duration
	BatchSize      uint32
	LookbackWindow uint64
	FetchWorkers   int

	// Ticker drives the poll loop. A fixed-interval ticker is created
	// from PollInterval when nil.
	Ticker ticker.Ticker

	// Clock is used for status and dead-letter timestamps
	Clock clock.Clock
}

// DefaultConfig returns the defaults used by the daemon
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		PollTimeout:    30 * time.Second,
		BatchSize:      100,
		LookbackWindow: 1000,
		FetchWorkers:   4,
	}
}

// Status is a snapshot of the indexer
type Status struct {
	State         State     `json:"state"`
	Checkpoint    uint64    `json:"checkpoint"`
	HasCheckpoint bool      `json:"has_checkpoint"`
	Tip           uint64    `json:"tip"`
	Lag           uint64    `json:"lag"`
	LastPoll      time.Time `json:"last_poll"`
	LastError     string    `json:"last_error,omitempty"`

	Polls         uint64 `json:"polls"`
	Failures      uint64 `json:"failures"`
	EventsIndexed uint64 `json:"events_indexed"`
	DeadLetters   uint64 `json:"dead_letters"`
}

// Indexer ingests registry events into an EventStore
type Indexer struct {
	cfg       Config
	client    ledger.Client
	store     storage.EventStore
	extractor *extraction.Extractor
	clock     clock.Clock

	// pollMu serialises poll steps between the loop and PollOnce callers
	pollMu sync.Mutex

	mu       sync.Mutex
	status   Status
	stopping bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a stopped Indexer
func New(cfg Config, client ledger.Client, store storage.EventStore, extractor *extraction.Extractor) *Indexer {
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FetchWorkers < 1 {
		cfg.FetchWorkers = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Indexer{
		cfg:       cfg,
		client:    client,
		store:     store,
		extractor: extractor,
		clock:     cfg.Clock,
		status:    Status{State: StateStopped},
	}
}

// Start initialises the checkpoint if needed and launches the poll loop.
// Calling Start on a running indexer does nothing.
func (i *Indexer) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopping {
		return errors.New("indexer is stopping")
	}
	if i.status.State == StatePolling {
		return nil
	}

	checkpoint, err := i.ensureCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialise checkpoint: %w", err)
	}
	i.status.Checkpoint = checkpoint
	i.status.HasCheckpoint = true

	t := i.cfg.Ticker
	if t == nil {
		t = ticker.New(i.cfg.PollInterval)
	}

	i.quit = make(chan struct{})
	i.status.State = StatePolling
	metrics.Polling.Set(1)
	metrics.Checkpoint.Set(float64(checkpoint))

	slog.Info("Indexer started",
		"checkpoint", checkpoint,
		"poll_interval", i.cfg.PollInterval,
		"batch_size", i.cfg.BatchSize,
		"fetch_workers", i.cfg.FetchWorkers,
	)

	i.wg.Add(1)
	go i.pollLoop(t, i.quit)
	return nil
}

// Stop signals the loop to exit and waits for an in-flight poll step. The
// state stays polling until that step has finished.
func (i *Indexer) Stop() {
	i.mu.Lock()
	if i.status.State != StatePolling || i.stopping {
		i.mu.Unlock()
		return
	}
	i.stopping = true
	close(i.quit)
	i.mu.Unlock()

	i.wg.Wait()

	i.mu.Lock()
	i.status.State = StateStopped
	i.stopping = false
	i.mu.Unlock()

	metrics.Polling.Set(0)
	slog.Info("Indexer stopped")
}

// Status returns a snapshot of the indexer state
func (i *Indexer) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()

	status := i.status
	if status.Tip > status.Checkpoint {
		status.Lag = status.Tip - status.Checkpoint
	}
	return status
}

func (i *Indexer) pollLoop(t ticker.Ticker, quit chan struct{}) {
	defer i.wg.Done()

	t.Resume()
	defer t.Stop()

	// Catch up straight away rather than waiting a full interval.
	i.pollAndLog()

	for {
		select {
		case <-t.Ticks():
			i.pollAndLog()
		case <-quit:
			return
		}
	}
}

func (i *Indexer) pollAndLog() {
	if err := i.PollOnce(context.Background()); err != nil {
		slog.Warn("Poll step failed, retrying on next tick", "error", err)
	}
}

// PollOnce runs a single poll step under the configured timeout. A failed
// step leaves the checkpoint where it was.
func (i *Indexer) PollOnce(ctx context.Context) error {
	i.pollMu.Lock()
	defer i.pollMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, i.cfg.PollTimeout)
	defer cancel()

	start := time.Now()
	err := i.poll(ctx)
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	i.mu.Lock()
	i.status.Polls++
	i.status.LastPoll = i.clock.Now()
	if err != nil {
		i.status.Failures++
		i.status.LastError = err.Error()
	} else {
		i.status.LastError = ""
	}
	i.mu.Unlock()

	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("indexer").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("poll step timed out after %s: %w", i.cfg.PollTimeout, err)
		}
		return err
	}
	return nil
}

func (i *Indexer) poll(ctx context.Context) error {
	checkpoint, err := i.ensureCheckpoint(ctx)
	if err != nil {
		return err
	}

	tip, err := i.client.GetTip(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ledger tip: %w", err)
	}
	i.recordTip(tip, checkpoint)

	if tip <= checkpoint {
		return nil
	}

	ranges := pipeline.SplitRanges(checkpoint+1, tip, i.cfg.BatchSize)
	last := len(ranges) - 1

	slog.Debug("Polling ledger",
		"checkpoint", checkpoint,
		"tip", tip,
		"ranges", len(ranges),
	)

	fetch := func(ctx context.Context, r pipeline.Range) (*models.Batch, error) {
		txs, err := i.client.GetTransactions(ctx, r.From, r.Len())
		if err != nil {
			return nil, err
		}
		return i.buildBatch(r, txs), nil
	}

	apply := func(ctx context.Context, result pipeline.Result[*models.Batch]) error {
		batch := result.Value
		// Only the final batch advances the checkpoint, together with
		// its own events.
		if result.Range.Index == last {
			batch.Checkpoint = &tip
		}
		return i.commit(ctx, batch)
	}

	_, err = pipeline.Run(ctx, pipeline.Config{Workers: i.cfg.FetchWorkers}, ranges, fetch, apply)
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.status.Checkpoint = tip
	i.status.HasCheckpoint = true
	i.mu.Unlock()

	metrics.Checkpoint.Set(float64(tip))
	metrics.Lag.Set(0)

	slog.Info("Indexed ledger range",
		"from", checkpoint+1,
		"to", tip,
		"ranges", len(ranges),
	)
	return nil
}

// ensureCheckpoint loads the stored checkpoint, initialising it to
// tip - LookbackWindow on first run
func (i *Indexer) ensureCheckpoint(ctx context.Context) (uint64, error) {
	checkpoint, ok, err := i.store.GetCheckpoint(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return checkpoint, nil
	}

	tip, err := i.client.GetTip(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get ledger tip: %w", err)
	}

	var start uint64
	if tip > i.cfg.LookbackWindow {
		start = tip - i.cfg.LookbackWindow
	}
	if err := i.store.SetCheckpoint(ctx, start); err != nil {
		return 0, err
	}

	slog.Info("Initialised checkpoint",
		"tip", tip,
		"lookback", i.cfg.LookbackWindow,
		"checkpoint", start,
	)
	return start, nil
}

func (i *Indexer) recordTip(tip, checkpoint uint64) {
	i.mu.Lock()
	i.status.Tip = tip
	i.status.Checkpoint = checkpoint
	i.status.HasCheckpoint = true
	i.mu.Unlock()

	metrics.LedgerTip.Set(float64(tip))
	if tip > checkpoint {
		metrics.Lag.Set(float64(tip - checkpoint))
	} else {
		metrics.Lag.Set(0)
	}
}

// buildBatch extracts the registry events of one fetched range. A stealth
// transaction that fails to decode becomes a dead letter.
func (i *Indexer) buildBatch(r pipeline.Range, txs []ledger.Transaction) *models.Batch {
	batch := &models.Batch{FromVersion: r.From, ToVersion: r.To}

	for idx := range txs {
		tx := &txs[idx]
		metrics.TransactionsScanned.Inc()

		if !i.extractor.IsStealthRelated(tx) {
			continue
		}

		events, err := i.extractor.Extract(tx)
		if err != nil {
			slog.Warn("Skipping undecodable stealth transaction",
				"ledger", tx.Version,
				"tx_hash", tx.Hash,
				"error", err,
			)
			batch.DeadLetters = append(batch.DeadLetters, models.DeadLetter{
				TxHash:        tx.Hash,
				LedgerVersion: tx.Version,
				EventType:     i.extractor.DeadLetterEventType(tx),
				Reason:        err.Error(),
				Payload:       i.extractor.RawPayload(tx),
				RecordedAt:    i.clock.Now(),
			})
			continue
		}
		batch.Events = append(batch.Events, events...)
	}
	return batch
}

func (i *Indexer) commit(ctx context.Context, batch *models.Batch) error {
	start := time.Now()
	if err := i.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit versions [%d, %d]: %w", batch.FromVersion, batch.ToVersion, err)
	}
	metrics.BatchCommitDuration.Observe(time.Since(start).Seconds())
	metrics.BatchSize.Observe(float64(len(batch.Events)))
	metrics.VersionsProcessed.Add(float64(batch.ToVersion - batch.FromVersion + 1))
	metrics.DeadLetters.Add(float64(len(batch.DeadLetters)))
	for _, event := range batch.Events {
		metrics.EventsIndexed.WithLabelValues(string(event.Kind)).Inc()
	}

	i.mu.Lock()
	i.status.EventsIndexed += uint64(len(batch.Events))
	i.status.DeadLetters += uint64(len(batch.DeadLetters))
	i.mu.Unlock()

	if len(batch.Events) > 0 || len(batch.DeadLetters) > 0 {
		slog.Debug("Committed batch",
			"from", batch.FromVersion,
			"to", batch.ToVersion,
			"events", len(batch.Events),
			"dead_letters", len(batch.DeadLetters),
		)
	}
	return nil
}
