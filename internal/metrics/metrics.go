package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track indexing volume
var (
	VersionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stealthpay_versions_processed_total",
		Help: "Total number of ledger versions committed by the indexer",
	})

	TransactionsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stealthpay_transactions_scanned_total",
		Help: "Total number of ledger transactions inspected",
	})

	EventsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stealthpay_events_indexed_total",
			Help: "Total number of payment events upserted by kind",
		},
		[]string{"kind"},
	)

	DeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stealthpay_dead_letters_total",
		Help: "Total number of stealth transactions that failed to decode",
	})
)

// Performance metrics - Track poll and claim latency
var (
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stealthpay_poll_duration_seconds",
		Help:    "Time taken by one indexer poll step",
		Buckets: prometheus.DefBuckets,
	})

	BatchCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stealthpay_batch_commit_duration_seconds",
		Help:    "Time taken to commit one batch to the event store",
		Buckets: prometheus.DefBuckets,
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stealthpay_batch_events",
		Help:    "Number of events in each committed batch",
		Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stealthpay_scan_duration_seconds",
		Help:    "Time taken to scan pending payments for one user",
		Buckets: prometheus.DefBuckets,
	})
)

// State metrics - Track current indexer state
var (
	Checkpoint = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stealthpay_checkpoint_version",
		Help: "Last ledger version fully processed",
	})

	LedgerTip = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stealthpay_ledger_tip_version",
		Help: "Latest ledger version reported by the ledger",
	})

	Lag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stealthpay_indexer_lag",
		Help: "Number of versions between the checkpoint and the tip",
	})

	Polling = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stealthpay_indexer_polling",
		Help: "Indexer state: 0=stopped, 1=polling",
	})
)

// Pipeline metrics - Track parallel range fetching
var (
	PipelineWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stealthpay_pipeline_worker_count",
		Help: "Number of fetch workers used by the last poll step",
	})

	PipelineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stealthpay_pipeline_queue_depth",
		Help: "Number of fetched ranges waiting to be applied in order",
	})
)

// Claim metrics
var (
	Claims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stealthpay_claims_total",
			Help: "Total number of claim attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stealthpay_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stealthpay_ledger_rpc_retries_total",
			Help: "Total number of retried ledger RPC calls by operation",
		},
		[]string{"operation"},
	)

	RPCGiveUps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stealthpay_ledger_rpc_exhausted_total",
			Help: "Total number of ledger RPC calls that failed after all attempts",
		},
		[]string{"operation"},
	)
)
