package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Total provider requests by outcome",
	}, []string{"provider", "op", "status"})

	ProviderRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "provider",
		Name:      "retries_total",
		Help:      "Total provider request retries",
	}, []string{"provider", "op"})

	ProviderRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "provider",
		Name:      "rate_limit_waits_total",
		Help:      "Total requests delayed by the rate limiter",
	}, []string{"provider"})

	ProviderRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Provider request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"provider", "op"})

	// Coordinator
	ContractsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "coordinator",
		Name:      "contracts_total",
		Help:      "Contracts processed by terminal state",
	}, []string{"chain", "state"})

	RangesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "coordinator",
		Name:      "ranges_processed_total",
		Help:      "Block ranges committed",
	}, []string{"chain"})

	LogsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "coordinator",
		Name:      "logs_fetched_total",
		Help:      "Raw logs fetched",
	}, []string{"chain"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "coordinator",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// Decoder
	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "decoder",
		Name:      "events_decoded_total",
		Help:      "Logs decoded into events",
	}, []string{"chain"})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "decoder",
		Name:      "failures_total",
		Help:      "Logs that failed to decode",
	}, []string{"chain"})

	UnmatchedLogs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "decoder",
		Name:      "unmatched_total",
		Help:      "Logs whose topic0 has no event in the contract ABI",
	}, []string{"chain"})

	// Checkpoint
	CheckpointBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "checkpoint",
		Name:      "last_processed_block",
		Help:      "Last committed block per contract",
	}, []string{"chain", "contract"})

	CheckpointConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "checkpoint",
		Name:      "conflicts_total",
		Help:      "Checkpoint advances rejected by concurrency or regression checks",
	}, []string{"chain", "reason"})

	// Alerts
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts sent by channel and status",
	}, []string{"channel", "status"})
)
