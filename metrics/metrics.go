// Package metrics holds the Prometheus metrics of the indexer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bridge_indexer"

// batch metrics
var (
	BatchesCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Batches committed",
		},
		[]string{"network"},
	)

	// every failed attempt, including the ones retried later
	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Failed batch attempts",
		},
		[]string{"network", "stage"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time from fetching the events of a batch to its commit",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"network"},
	)

	LastCommittedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_committed_block",
			Help:      "Last block committed per network",
		},
		[]string{"network"},
	)
)

// event metrics
var (
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Events dispatched to a handler",
		},
		[]string{"network", "kind"},
	)

	EventsIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Events skipped as unrelated traffic",
		},
		[]string{"network", "kind"},
	)

	TransferTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_transitions_total",
			Help:      "Staged transfer status transitions",
		},
		[]string{"network", "status"},
	)
)

func RecordBatchCommitted(network string, toBlock uint64, durationSeconds float64) {
	BatchesCommitted.WithLabelValues(network).Inc()
	BatchDuration.WithLabelValues(network).Observe(durationSeconds)
	LastCommittedBlock.WithLabelValues(network).Set(float64(toBlock))
}

func RecordBatchFailure(network, stage string) {
	BatchFailures.WithLabelValues(network, stage).Inc()
}

func RecordEvent(network, kind string, ignored bool) {
	if ignored {
		EventsIgnored.WithLabelValues(network, kind).Inc()
		return
	}
	EventsHandled.WithLabelValues(network, kind).Inc()
}

func RecordTransition(network, status string) {
	TransferTransitions.WithLabelValues(network, status).Inc()
}
