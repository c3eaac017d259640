// Package metrics exposes Prometheus collectors for store operations
// and connection lifecycle events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietddude/kvguard/internal/kv/event"
)

var (
	// OperationsTotal tracks store operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvguard_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"op", "outcome"},
	)

	// OperationDuration tracks end-to-end operation latency, retries
	// included.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvguard_operation_duration_seconds",
			Help:    "Store operation latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// LifecycleEventsTotal tracks connection lifecycle events.
	LifecycleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvguard_lifecycle_events_total",
			Help: "Total number of connection lifecycle events",
		},
		[]string{"event"},
	)

	// RetryExhaustedTotal tracks operations that ran out of retry
	// budget.
	RetryExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvguard_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"op"},
	)
)

// Handler returns an event handler that records lifecycle events.
// Subscribe it to the client's event bus.
func Handler() event.Handler {
	return func(ev event.Event) {
		LifecycleEventsTotal.WithLabelValues(ev.Type.String()).Inc()
		if ev.Type == event.TypeRetryExhausted {
			RetryExhaustedTotal.WithLabelValues(ev.Op).Inc()
		}
	}
}
