/*

This file defines the Prometheus collectors for the ACM. They are registered
on the default registry and exposed by the web server at /metrics.

*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StrategyEvents counts strategy lifecycle events by kind
	// (StrategyActivated, StrategyDeactivated, StrategyUpdated).
	StrategyEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acm",
		Name:      "strategy_events_total",
		Help:      "Strategy lifecycle events by kind.",
	}, []string{"kind"})

	// FeesAccrued counts FeesAccrued events.
	FeesAccrued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "acm",
		Name:      "fees_accrued_total",
		Help:      "Number of fee accrual events recorded.",
	})

	// BatchesExecuted counts executed batches by trigger.
	BatchesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acm",
		Name:      "batches_executed_total",
		Help:      "Batches executed by trigger condition.",
	}, []string{"trigger"})

	// BatchSize observes the number of entries per executed batch.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "acm",
		Name:      "batch_size",
		Help:      "Entries per executed batch.",
		Buckets:   []float64{1, 2, 5, 10, 20, 50},
	})

	// DepositFailures counts per-entry deposit failures inside flushes.
	DepositFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "acm",
		Name:      "deposit_failures_total",
		Help:      "Deposit-liquidity calls that failed during a flush.",
	})

	// QueueDepth tracks the pending-compound queue length per pool.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "acm",
		Name:      "pending_queue_depth",
		Help:      "Pending compound requests queued per pool.",
	}, []string{"pool"})

	// VenueEvents counts inbound venue notifications by kind.
	VenueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acm",
		Name:      "venue_events_total",
		Help:      "Inbound venue notifications by kind.",
	}, []string{"kind"})
)
