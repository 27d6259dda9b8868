// Package metrics holds the prometheus collectors for the ingestion
// pipeline, in the same promauto style as internal/middleware's HTTP
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "order_ingestion",
		Subsystem: "idempotency",
		Name:      "claims_total",
		Help:      "Idempotency gate claim attempts by outcome.",
	}, []string{"result"})

	ProcessorAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "order_ingestion",
		Subsystem: "processor",
		Name:      "attempts_total",
		Help:      "Order processing attempts by outcome.",
	}, []string{"outcome"})

	ProcessorDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "order_ingestion",
		Subsystem: "processor",
		Name:      "duration_seconds",
		Help:      "Time spent running the order state machine, including the DB transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	DLTRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "order_ingestion",
		Subsystem: "consumer",
		Name:      "dlt_routed_total",
		Help:      "Records routed to the dead-letter topic, by reason.",
	}, []string{"reason"})

	DLTReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "order_ingestion",
		Subsystem: "dlt_reconciler",
		Name:      "reconciled_total",
		Help:      "DLT records reconciled, by outcome.",
	}, []string{"outcome"})
)
