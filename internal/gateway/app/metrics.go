package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	initiationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Name:      "initiations_total",
			Help:      "Total deposit/payout initiation requests.",
		},
		[]string{"direction", "outcome"}, // outcome: "accepted", "rejected", "upstream_error", "store_error"
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paygate",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of HTTP requests to the payment provider.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	callbacksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Name:      "callbacks_total",
			Help:      "Total provider callbacks by outcome.",
		},
		[]string{"outcome"}, // "applied", "duplicate", "processing", "invalid_signature", "not_found", "unknown_status", "error"
	)

	settlementEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Name:      "settlement_events_published_total",
			Help:      "Settlement events published to NATS.",
		},
		[]string{"direction", "status"},
	)
)
