package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issuesPublishedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "issues_published_total",
			Help:      "Total number of newsletter issues durably queued for delivery.",
		},
	)
	publishReplaysCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "publish_replays_total",
			Help:      "Total number of publish requests answered from the idempotency store.",
		},
	)
	deliveryAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "delivery_attempts_total",
			Help:      "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome"}, // delivered, retried, failed, released
	)
	deliveryAttemptDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsletter",
			Name:      "delivery_attempt_duration_seconds",
			Help:      "Duration of one claim-send-settle cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
