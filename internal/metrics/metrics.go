package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plantleads"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Entitlement metrics
var (
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Total number of admission decisions",
		},
		[]string{"plan", "outcome"}, // outcome: "allowed", "denied" or "error"
	)

	AdmissionDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_denials_total",
			Help:      "Total number of denied admissions by reason",
		},
		[]string{"reason"},
	)

	TrialsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_started_total",
			Help:      "Total number of premium trials started",
		},
	)

	PlanDowngradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_downgrades_total",
			Help:      "Total number of automatic or explicit downgrades to the free plan",
		},
		[]string{"cause"},
	)

	PlanChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_changes_total",
			Help:      "Total number of recorded plan assignments",
		},
		[]string{"plan"},
	)
)

// Persistence and audit metrics
var (
	TxRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_retries_total",
			Help:      "Total number of transactions retried after a serialization failure or deadlock",
		},
	)

	AuditDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Total number of request log entries dropped because the buffer was full",
		},
	)

	AuditWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_errors_total",
			Help:      "Total number of request log entries that failed to persist",
		},
	)
)
