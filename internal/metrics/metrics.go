// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishesTotal tracks publish attempts per platform and outcome
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_publishes_total",
			Help: "Total number of publish attempts",
		},
		[]string{"platform", "outcome"},
	)

	// PublishLatency tracks outbound publish latency
	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publisher_publish_latency_seconds",
			Help:    "Publish call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	// ClassificationsTotal tracks classifier decisions per platform and code
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_error_classifications_total",
			Help: "Total number of classified partner/system errors",
		},
		[]string{"platform", "code"},
	)

	// ConnectionPausesTotal tracks auto-pause transitions per reason code
	ConnectionPausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_connection_pauses_total",
			Help: "Total number of auto-pause transitions",
		},
		[]string{"reason", "status"},
	)

	// ConnectionResumesTotal tracks manual resume transitions
	ConnectionResumesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_connection_resumes_total",
			Help: "Total number of connection resumes",
		},
	)

	// JobsQueuedTotal tracks jobs enqueued per type
	JobsQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_jobs_queued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)

	// JobsDeadLetteredTotal tracks jobs retained after exhausting retries
	JobsDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_jobs_dead_lettered_total",
			Help: "Total number of dead-lettered jobs",
		},
		[]string{"type", "code"},
	)

	// QueueDepth tracks the number of ready jobs
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "publisher_queue_depth",
			Help: "Number of jobs ready for delivery",
		},
	)

	// VaultOperationsTotal tracks vault encrypt/decrypt outcomes
	VaultOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_vault_operations_total",
			Help: "Total number of vault operations",
		},
		[]string{"operation", "outcome"},
	)

	// TokenRefreshesTotal tracks proactive token refreshes per platform
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"platform", "outcome"},
	)

	// HealthChecksTotal tracks connection health checks per result
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_health_checks_total",
			Help: "Total number of connection health checks",
		},
		[]string{"platform", "status"},
	)
)
