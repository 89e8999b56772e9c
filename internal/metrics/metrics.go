// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Generation ──────────────────────────────────────────────────────────────

	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "generation",
		Name:      "tasks_submitted_total",
		Help:      "Generation tasks accepted by the provider, labelled by mode.",
	}, []string{"mode"})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "generation",
		Name:      "submissions_rejected_total",
		Help:      "Submissions rejected before or during provider hand-off, labelled by reason.",
	}, []string{"reason"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "generation",
		Name:      "reconciliations_total",
		Help:      "Provider updates applied to tasks, labelled by delivery path and outcome.",
	}, []string{"path", "outcome"})

	DuplicateDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "generation",
		Name:      "duplicate_deliveries_total",
		Help:      "Provider updates absorbed because the task was already settled.",
	}, []string{"path"})

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "generation",
		Name:      "version_conflicts_total",
		Help:      "Compare-and-set conflicts while persisting a transition.",
	})

	SettlementsIncomplete = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "generation",
		Name:      "settlements_incomplete_total",
		Help:      "Settled tasks whose history or refund did not land, labelled by delivery path.",
	}, []string{"path"})

	// ─── Credits ─────────────────────────────────────────────────────────────────

	CreditsRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tasvir",
		Subsystem: "credits",
		Name:      "refunded_total",
		Help:      "Credits returned to users after failed tasks.",
	})

	// ─── Provider ────────────────────────────────────────────────────────────────

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasvir",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Latency of generation provider calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation", "status"})

	// ─── Transport and storage ───────────────────────────────────────────────────

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasvir",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API latency, labelled by route pattern, method and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "class"})

	SQLQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasvir",
		Subsystem: "sql",
		Name:      "query_duration_seconds",
		Help:      "Postgres round trips, labelled by query marker and outcome.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1, 5},
	}, []string{"marker", "outcome"})
)
