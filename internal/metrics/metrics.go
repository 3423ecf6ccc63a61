// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the play pipeline:
// - Batch ingestion throughput and fraud hit rates
// - Materialization outcomes and dedupe suppression
// - Payout run duration and amounts written
// - DuckDB query performance
// - API endpoint latency and throughput

var (
	// Ingestion Metrics
	PlaysIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plays_ingested_total",
			Help: "Total number of raw play events accepted",
		},
	)

	PlaysSuspicious = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plays_suspicious_total",
			Help: "Total number of plays flagged as suspicious at ingest",
		},
		[]string{"reason"},
	)

	PlaysDuplicateEventID = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plays_duplicate_event_id_total",
			Help: "Total number of resubmitted event IDs skipped at ingest",
		},
	)

	BatchesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_rejected_total",
			Help: "Total number of batches rejected by validation",
		},
		[]string{"reason"}, // "empty", "too_large", "invalid_event", "clock_ahead"
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size",
			Help:    "Number of events per accepted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Materialization Metrics
	MaterializationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "materialization_outcomes_total",
			Help: "Total number of materialization attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "duplicate", "track_not_found", "already_processed", "failed"
	)

	MaterializationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "materialization_duration_seconds",
			Help:    "Duration of single play materialization in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DedupeWindowHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_window_hits_total",
			Help: "Total number of plays flagged as duplicates within the dedupe window",
		},
	)

	// Payout Metrics
	PayoutRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payout_run_duration_seconds",
			Help:    "Duration of payout aggregation runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	PayoutRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_runs_total",
			Help: "Total number of payout aggregation runs",
		},
		[]string{"result"}, // "success", "failure"
	)

	PayoutsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_written_total",
			Help: "Total number of artist payout rows written",
		},
	)

	PayoutCentsAllocated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_cents_allocated_total",
			Help: "Total streaming cents allocated to artists across all runs",
		},
	)

	PayoutLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payout_last_success_timestamp",
			Help: "Unix timestamp of last successful payout run",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Event Bus Metrics
	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "play_events_published_total",
			Help: "Total number of play notifications published to the event bus",
		},
	)

	EventsPublishFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "play_events_publish_failed_total",
			Help: "Total number of play notifications that failed to publish",
		},
	)

	EventsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "play_events_consumed_total",
			Help: "Total number of play notifications consumed from the event bus",
		},
	)

	EventsPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "play_events_poisoned_total",
			Help: "Total number of play notifications routed to the poison queue",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSuspiciousPlay records each fraud reason attached to a play at ingest
func RecordSuspiciousPlay(reasons []string) {
	for _, r := range reasons {
		PlaysSuspicious.WithLabelValues(r).Inc()
	}
}

// RecordMaterialization records a materialization attempt outcome
func RecordMaterialization(outcome string, duration time.Duration) {
	MaterializationOutcomes.WithLabelValues(outcome).Inc()
	MaterializationDuration.Observe(duration.Seconds())
}

// RecordPayoutRun records a payout aggregation run
func RecordPayoutRun(duration time.Duration, payoutsWritten int, centsAllocated int64, err error) {
	PayoutRunDuration.Observe(duration.Seconds())
	if err != nil {
		PayoutRunsTotal.WithLabelValues("failure").Inc()
		return
	}
	PayoutRunsTotal.WithLabelValues("success").Inc()
	PayoutsWritten.Add(float64(payoutsWritten))
	PayoutCentsAllocated.Add(float64(centsAllocated))
	PayoutLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordCircuitBreakerResult records a request outcome through a named breaker
func RecordCircuitBreakerResult(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}
