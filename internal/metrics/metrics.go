// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package metrics exposes Prometheus instrumentation for:
// - accrual and maturity cycle outcomes
// - document store operation latency
// - notification delivery
// - API endpoint latency and throughput
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle Metrics
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nivesh_cycle_duration_seconds",
			Help:    "Duration of batch cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"}, // "accrual", "maturity"
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_cycles_total",
			Help: "Total number of batch cycles by outcome",
		},
		[]string{"kind", "status"}, // status: "completed", "partial", "failed", "skipped"
	)

	CycleAccountsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_cycle_accounts_processed_total",
			Help: "Total number of accounts processed across cycles",
		},
		[]string{"kind"},
	)

	CycleAccountsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_cycle_accounts_failed_total",
			Help: "Total number of accounts skipped due to per-account errors",
		},
		[]string{"kind"},
	)

	InterestCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nivesh_interest_credited_total",
			Help: "Cumulative base interest credited across accrual cycles",
		},
	)

	ReferralCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nivesh_referral_credited_total",
			Help: "Cumulative referral bonus credited across accrual cycles",
		},
	)

	PrincipalReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nivesh_principal_released_total",
			Help: "Cumulative matured principal released to withdrawable balance",
		},
	)

	// Store Metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nivesh_store_op_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_store_op_errors_total",
			Help: "Total number of document store operation errors",
		},
		[]string{"operation"},
	)

	StoreAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nivesh_store_accounts",
			Help: "Number of account documents observed in the last full scan",
		},
	)

	StoreGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_store_gc_runs_total",
			Help: "Total number of value-log garbage collection attempts",
		},
		[]string{"outcome"}, // "reclaimed", "nothing", "error"
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_notifications_sent_total",
			Help: "Total number of notifications sent by channel and outcome",
		},
		[]string{"channel", "outcome"}, // channel: "email", "sms"
	)

	SMSBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nivesh_sms_breaker_state",
			Help: "SMS gateway circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nivesh_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivesh_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nivesh_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)
)

// RecordCycle records the outcome of a completed batch cycle.
func RecordCycle(kind, status string, duration time.Duration, processed, failed int) {
	CycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
	CyclesTotal.WithLabelValues(kind, status).Inc()
	CycleAccountsProcessed.WithLabelValues(kind).Add(float64(processed))
	CycleAccountsFailed.WithLabelValues(kind).Add(float64(failed))
}

// RecordStoreOp records the duration and outcome of a store operation.
func RecordStoreOp(operation string, duration time.Duration, err error) {
	StoreOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(operation).Inc()
	}
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(channel string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	NotificationsSent.WithLabelValues(channel, outcome).Inc()
}

// RecordAPIRequest records latency and count for an API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
}

// TrackActiveRequest adjusts the in-flight API request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
