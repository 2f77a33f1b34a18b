/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionPassesTotal counts decision passes per station.
	DecisionPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_decision_passes_total",
		Help: "Decision passes run by the scheduler.",
	}, []string{"station"})

	// DecisionsTotal counts decision outcomes per station and action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_decisions_total",
		Help: "Decision outcomes by action (instant, scheduled, wait, abort).",
	}, []string{"station", "action"})

	// InsertionCallsTotal counts playback trigger calls by mode and result.
	InsertionCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_insertion_calls_total",
		Help: "Playback trigger endpoint calls by mode and result.",
	}, []string{"station", "mode", "result"})

	// ConfirmationsTotal counts confirmation outcomes.
	ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_confirmations_total",
		Help: "Roll confirmation outcomes (confirmed, unconfirmed).",
	}, []string{"station", "outcome"})

	// ConfirmationWaitSeconds observes how long the sentinel took to appear.
	ConfirmationWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gjallar_confirmation_wait_seconds",
		Help:    "Seconds between trigger and sentinel observation.",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// LedgerErrorsTotal counts ledger persistence failures.
	LedgerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_ledger_errors_total",
		Help: "Ledger read or persist failures.",
	}, []string{"station"})

	// SchedulerWakeupsTotal counts scheduler loop wakeups by cause.
	SchedulerWakeupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_scheduler_wakeups_total",
		Help: "Scheduler wakeups by cause (hour_tick, track_change, poll).",
	}, []string{"cause"})

	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gjallar_api_requests_total",
		Help: "HTTP API requests by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP API request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gjallar_api_request_duration_seconds",
		Help:    "HTTP API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gjallar_api_active_connections",
		Help: "In-flight HTTP API requests.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
