// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and tracing for the records service.
//
// # Description
//
// Prometheus metrics cover:
//   - HTTP requests (by route, method and status) and their latency
//   - Record mutations by pid type
//   - Notification outcomes (abuse reports, access requests)
//   - Search index writes
//
// Metrics are exposed on /metrics. Tracing helpers wrap the global
// OpenTelemetry tracer provider installed by the service.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record* method is a no-op on a nil *Metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "b2share"

const (
	httpSubsystem    = "http"
	recordsSubsystem = "records"
	notifySubsystem  = "notifications"
	indexSubsystem   = "index"
)

// Metrics holds the Prometheus collectors of the records service.
//
// # Fields
//
//   - RequestsTotal: HTTP requests by route, method and status
//   - RequestDurationSeconds: HTTP latency by route and method
//   - RecordOperationsTotal: record mutations by pid type and operation
//   - NotificationsTotal: notifications by kind and outcome
//   - IndexOperationsTotal: index writes by operation and outcome
type Metrics struct {
	// Labels: route (gin full path), method, status (numeric code)
	RequestsTotal *prometheus.CounterVec

	// Labels: route, method
	RequestDurationSeconds *prometheus.HistogramVec

	// Labels: pid_type, operation (create, delete)
	RecordOperationsTotal *prometheus.CounterVec

	// Labels: kind (abuse, access_request), outcome (sent, invalid, failed)
	NotificationsTotal *prometheus.CounterVec

	// Labels: operation (put, delete), outcome (success, error)
	IndexOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
//
// # Inputs
//
//   - reg: Target registry. prometheus.DefaultRegisterer in production, a
//     fresh prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if the collectors are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),

		RecordOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: recordsSubsystem,
				Name:      "operations_total",
				Help:      "Total committed record mutations by pid type and operation",
			},
			[]string{"pid_type", "operation"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: notifySubsystem,
				Name:      "total",
				Help:      "Total notifications by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		IndexOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: indexSubsystem,
				Name:      "operations_total",
				Help:      "Total search index writes by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Notification kinds.
const (
	NotificationAbuse         = "abuse"
	NotificationAccessRequest = "access_request"
)

// Notification outcomes.
const (
	NotificationSent    = "sent"
	NotificationInvalid = "invalid"
	NotificationFailed  = "failed"
)

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRequest records one finished HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDurationSeconds.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordOperation counts a committed record mutation.
func (m *Metrics) RecordOperation(pidType, operation string) {
	if m == nil {
		return
	}
	m.RecordOperationsTotal.WithLabelValues(pidType, operation).Inc()
}

// RecordNotification counts a notification attempt.
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordIndexOperation counts a search index write.
func (m *Metrics) RecordIndexOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.IndexOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
