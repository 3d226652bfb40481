// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestMetrics registers the collectors on an isolated registry.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("/api/records/:pid_value", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/api/records/:pid_value", "GET", 200, 20*time.Millisecond)
	m.RecordRequest("", "GET", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/records/:pid_value", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("unmatched", "GET", "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDurationSeconds))
}

func TestRecordOperation(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordOperation("b2rec", "create")
	m.RecordOperation("b2rec", "create")
	m.RecordOperation("b2rec", "delete")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordOperationsTotal.WithLabelValues("b2rec", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordOperationsTotal.WithLabelValues("b2rec", "delete")))
}

func TestRecordNotificationAndIndex(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordNotification(NotificationAbuse, NotificationSent)
	m.RecordNotification(NotificationAccessRequest, NotificationInvalid)
	m.RecordIndexOperation("put", nil)
	m.RecordIndexOperation("put", errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("abuse", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("access_request", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOperationsTotal.WithLabelValues("put", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOperationsTotal.WithLabelValues("put", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Second)
		m.RecordOperation("b2rec", "create")
		m.RecordNotification(NotificationAbuse, NotificationSent)
		m.RecordIndexOperation("delete", nil)
	})
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestTracingHelpers_NoProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()

	assert.NotPanics(t, func() {
		RecordError(span, errors.New("x"))
		RecordError(nil, errors.New("x"))
		SetSpanOK(span)
		SetSpanOK(nil)
	})
	assert.Equal(t, "", TraceID(ctx))
}
