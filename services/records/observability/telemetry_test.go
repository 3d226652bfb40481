// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTelemetry_None(t *testing.T) {
	tel, err := InitTelemetry(context.Background(), TelemetryConfig{
		ServiceName:    "b2share",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterNone,
	})
	require.NoError(t, err)
	assert.NotNil(t, tel.TracerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestInitTelemetry_UnknownExporter(t *testing.T) {
	_, err := InitTelemetry(context.Background(), TelemetryConfig{TraceExporter: "zipkin"})
	assert.True(t, errors.Is(err, ErrUnknownExporter))

	_, err = InitTelemetry(context.Background(), TelemetryConfig{MetricExporter: "statsd"})
	assert.True(t, errors.Is(err, ErrUnknownExporter))
}

func TestInitTelemetry_StdoutTraces(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	tel, err := InitTelemetry(context.Background(), TelemetryConfig{
		ServiceName:   "b2share",
		TraceExporter: ExporterStdout,
		Output:        &out,
	})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "records.create")
	span.End()
	require.NoError(t, tel.Shutdown(context.Background()))

	assert.Contains(t, out.String(), "records.create")
}

func TestInitTelemetry_PrometheusMeter(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	reg := prometheus.NewRegistry()
	tel, err := InitTelemetry(context.Background(), TelemetryConfig{
		ServiceName:    "b2share",
		MetricExporter: ExporterPrometheus,
		Registerer:     reg,
	})
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	counter, err := tel.Meter(TracerName).Int64Counter("config.reloads")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "config_reloads_total")
}
