// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package request

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("fragnav.request")
	meter  = otel.Meter("fragnav.request")
)

var (
	requestsTotal metric.Int64Counter
	fetchLatency  metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestsTotal, err = meter.Int64Counter(
			"fragment_requests_total",
			metric.WithDescription("Total fragment requests, labeled by kind and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchLatency, err = meter.Float64Histogram(
			"fragment_fetch_duration_seconds",
			metric.WithDescription("Duration of network fragment fetches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRequest(ctx context.Context, kind Kind, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}

func recordFetchLatency(ctx context.Context, kind Kind, seconds float64) {
	if err := initMetrics(); err != nil {
		return
	}
	fetchLatency.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("kind", string(kind)),
	))
}

func startSpan(ctx context.Context, op, url string, kind Kind) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Coordinator."+op,
		trace.WithAttributes(
			attribute.String("request.url", url),
			attribute.String("request.kind", string(kind)),
		),
	)
}
