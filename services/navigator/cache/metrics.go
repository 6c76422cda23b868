// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("fragnav.cache")

var (
	lookupTotal    metric.Int64Counter
	evictionsTotal metric.Int64Counter
	lookupLatency  metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lookupTotal, err = meter.Int64Counter(
			"response_cache_lookups_total",
			metric.WithDescription("Total response cache lookups, labeled by hit"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evictionsTotal, err = meter.Int64Counter(
			"response_cache_evictions_total",
			metric.WithDescription("Total lazily evicted expired cache entries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lookupLatency, err = meter.Float64Histogram(
			"response_cache_lookup_duration_seconds",
			metric.WithDescription("Duration of response cache lookups"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLookup(ctx context.Context, d time.Duration, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("hit", hit))
	lookupTotal.Add(ctx, 1, attrs)
	lookupLatency.Record(ctx, d.Seconds(), attrs)
}

func recordEviction(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	evictionsTotal.Add(ctx, 1)
}
