// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metricsapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketCounts(t *testing.T) {
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("counts events into half-open buckets with a trailing point", func(t *testing.T) {
		opts := QueryOptions{
			From:          from,
			To:            from.Add(16 * time.Minute),
			IntervalMs:    (5 * time.Minute).Milliseconds(),
			MaxDataPoints: 100,
		}
		events := []time.Time{
			from.Add(-time.Minute),           // first bucket, ends at from
			from.Add(time.Minute),            // bucket ending from+5m
			from.Add(5 * time.Minute),        // same bucket, end inclusive
			from.Add(12 * time.Minute),       // bucket ending from+15m
			from.Add(15*time.Minute + 30*time.Second), // trailing remainder
		}

		points := BucketCounts(opts, 5*time.Minute, events)
		require.Len(t, points, 5)

		assert.Equal(t, DataPoint{Value: 1, TimestampMs: from.UnixMilli()}, points[0])
		assert.Equal(t, DataPoint{Value: 2, TimestampMs: from.Add(5 * time.Minute).UnixMilli()}, points[1])
		assert.Equal(t, DataPoint{Value: 0, TimestampMs: from.Add(10 * time.Minute).UnixMilli()}, points[2])
		assert.Equal(t, DataPoint{Value: 1, TimestampMs: from.Add(15 * time.Minute).UnixMilli()}, points[3])
		assert.Equal(t, DataPoint{Value: 1, TimestampMs: from.Add(16 * time.Minute).UnixMilli()}, points[4])
	})

	t.Run("clamps the interval to the minimum step", func(t *testing.T) {
		opts := QueryOptions{
			From:          from,
			To:            from.Add(10 * time.Minute),
			IntervalMs:    1000, // 1s requested
			MaxDataPoints: 1000,
		}
		points := BucketCounts(opts, 5*time.Minute, nil)
		// 5m steps: points at from, from+5m, plus the trailing point.
		require.Len(t, points, 3)
		assert.Equal(t, from.Add(10*time.Minute).UnixMilli(), points[2].TimestampMs)
	})

	t.Run("honours max data points", func(t *testing.T) {
		opts := QueryOptions{
			From:          from,
			To:            from.Add(24 * time.Hour),
			IntervalMs:    (5 * time.Minute).Milliseconds(),
			MaxDataPoints: 3,
		}
		points := BucketCounts(opts, 5*time.Minute, nil)
		require.Len(t, points, 4)
		assert.Equal(t, opts.To.UnixMilli(), points[3].TimestampMs)
	})

	t.Run("a window narrower than the step yields only the trailing point", func(t *testing.T) {
		to := from.Add(time.Minute)
		opts := QueryOptions{
			From:          from,
			To:            to,
			IntervalMs:    1000,
			MaxDataPoints: 100,
		}
		events := []time.Time{from.Add(30 * time.Second)}
		points := BucketCounts(opts, 5*time.Minute, events)
		// Only the point at from (counting (from-5m, from]) and the
		// trailing point at to.
		require.Len(t, points, 2)
		assert.Equal(t, DataPoint{Value: 0, TimestampMs: from.UnixMilli()}, points[0])
		assert.Equal(t, DataPoint{Value: 1, TimestampMs: to.UnixMilli()}, points[1])
	})

	t.Run("a negative max data points yields only the trailing point", func(t *testing.T) {
		opts := QueryOptions{
			From:          from,
			To:            from.Add(time.Hour),
			IntervalMs:    (5 * time.Minute).Milliseconds(),
			MaxDataPoints: -1,
		}
		events := []time.Time{from.Add(30 * time.Minute)}
		points := BucketCounts(opts, 5*time.Minute, events)
		require.Len(t, points, 1)
		assert.Equal(t, DataPoint{Value: 1, TimestampMs: opts.To.UnixMilli()}, points[0])
	})

	t.Run("datapoints marshal as grafana pairs", func(t *testing.T) {
		data, err := json.Marshal([]DataPoint{{Value: 3, TimestampMs: 1748779200000}})
		require.NoError(t, err)
		assert.JSONEq(t, `[[3,1748779200000]]`, string(data))
	})
}
