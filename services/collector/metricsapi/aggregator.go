// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metricsapi serves crash counts as Grafana "simple JSON"
// datasource time series.
package metricsapi

import (
	"fmt"
	"time"
)

// QueryOptions is the time window and resolution of one query.
type QueryOptions struct {
	From          time.Time
	To            time.Time
	IntervalMs    int64
	MaxDataPoints int64
}

// DataPoint is one sample. It marshals in the Grafana datapoint form
// [value, timestampMillis].
type DataPoint struct {
	Value       float64
	TimestampMs int64
}

// MarshalJSON emits the two-element array Grafana expects.
func (p DataPoint) MarshalJSON() ([]byte, error) {
	return fmt.Appendf(nil, "[%s,%d]", formatValue(p.Value), p.TimestampMs), nil
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// BucketCounts folds event times into fixed-width count buckets.
//
// Description:
//
//	The bucket width is the larger of the requested interval and
//	minimumStep: counting rare events at second resolution produces
//	noise, so the resolution is clamped. Buckets end at from+i*step and
//	each counts the events in the half-open interval
//	(bucketEnd-step, bucketEnd]. At most MaxDataPoints buckets are
//	emitted and a final point is always placed at exactly the window
//	end, covering the remainder since the last full bucket.
//
// Outputs:
//
//	[]DataPoint - Never nil; a window with no full bucket still yields
//	              the trailing point at To.
func BucketCounts(opts QueryOptions, minimumStep time.Duration, times []time.Time) []DataPoint {
	step := time.Duration(opts.IntervalMs) * time.Millisecond
	if step < minimumStep {
		step = minimumStep
	}

	countIn := func(start, end time.Time) float64 {
		var n float64
		for _, t := range times {
			if t.After(start) && !t.After(end) {
				n++
			}
		}
		return n
	}

	// Grafana controls MaxDataPoints; a hostile or broken client may
	// send a negative value, which must not poison the allocation.
	maxPoints := opts.MaxDataPoints
	if maxPoints < 0 {
		maxPoints = 0
	}

	points := make([]DataPoint, 0, maxPoints+1)
	lastEnd := opts.From
	for i := int64(0); i < maxPoints; i++ {
		end := opts.From.Add(time.Duration(i) * step)
		if !end.Before(opts.To) {
			break
		}
		points = append(points, DataPoint{
			Value:       countIn(end.Add(-step), end),
			TimestampMs: end.UnixMilli(),
		})
		lastEnd = end
	}

	if len(points) == 0 || points[len(points)-1].TimestampMs != opts.To.UnixMilli() {
		points = append(points, DataPoint{
			Value:       countIn(lastEnd, opts.To),
			TimestampMs: opts.To.UnixMilli(),
		})
	}
	return points
}
