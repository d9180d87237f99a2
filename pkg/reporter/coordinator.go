// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TaskResult is the outcome of one upload attempt, in terms of what the
// coordinator should do next.
type TaskResult int

const (
	// Success: nothing left to upload, the cycle can end.
	Success TaskResult = iota

	// SuccessNeedsAnotherRun: the batch uploaded but more crashes are
	// queued; rerun immediately without delay.
	SuccessNeedsAnotherRun

	// Failure: the upload did not go through; rerun after the retry
	// delay.
	Failure
)

func (r TaskResult) String() string {
	switch r {
	case Success:
		return "Success"
	case SuccessNeedsAnotherRun:
		return "SuccessNeedsAnotherRun"
	case Failure:
		return "Failure"
	default:
		return "unknown"
	}
}

// uploadCoordinator serializes upload cycles.
//
// At most one cycle runs at a time, guarded by a try-lock. A trigger
// that arrives while a cycle is in flight sets the dirty flag; the
// running cycle checks the flag before releasing the lock and loops once
// more instead of exiting, so a crash queued mid-cycle is never left
// waiting for the next external trigger.
type uploadCoordinator struct {
	mu         sync.Mutex
	dirty      atomic.Bool
	retryDelay time.Duration
	clock      Clock
	logger     *slog.Logger
}

func newUploadCoordinator(retryDelay time.Duration, clock Clock, logger *slog.Logger) *uploadCoordinator {
	return &uploadCoordinator{
		retryDelay: retryDelay,
		clock:      clock,
		logger:     logger,
	}
}

// run executes task until it reports Success, retrying failures after
// the configured delay, without limit. Returns immediately when another
// cycle already holds the lock (after marking the dirty flag) or when
// ctx is cancelled during a retry wait.
func (c *uploadCoordinator) run(ctx context.Context, task func(ctx context.Context) TaskResult) {
	if !c.mu.TryLock() {
		// A cycle is in flight; it will notice the flag before
		// releasing the lock.
		c.dirty.Store(true)
		c.logger.Debug("upload already in progress, marked for another pass")
		return
	}
	defer c.mu.Unlock()

	for {
		result := task(ctx)
		c.logger.Debug("upload task finished", "result", result.String())

		switch result {
		case SuccessNeedsAnotherRun:
			continue
		case Failure:
			c.logger.Info("upload failed, scheduling retry", "delay", c.retryDelay)
			if err := c.clock.Sleep(ctx, c.retryDelay); err != nil {
				return
			}
			continue
		default:
			if c.dirty.CompareAndSwap(true, false) {
				// Something was queued while this cycle ran.
				continue
			}
			return
		}
	}
}
