// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"context"
	"time"
)

// Clock abstracts waiting so the retry loop is testable without real
// sleeps.
type Clock interface {
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error

	// Now returns the current time.
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns the wall-clock backed Clock used outside tests.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (systemClock) Now() time.Time { return time.Now() }
