// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

var (
	// ErrNotFound is returned when a crash, group, app or mapping does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write transaction lost a conflict
	// and should be retried by the caller.
	ErrConflict = errors.New("transaction conflict")
)
