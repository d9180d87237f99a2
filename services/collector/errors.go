// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collector

import "errors"

var (
	// ErrInvalidRequest marks client errors in an upload or query:
	// missing package name, crashes without UUIDs, unknown group type.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidMapping marks a mapping upload whose text failed to
	// parse. Unlike the best-effort ingest path, the explicit upload
	// endpoint rejects bad mappings.
	ErrInvalidMapping = errors.New("invalid mapping")
)
