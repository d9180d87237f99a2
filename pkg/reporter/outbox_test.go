// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowMo7/Koarl/pkg/api"
)

func outboxCrash(id string) api.Crash {
	return api.Crash{
		UUID:     id,
		IsFatal:  true,
		DateTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Throwable: api.Throwable{
			Name:    api.Str("java.lang.IllegalStateException"),
			Message: api.Str("boom"),
		},
	}
}

func TestOutbox(t *testing.T) {
	t.Run("lists crashes in insertion order", func(t *testing.T) {
		outbox, err := NewInMemoryOutbox()
		require.NoError(t, err)
		defer outbox.Close()

		for i := 0; i < 5; i++ {
			require.NoError(t, outbox.Add(outboxCrash(fmt.Sprintf("c%d", i))))
		}

		queued, err := outbox.List()
		require.NoError(t, err)
		require.Len(t, queued, 5)
		for i, crash := range queued {
			assert.Equal(t, fmt.Sprintf("c%d", i), crash.UUID)
		}
	})

	t.Run("removes only the given ids", func(t *testing.T) {
		outbox, err := NewInMemoryOutbox()
		require.NoError(t, err)
		defer outbox.Close()

		require.NoError(t, outbox.Add(outboxCrash("c0")))
		require.NoError(t, outbox.Add(outboxCrash("c1")))
		require.NoError(t, outbox.Add(outboxCrash("c2")))

		require.NoError(t, outbox.RemoveByIDs([]string{"c0", "c2", "missing"}))

		queued, err := outbox.List()
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, "c1", queued[0].UUID)
	})

	t.Run("crash content survives the round trip", func(t *testing.T) {
		outbox, err := NewInMemoryOutbox()
		require.NoError(t, err)
		defer outbox.Close()

		crash := outboxCrash("c0")
		require.NoError(t, outbox.Add(crash))

		queued, err := outbox.List()
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, crash.UUID, queued[0].UUID)
		assert.True(t, queued[0].Throwable.StructuralEquals(&crash.Throwable))
		assert.True(t, queued[0].DateTime.Equal(crash.DateTime))
	})

	t.Run("queued crashes survive a reopen", func(t *testing.T) {
		dir := t.TempDir()

		outbox, err := NewBadgerOutbox(dir)
		require.NoError(t, err)
		require.NoError(t, outbox.Add(outboxCrash("c0")))
		require.NoError(t, outbox.Close())

		reopened, err := NewBadgerOutbox(dir)
		require.NoError(t, err)
		defer reopened.Close()

		queued, err := reopened.List()
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, "c0", queued[0].UUID)
	})
}
