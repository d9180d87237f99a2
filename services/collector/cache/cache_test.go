// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("fills on miss and serves from cache afterwards", func(t *testing.T) {
		c := New[int](10 * time.Minute)
		fills := 0

		for i := 0; i < 3; i++ {
			v, err := c.Get("k", func() (int, error) {
				fills++
				return 7, nil
			})
			require.NoError(t, err)
			assert.Equal(t, 7, v)
		}
		assert.Equal(t, 1, fills)
	})

	t.Run("expires entries after the ttl", func(t *testing.T) {
		now := time.Unix(1000, 0)
		c := New[int](10 * time.Minute).WithClock(func() time.Time { return now })

		fills := 0
		fill := func() (int, error) {
			fills++
			return fills, nil
		}

		v, err := c.Get("k", fill)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		now = now.Add(9 * time.Minute)
		v, err = c.Get("k", fill)
		require.NoError(t, err)
		assert.Equal(t, 1, v, "entry still fresh")

		now = now.Add(2 * time.Minute)
		v, err = c.Get("k", fill)
		require.NoError(t, err)
		assert.Equal(t, 2, v, "entry expired and refilled")
	})

	t.Run("fill errors are not cached", func(t *testing.T) {
		c := New[int](10 * time.Minute)

		_, err := c.Get("k", func() (int, error) { return 0, errors.New("source down") })
		require.Error(t, err)

		v, err := c.Get("k", func() (int, error) { return 5, nil })
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})

	t.Run("invalidate drops the entry", func(t *testing.T) {
		c := New[int](10 * time.Minute)
		c.Set("k", 1)
		c.Invalidate("k")

		v, err := c.Get("k", func() (int, error) { return 2, nil })
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("concurrent misses coalesce into one fill", func(t *testing.T) {
		c := New[int](10 * time.Minute)

		var mu sync.Mutex
		fills := 0
		release := make(chan struct{})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.Get("k", func() (int, error) {
					mu.Lock()
					fills++
					mu.Unlock()
					<-release
					return 9, nil
				})
				assert.NoError(t, err)
				assert.Equal(t, 9, v)
			}()
		}
		// Give the goroutines time to pile onto the flight group.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, fills)
	})
}
